// Package httpcompat implements llm.Service over an OpenAI-compatible
// "/v1/chat/completions" HTTP endpoint (SPEC_FULL §11.7, §1 "concrete LLM
// providers are out of scope"). It exists only so cmd/conductorctl has a
// real, runnable Service to wire up — the core orchestration packages never
// import it. Wire shapes (chatRequest/chatResponse/chatMessage) are grounded
// on the pack's own cmd/mock-llm, the one place in the corpus that speaks
// this protocol; this package is the client side of that same contract.
// Package registry/nodes never touch this package directly; they only ever
// see the llm.Service interface.
package httpcompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coriolis-labs/conductor/llm"
)

// Service implements llm.Service against any server speaking the OpenAI
// chat-completions wire format — a real provider's API, or the pack's own
// mock-llm for offline demos.
type Service struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

var _ llm.Service = (*Service)(nil)

// New returns a Service targeting baseURL (e.g. "http://localhost:11434" for
// a local mock-llm instance, or a real provider's OpenAI-compatible base
// URL). apiKey may be empty for a server that does not require one.
func New(baseURL, apiKey string) *Service {
	return &Service{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete implements llm.Service.
func (s *Service) Complete(ctx context.Context, prompt string, cfg llm.ModelConfig) (string, error) {
	return s.complete(ctx, prompt, cfg)
}

// CompleteStructured implements llm.Service. schema is appended to the
// prompt as a plain-text instruction (every call site in this tree passes a
// string hint, never a compiled schema object), and the response content is
// parsed as a single JSON object.
func (s *Service) CompleteStructured(ctx context.Context, prompt string, cfg llm.ModelConfig, schema any) (map[string]any, error) {
	hint, _ := schema.(string)
	full := prompt
	if hint != "" {
		full = prompt + "\n\n" + hint
	}
	content, err := s.complete(ctx, full, cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("httpcompat: response was not a JSON object: %w", err)
	}
	return out, nil
}

func (s *Service) complete(ctx context.Context, prompt string, cfg llm.ModelConfig) (string, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model:       cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("httpcompat: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("httpcompat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", llm.ErrTimeout
		}
		return "", fmt.Errorf("httpcompat: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("httpcompat: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("httpcompat: server returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("httpcompat: unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("httpcompat: response carried no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
