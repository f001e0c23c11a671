package httpcompat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/conductor/adapters/llm/httpcompat"
	"github.com/coriolis-labs/conductor/llm"
)

func newFixtureServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestCompleteReturnsMessageContent(t *testing.T) {
	srv := newFixtureServer(t, "hello there")
	defer srv.Close()

	svc := httpcompat.New(srv.URL, "")
	out, err := svc.Complete(context.Background(), "hi", llm.ModelConfig{Model: "test-model"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestCompleteStructuredParsesJSONContent(t *testing.T) {
	srv := newFixtureServer(t, `{"decision":"approve"}`)
	defer srv.Close()

	svc := httpcompat.New(srv.URL, "")
	out, err := svc.CompleteStructured(context.Background(), "classify", llm.ModelConfig{Model: "test-model"}, "respond JSON")
	require.NoError(t, err)
	assert.Equal(t, "approve", out["decision"])
}

func TestCompleteStructuredRejectsNonJSONContent(t *testing.T) {
	srv := newFixtureServer(t, "not json")
	defer srv.Close()

	svc := httpcompat.New(srv.URL, "")
	_, err := svc.CompleteStructured(context.Background(), "classify", llm.ModelConfig{Model: "test-model"}, nil)
	assert.Error(t, err)
}

func TestCompleteSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := httpcompat.New(srv.URL, "")
	_, err := svc.Complete(context.Background(), "hi", llm.ModelConfig{Model: "test-model"})
	assert.Error(t, err)
}
