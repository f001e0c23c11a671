// Package taskextraction implements the task extraction infrastructure node
// (spec §4.5): distills the conversation into one self-contained task
// sentence with pronouns and references resolved.
package taskextraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/coriolis-labs/conductor/errkind"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
)

// DefaultRetryPolicy matches spec §4.5's named defaults: 3 attempts, 1s
// base delay, ×1.5 backoff.
var DefaultRetryPolicy = registry.RetryPolicy{MaxAttempts: 3, BaseDelaySec: 1, BackoffFactor: 1.5}

const extractionSchemaHint = `Respond with a JSON object: ` +
	`{"task": "<one self-contained sentence, pronouns and references resolved>", ` +
	`"depends_on_chat_history": <bool>, "depends_on_user_memory": <bool>}`

// Run extracts task.current_task from the conversation messages. It is a
// no-op if current_task is already set, satisfying the idempotence
// requirement: the router only ever dispatches here when current_task is
// none, but Run stays defensively idempotent regardless of caller
// discipline.
func Run(ctx context.Context, svc llm.Service, cfg llm.ModelConfig, s state.State) (state.Delta, error) {
	if s.Task.CurrentTask != nil {
		return state.Delta{}, nil
	}

	prompt := buildPrompt(s.Messages)
	result, err := svc.CompleteStructured(ctx, prompt, cfg, extractionSchemaHint)
	if err != nil {
		if llm.IsTimeout(err) {
			return state.Delta{}, errkind.Wrap(errkind.Transport, "task extraction timed out", err)
		}
		return state.Delta{}, errkind.Wrap(errkind.Transport, "task extraction call failed", err)
	}

	task, ok := result["task"].(string)
	if !ok || strings.TrimSpace(task) == "" {
		return state.Delta{}, errkind.New(errkind.Validation, "task extraction returned no task sentence")
	}

	dependsOnChat, _ := result["depends_on_chat_history"].(bool)
	dependsOnMemory, _ := result["depends_on_user_memory"].(bool)

	return state.Delta{
		CurrentTask:          state.Set(&task),
		DependsOnChatHistory: state.Set(dependsOnChat),
		DependsOnUserMemory:  state.Set(dependsOnMemory),
	}, nil
}

func buildPrompt(messages []state.Message) string {
	var b strings.Builder
	b.WriteString("Given the following conversation, produce a single self-contained task sentence.\n\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
