package taskextraction_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/conductor/errkind"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/nodes/taskextraction"
	"github.com/coriolis-labs/conductor/state"
)

type stubService struct {
	result map[string]any
	err    error
}

func (s stubService) Complete(ctx context.Context, prompt string, cfg llm.ModelConfig) (string, error) {
	return "", nil
}

func (s stubService) CompleteStructured(ctx context.Context, prompt string, cfg llm.ModelConfig, schema any) (map[string]any, error) {
	return s.result, s.err
}

func TestRunSetsCurrentTask(t *testing.T) {
	svc := stubService{result: map[string]any{"task": "fetch weather for Prague", "depends_on_chat_history": false}}
	s := state.New("t1", nil)
	s.Messages = []state.Message{{Role: "user", Content: "What's the weather in Prague?"}}

	delta, err := taskextraction.Run(context.Background(), svc, llm.ModelConfig{}, s)
	require.NoError(t, err)
	require.True(t, delta.CurrentTask.Touched)
	assert.Equal(t, "fetch weather for Prague", *delta.CurrentTask.Value)
}

func TestRunNoOpWhenAlreadySet(t *testing.T) {
	svc := stubService{err: errors.New("should not be called")}
	s := state.New("t1", nil)
	task := "already extracted"
	s.Task.CurrentTask = &task

	delta, err := taskextraction.Run(context.Background(), svc, llm.ModelConfig{}, s)
	require.NoError(t, err)
	assert.False(t, delta.CurrentTask.Touched)
}

func TestRunTimeoutClassifiedTransport(t *testing.T) {
	svc := stubService{err: llm.ErrTimeout}
	s := state.New("t1", nil)

	_, err := taskextraction.Run(context.Background(), svc, llm.ModelConfig{}, s)
	require.Error(t, err)
	assert.Equal(t, errkind.Transport, errkind.KindOf(err))
}

func TestRunMissingTaskIsValidationError(t *testing.T) {
	svc := stubService{result: map[string]any{}}
	s := state.New("t1", nil)

	_, err := taskextraction.Run(context.Background(), svc, llm.ModelConfig{}, s)
	require.Error(t, err)
	assert.Equal(t, errkind.Validation, errkind.KindOf(err))
}
