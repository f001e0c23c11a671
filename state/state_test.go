package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/state"
)

func TestMergeAppendsMessagesAndLeavesRestUntouched(t *testing.T) {
	s := state.New("thread-1", nil)
	s = state.Merge(s, state.Delta{MessagesAppend: []state.Message{{Role: "user", Content: "hi"}}})

	s2 := state.Merge(s, state.Delta{MessagesAppend: []state.Message{{Role: "assistant", Content: "hello"}}})
	require.Len(t, s2.Messages, 2)
	assert.Equal(t, "hi", s2.Messages[0].Content)
	assert.Equal(t, "hello", s2.Messages[1].Content)

	// Original s is untouched by the second merge.
	assert.Len(t, s.Messages, 1)
}

func TestMergeIsLastWriteWinsForScalarFields(t *testing.T) {
	s := state.New("thread-1", nil)
	task := "find the weather"
	s = state.Merge(s, state.Delta{CurrentTask: state.Set(&task)})
	require.NotNil(t, s.Task.CurrentTask)
	assert.Equal(t, task, *s.Task.CurrentTask)

	s = state.Merge(s, state.Delta{CurrentStepIndex: state.Set(2)})
	assert.Equal(t, 2, s.Planning.CurrentStepIndex)
	// CurrentTask survives an unrelated merge.
	assert.Equal(t, task, *s.Task.CurrentTask)
}

func TestSetCanExplicitlyClearAPointerField(t *testing.T) {
	s := state.New("thread-1", nil)
	p := &plan.Plan{OriginalTask: "x"}
	s = state.Merge(s, state.Delta{ExecutionPlan: state.Set(p)})
	require.NotNil(t, s.Planning.ExecutionPlan)

	s = state.Merge(s, state.ClearForReplan())
	assert.Nil(t, s.Planning.ExecutionPlan)
	assert.False(t, s.Control.HasError)
	assert.Nil(t, s.Control.ErrorInfo)
}

func TestClearForReclassificationClearsPlanAndActiveCapabilities(t *testing.T) {
	s := state.New("thread-1", nil)
	s = state.Merge(s, state.Delta{
		ExecutionPlan:      state.Set(&plan.Plan{OriginalTask: "x"}),
		ActiveCapabilities: state.Set(map[string]bool{"current_weather": true}),
	})

	s = state.Merge(s, state.ClearForReclassification())
	assert.Nil(t, s.Planning.ExecutionPlan)
	assert.Nil(t, s.Planning.ActiveCapabilities)
}

func TestCurrentStepReturnsFalseWithoutPlan(t *testing.T) {
	s := state.New("thread-1", nil)
	_, ok := s.CurrentStep()
	assert.False(t, ok)
}

func TestCurrentStepResolvesByIndex(t *testing.T) {
	s := state.New("thread-1", nil)
	s.Planning.ExecutionPlan = &plan.Plan{
		Steps: []plan.Step{
			{ContextKey: "s1", Capability: "current_weather"},
			{ContextKey: "s2", Capability: plan.RespondCapability},
		},
	}
	s.Planning.CurrentStepIndex = 1

	step, ok := s.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, "s2", step.ContextKey)
}
