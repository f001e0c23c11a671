package gateway_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/conductor/adapters/checkpoint/memstore"
	"github.com/coriolis-labs/conductor/checkpoint"
	"github.com/coriolis-labs/conductor/contextstore"
	"github.com/coriolis-labs/conductor/gateway"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/state"
)

type staticSchemas map[contextstore.Type]*jsonschema.Schema

func (s staticSchemas) SchemaFor(t contextstore.Type) (*jsonschema.Schema, bool) {
	sch, ok := s[t]
	return sch, ok
}

type stubService struct {
	decision string
	err      error
}

func (s stubService) Complete(context.Context, string, llm.ModelConfig) (string, error) {
	return "", nil
}

func (s stubService) CompleteStructured(_ context.Context, _ string, _ llm.ModelConfig, _ any) (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return map[string]any{"decision": s.decision}, nil
}

func TestParseSlashCommandsSingle(t *testing.T) {
	cmds, rest := gateway.ParseSlashCommands("/planning do the research task")
	require.Len(t, cmds, 1)
	assert.Equal(t, "planning", cmds[0].Name)
	assert.Equal(t, "", cmds[0].Value)
	assert.Equal(t, 0, cmds[0].Start)
	assert.Equal(t, "do the research task", rest)
}

func TestParseSlashCommandsCompoundWithValues(t *testing.T) {
	cmds, rest := gateway.ParseSlashCommands("/planning /approval:all  what's the weather")
	require.Len(t, cmds, 2)
	assert.Equal(t, "planning", cmds[0].Name)
	assert.Equal(t, "approval", cmds[1].Name)
	assert.Equal(t, "all", cmds[1].Value)
	assert.Equal(t, "what's the weather", rest)
}

func TestParseSlashCommandsNoCommandsReturnsWholeMessage(t *testing.T) {
	cmds, rest := gateway.ParseSlashCommands("just a plain message")
	assert.Empty(t, cmds)
	assert.Equal(t, "just a plain message", rest)
}

func TestApplySlashCommandsSetsKnownFields(t *testing.T) {
	cmds, _ := gateway.ParseSlashCommands("/planning /approval:selective /debug")
	control, unknown := gateway.ApplySlashCommands(state.AgentControl{}, cmds)
	assert.Empty(t, unknown)
	assert.True(t, control.PlanningMode)
	assert.Equal(t, state.ApprovalSelective, control.ApprovalMode)
	assert.True(t, control.Debug)
}

func TestApplySlashCommandsCollectsUnknown(t *testing.T) {
	cmds, _ := gateway.ParseSlashCommands("/approval:maybe /bogus")
	_, unknown := gateway.ApplySlashCommands(state.AgentControl{}, cmds)
	assert.ElementsMatch(t, []string{"/approval:maybe", "/bogus"}, unknown)
}

func TestProcessWithNoPriorSnapshotBuildsFreshState(t *testing.T) {
	store := memstore.New()
	lookup := staticSchemas{}
	result := gateway.Process(context.Background(), store, lookup, nil, llm.ModelConfig{}, "/planning check the weather", gateway.Config{ThreadID: "t1"})

	require.NoError(t, result.Err)
	require.Nil(t, result.ResumeCommand)
	assert.False(t, result.ApprovalDetected)
	require.Len(t, result.AgentState.Messages, 1)
	assert.Equal(t, "check the weather", result.AgentState.Messages[0].Content)
	assert.True(t, result.AgentState.AgentControl.PlanningMode)
}

func TestProcessCarriesMessageHistoryForwardFromPriorSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lookup := staticSchemas{}

	prior := state.New("t1", contextstore.New(lookup))
	prior.Messages = []state.Message{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hi there"}}
	snap, err := checkpoint.Encode(prior)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "t1", snap))

	result := gateway.Process(ctx, store, lookup, nil, llm.ModelConfig{}, "follow up question", gateway.Config{ThreadID: "t1"})
	require.NoError(t, result.Err)
	require.Len(t, result.AgentState.Messages, 3)
	assert.Equal(t, "follow up question", result.AgentState.Messages[2].Content)
}

func TestProcessSlashCommandOnlyInputDoesNotMutateMessages(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lookup := staticSchemas{}

	prior := state.New("t1", contextstore.New(lookup))
	prior.Messages = []state.Message{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hi there"}}
	snap, err := checkpoint.Encode(prior)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "t1", snap))

	result := gateway.Process(ctx, store, lookup, nil, llm.ModelConfig{}, "  /planning  ", gateway.Config{ThreadID: "t1"})
	require.NoError(t, result.Err)
	require.Len(t, result.AgentState.Messages, 2)
	assert.Equal(t, "hi there", result.AgentState.Messages[1].Content)
	assert.True(t, result.AgentState.AgentControl.PlanningMode)
}

func TestProcessSlashCommandOnlyInputWithNoPriorLeavesMessagesEmpty(t *testing.T) {
	store := memstore.New()
	lookup := staticSchemas{}
	result := gateway.Process(context.Background(), store, lookup, nil, llm.ModelConfig{}, "/planning", gateway.Config{ThreadID: "t1"})

	require.NoError(t, result.Err)
	assert.Empty(t, result.AgentState.Messages)
	assert.True(t, result.AgentState.AgentControl.PlanningMode)
}

func TestProcessApprovedInterruptProducesResumeCommand(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lookup := staticSchemas{}

	prior := state.New("t1", contextstore.New(lookup))
	prior.Control.PendingInterrupt = &interrupt.Payload{Kind: interrupt.ToolApproval, NodeName: "orchestration"}
	snap, err := checkpoint.Encode(prior)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "t1", snap))

	svc := stubService{decision: "approve"}
	result := gateway.Process(ctx, store, lookup, svc, llm.ModelConfig{}, "yes go ahead", gateway.Config{ThreadID: "t1"})

	require.NoError(t, result.Err)
	require.True(t, result.ApprovalDetected)
	require.NotNil(t, result.ResumeCommand)
	assert.True(t, result.ResumeCommand.Approved)
	assert.Nil(t, result.ResumeCommand.Replacement)
}

func TestProcessRejectedInterruptCarriesReason(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lookup := staticSchemas{}

	prior := state.New("t1", contextstore.New(lookup))
	prior.Control.PendingInterrupt = &interrupt.Payload{Kind: interrupt.PlanApproval, NodeName: "orchestration"}
	snap, err := checkpoint.Encode(prior)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "t1", snap))

	svc := stubService{decision: "reject"}
	result := gateway.Process(ctx, store, lookup, svc, llm.ModelConfig{}, "no, don't do that", gateway.Config{ThreadID: "t1"})

	require.NoError(t, result.Err)
	require.NotNil(t, result.ResumeCommand)
	assert.False(t, result.ResumeCommand.Approved)
	assert.Equal(t, "no, don't do that", result.ResumeCommand.Reason)
}

func TestProcessEditInterruptParsesYAMLReplacementPlan(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lookup := staticSchemas{}

	prior := state.New("t1", contextstore.New(lookup))
	prior.Control.PendingInterrupt = &interrupt.Payload{Kind: interrupt.PlanApproval, NodeName: "orchestration"}
	snap, err := checkpoint.Encode(prior)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "t1", snap))

	editedPlan := &plan.Plan{
		OriginalTask: "check the weather",
		CreatedAt:    time.Time{},
		Version:      "v2",
		Steps: []plan.Step{
			{ContextKey: "s1", Capability: "current_weather", TaskObjective: "fetch forecast", SuccessCriteria: "forecast returned"},
		},
	}
	yamlBytes, err := editedPlan.MarshalYAML()
	require.NoError(t, err)

	svc := stubService{decision: "edit"}
	result := gateway.Process(ctx, store, lookup, svc, llm.ModelConfig{}, string(yamlBytes), gateway.Config{ThreadID: "t1"})

	require.NoError(t, result.Err)
	require.NotNil(t, result.ResumeCommand)
	assert.True(t, result.ResumeCommand.Approved)
	require.NotNil(t, result.ResumeCommand.Replacement)
	assert.Equal(t, "v2", result.ResumeCommand.Replacement.Version)
	require.Len(t, result.ResumeCommand.Replacement.Steps, 1)
	assert.Equal(t, "current_weather", result.ResumeCommand.Replacement.Steps[0].Capability)
}

func TestProcessEditInterruptWithUnparsableReplyErrors(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lookup := staticSchemas{}

	prior := state.New("t1", contextstore.New(lookup))
	prior.Control.PendingInterrupt = &interrupt.Payload{Kind: interrupt.PlanApproval, NodeName: "orchestration"}
	snap, err := checkpoint.Encode(prior)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "t1", snap))

	svc := stubService{decision: "edit"}
	result := gateway.Process(ctx, store, lookup, svc, llm.ModelConfig{}, "just swap step two for something else", gateway.Config{ThreadID: "t1"})

	require.Error(t, result.Err)
	assert.Nil(t, result.ResumeCommand)
}

func TestProcessUnrelatedReplyAbandonsPendingInterrupt(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lookup := staticSchemas{}

	prior := state.New("t1", contextstore.New(lookup))
	prior.Messages = []state.Message{{Role: "user", Content: "check the weather"}}
	prior.Control.PendingInterrupt = &interrupt.Payload{Kind: interrupt.PlanApproval, NodeName: "orchestration"}
	snap, err := checkpoint.Encode(prior)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "t1", snap))

	svc := stubService{decision: "other"}
	result := gateway.Process(ctx, store, lookup, svc, llm.ModelConfig{}, "what's the capital of France", gateway.Config{ThreadID: "t1"})

	require.NoError(t, result.Err)
	require.Nil(t, result.ResumeCommand)
	assert.False(t, result.ApprovalDetected)
	require.Len(t, result.AgentState.Messages, 2)
	assert.Equal(t, "what's the capital of France", result.AgentState.Messages[1].Content)
}

func TestProcessLoadSnapshotErrorSurfacesAsErr(t *testing.T) {
	store := memstore.New()
	require.NoError(t, store.Put(context.Background(), "t1", []byte("not a valid snapshot")))
	lookup := staticSchemas{}

	result := gateway.Process(context.Background(), store, lookup, nil, llm.ModelConfig{}, "hello", gateway.Config{ThreadID: "t1"})
	require.Error(t, result.Err)
	assert.True(t, strings.Contains(result.Err.Error(), "load snapshot"))
}
