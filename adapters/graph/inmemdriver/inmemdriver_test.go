package inmemdriver_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/conductor/adapters/checkpoint/memstore"
	"github.com/coriolis-labs/conductor/adapters/graph/inmemdriver"
	"github.com/coriolis-labs/conductor/capability"
	"github.com/coriolis-labs/conductor/graph"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/nodes/errornode"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
)

// scriptedService is a deterministic llm.Service stub. Each of the three
// infra nodes passes its own fixed schema-hint string as the schema
// argument, so the response to send back is chosen by sniffing a
// distinguishing substring of that hint rather than tracking call order.
type scriptedService struct{}

func (scriptedService) Complete(ctx context.Context, prompt string, cfg llm.ModelConfig) (string, error) {
	return "a short explanation", nil
}

func (scriptedService) CompleteStructured(ctx context.Context, prompt string, cfg llm.ModelConfig, schema any) (map[string]any, error) {
	hint, _ := schema.(string)
	switch {
	case strings.Contains(hint, "depends_on_chat_history"):
		return map[string]any{
			"task":                    "tell the user the current weather",
			"depends_on_chat_history": false,
			"depends_on_user_memory":  false,
		}, nil
	case strings.Contains(hint, "relevant"):
		return map[string]any{"relevant": true, "reason": "weather was asked about"}, nil
	case strings.Contains(hint, "steps"):
		return map[string]any{
			"steps": []any{
				map[string]any{
					"context_key":      "s1",
					"capability":       "current_weather",
					"task_objective":   "look up the weather",
					"success_criteria": "weather retrieved",
				},
				map[string]any{
					"context_key":      "s2",
					"capability":       "respond",
					"task_objective":   "tell the user",
					"success_criteria": "user informed",
				},
			},
		}, nil
	}
	return nil, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()

	infra := make([]registry.Registration, 0, len(registry.RequiredInfrastructureNodes))
	for _, name := range registry.RequiredInfrastructureNodes {
		name := name
		infra = append(infra, registry.Registration{
			Name:       name,
			ModulePath: "nodes/" + name,
			SymbolName: "Run",
			Loader: func() (any, error) {
				return registry.InfrastructureNodeDescriptor{
					Name: name,
					Node: func(s any) (any, error) { return nil, nil },
				}, nil
			},
		})
	}

	capabilities := []registry.Registration{
		{
			Name:       "current_weather",
			ModulePath: "capabilities/weather",
			SymbolName: "Descriptor",
			Loader: func() (any, error) {
				return registry.CapabilityDescriptor{
					Name:              "current_weather",
					Description:       "fetches current weather for a location",
					AlwaysActive:      false,
					ClassifierGuide:   registry.ClassifierGuide{Instructions: "match queries about the weather"},
					OrchestratorGuide: registry.OrchestratorGuide{Order: 1},
					RetryPolicy:       registry.RetryPolicy{MaxAttempts: 3, BaseDelaySec: 1, BackoffFactor: 2},
					Execute:           capability.AsRegistryExecutor(func(ctx *capability.ExecutionContext) (state.Delta, error) { return state.Delta{}, nil }),
				}, nil
			},
		},
		{
			Name:       "respond",
			ModulePath: "capabilities/respond",
			SymbolName: "Descriptor",
			Loader: func() (any, error) {
				return registry.CapabilityDescriptor{
					Name:              "respond",
					Description:       "sends the final reply to the user",
					AlwaysActive:      true,
					OrchestratorGuide: registry.OrchestratorGuide{Order: 100},
					Execute:           capability.AsRegistryExecutor(func(ctx *capability.ExecutionContext) (state.Delta, error) { return state.Delta{}, nil }),
				}, nil
			},
		},
	}

	require.NoError(t, reg.Register(registry.ConfigProvider{
		Capabilities:        capabilities,
		InfrastructureNodes: infra,
	}))
	require.NoError(t, reg.Initialize())
	return reg
}

func freshState(threadID, firstMessage string) state.State {
	s := state.New(threadID, nil)
	s.Messages = []state.Message{{Role: "user", Content: firstMessage}}
	return s
}

func TestRunDrivesHappyPathToCompletion(t *testing.T) {
	reg := testRegistry(t)
	d := &inmemdriver.Driver{
		Registry:    reg,
		Service:     scriptedService{},
		ModelConfig: llm.ModelConfig{},
	}
	var driver graph.Driver = d

	outcome := driver.Run(context.Background(), freshState("t1", "what's the weather like?"))

	require.NoError(t, outcome.Err)
	assert.False(t, outcome.Suspended)
	assert.Nil(t, outcome.Report)
	assert.False(t, outcome.State.Control.HasError)
	require.NotNil(t, outcome.State.Planning.ExecutionPlan)
	assert.Equal(t, len(outcome.State.Planning.ExecutionPlan.Steps), outcome.State.Planning.CurrentStepIndex)
}

func TestRunSuspendsForPlanApprovalWhenPlanningModeIsOn(t *testing.T) {
	reg := testRegistry(t)
	store := memstore.New()
	d := &inmemdriver.Driver{
		Registry:     reg,
		Service:      scriptedService{},
		ModelConfig:  llm.ModelConfig{},
		Checkpointer: store,
	}

	s := freshState("t2", "what's the weather like?")
	s.AgentControl.PlanningMode = true

	outcome := d.Run(context.Background(), s)

	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Suspended)
	require.NotNil(t, outcome.State.Control.PendingInterrupt)
	assert.Equal(t, interrupt.PlanApproval, outcome.State.Control.PendingInterrupt.Kind)

	_, found, err := store.Get(context.Background(), "t2")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestResumeApprovedPlanContinuesToCompletion(t *testing.T) {
	reg := testRegistry(t)
	d := &inmemdriver.Driver{
		Registry:    reg,
		Service:     scriptedService{},
		ModelConfig: llm.ModelConfig{},
	}

	s := freshState("t3", "what's the weather like?")
	s.AgentControl.PlanningMode = true
	suspended := d.Run(context.Background(), s)
	require.True(t, suspended.Suspended)

	outcome := d.Resume(context.Background(), suspended.State, interrupt.ResumeCommand{Approved: true})

	require.NoError(t, outcome.Err)
	assert.False(t, outcome.Suspended)
	assert.Nil(t, outcome.Report)
	assert.False(t, outcome.State.Control.HasError)
}

func TestResumeRejectedPlanCancelsWithoutReplanning(t *testing.T) {
	reg := testRegistry(t)
	d := &inmemdriver.Driver{
		Registry:    reg,
		Service:     scriptedService{},
		ModelConfig: llm.ModelConfig{},
	}

	s := freshState("t4", "what's the weather like?")
	s.AgentControl.PlanningMode = true
	suspended := d.Run(context.Background(), s)
	require.True(t, suspended.Suspended)

	outcome := d.Resume(context.Background(), suspended.State, interrupt.ResumeCommand{Approved: false, Reason: "not this plan"})

	// ApprovalRejected is not a failure (spec §7): the turn is routed
	// straight to respond with a cancellation message and ends there,
	// rather than burning a plans_created attempt on a fresh orchestration
	// cycle (scenario S6).
	require.NoError(t, outcome.Err)
	assert.False(t, outcome.Suspended)
	assert.Nil(t, outcome.Report)
	assert.False(t, outcome.State.Control.HasError)
	assert.Nil(t, outcome.State.Control.PendingInterrupt)
	// plans_created stays at the single attempt the original orchestration
	// pass made before suspending; rejection never triggers a second one.
	assert.Equal(t, 1, outcome.State.Planning.PlansCreated)
}

func TestRunRecursionLimitProducesInfrastructureReport(t *testing.T) {
	reg := testRegistry(t)
	d := &inmemdriver.Driver{
		Registry:    reg,
		Service:     scriptedService{},
		ModelConfig: llm.ModelConfig{},
		Config:      graph.Config{RecursionLimit: 1},
	}

	outcome := d.Run(context.Background(), freshState("t5", "what's the weather like?"))

	require.NoError(t, outcome.Err)
	require.NotNil(t, outcome.Report)
	assert.Equal(t, errornode.Infrastructure, outcome.Report.ErrorType)
}

func TestRunMaxExecutionTimeProducesTimeoutReport(t *testing.T) {
	reg := testRegistry(t)

	calls := 0
	clock := func() time.Time {
		calls++
		base := time.Unix(0, 0)
		if calls > 1 {
			return base.Add(time.Hour)
		}
		return base
	}

	d := &inmemdriver.Driver{
		Registry:    reg,
		Service:     scriptedService{},
		ModelConfig: llm.ModelConfig{},
		Config: graph.Config{
			MaxExecutionTimeSeconds: 1,
			Clock:                   clock,
		},
	}

	outcome := d.Run(context.Background(), freshState("t6", "what's the weather like?"))

	require.NoError(t, outcome.Err)
	require.NotNil(t, outcome.Report)
	assert.Equal(t, errornode.Timeout, outcome.Report.ErrorType)
	assert.True(t, outcome.State.Control.IsKilled)
	assert.True(t, outcome.State.Control.TimedOut)
}

func TestPlan_minimalValidShape(t *testing.T) {
	p := &plan.Plan{
		Steps: []plan.Step{
			{ContextKey: "s1", Capability: "current_weather"},
			{ContextKey: "s2", Capability: "respond"},
		},
	}
	active := map[string]bool{"current_weather": true, "respond": true}
	assert.NoError(t, plan.Validate(p, active))
}
