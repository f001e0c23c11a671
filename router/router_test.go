package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/router"
	"github.com/coriolis-labs/conductor/state"
)

func freshState() state.State {
	return state.New("t1", nil)
}

func TestDecideIsDeterministic(t *testing.T) {
	s := freshState()
	d1 := router.Decide(s, router.DefaultLimits)
	d2 := router.Decide(s, router.DefaultLimits)
	assert.Equal(t, d1.Next, d2.Next)
}

func TestDecideReturnsSuspendedOverEverythingElse(t *testing.T) {
	s := freshState()
	s.Control.IsKilled = true
	s.Control.PendingInterrupt = &interrupt.Payload{Kind: interrupt.PlanApproval}

	d := router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.Suspended, d.Next)
}

func TestDecideReturnsEndWhenKilled(t *testing.T) {
	s := freshState()
	s.Control.IsKilled = true
	s.Control.HasError = true
	s.Control.ErrorInfo = &state.ErrorRecord{Classification: state.ErrorClassification{Severity: registry.SeverityCritical}}

	d := router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.End, d.Next)
}

func TestDecideRoutesToTaskExtractionFirst(t *testing.T) {
	s := freshState()
	d := router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.TaskExtraction, d.Next)
}

func TestDecideSkipsTaskExtractionWhenBypassed(t *testing.T) {
	s := freshState()
	s.AgentControl.BypassTaskExtraction = true
	d := router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.Classifier, d.Next)
}

func TestDecideRoutesToClassifierThenOrchestratorThenStep(t *testing.T) {
	s := freshState()
	task := "what's the weather"
	s.Task.CurrentTask = &task
	d := router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.Classifier, d.Next)

	s.Planning.ActiveCapabilities = map[string]bool{"current_weather": true, plan.RespondCapability: true}
	d = router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.Orchestrator, d.Next)

	s.Planning.ExecutionPlan = &plan.Plan{Steps: []plan.Step{
		{ContextKey: "s1", Capability: "current_weather"},
		{ContextKey: "s2", Capability: plan.RespondCapability},
	}}
	d = router.Decide(s, router.DefaultLimits)
	assert.Equal(t, "current_weather", d.Next)

	s.Planning.CurrentStepIndex = 2
	d = router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.End, d.Next)
}

func TestDecideRetriableRetriesUntilMaxAttemptsThenErrorNode(t *testing.T) {
	s := freshState()
	task := "x"
	s.Task.CurrentTask = &task
	s.Planning.ActiveCapabilities = map[string]bool{}
	s.Planning.ExecutionPlan = &plan.Plan{Steps: []plan.Step{{ContextKey: "s1", Capability: "current_weather"}}}

	s.Control.HasError = true
	s.Control.ErrorInfo = &state.ErrorRecord{
		CapabilityName: "current_weather",
		Classification: state.ErrorClassification{Severity: registry.SeverityRetriable},
		RetryPolicy:    registry.RetryPolicy{MaxAttempts: 2, BaseDelaySec: 0, BackoffFactor: 1},
	}

	d := router.Decide(s, router.DefaultLimits)
	require.Equal(t, "current_weather", d.Next)
	s = state.Merge(s, d.Delta)
	assert.Equal(t, 1, s.Control.RetryCount)

	s.Control.HasError = true
	s.Control.ErrorInfo = &state.ErrorRecord{
		CapabilityName: "current_weather",
		Classification: state.ErrorClassification{Severity: registry.SeverityRetriable},
		RetryPolicy:    registry.RetryPolicy{MaxAttempts: 2, BaseDelaySec: 0, BackoffFactor: 1},
	}
	d = router.Decide(s, router.DefaultLimits)
	require.Equal(t, "current_weather", d.Next)
	s = state.Merge(s, d.Delta)
	assert.Equal(t, 2, s.Control.RetryCount)

	s.Control.HasError = true
	s.Control.ErrorInfo = &state.ErrorRecord{
		CapabilityName: "current_weather",
		Classification: state.ErrorClassification{Severity: registry.SeverityRetriable},
		RetryPolicy:    registry.RetryPolicy{MaxAttempts: 2, BaseDelaySec: 0, BackoffFactor: 1},
	}
	d = router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.ErrorNode, d.Next)
}

func TestDecideReplanningBoundedByMaxPlanningAttempts(t *testing.T) {
	s := freshState()
	s.Planning.PlansCreated = router.DefaultLimits.MaxPlanningAttempts
	s.Control.HasError = true
	s.Control.ErrorInfo = &state.ErrorRecord{Classification: state.ErrorClassification{Severity: registry.SeverityReplanning}}

	d := router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.ErrorNode, d.Next)

	s.Planning.PlansCreated = router.DefaultLimits.MaxPlanningAttempts - 1
	d = router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.Orchestrator, d.Next)
}

func TestDecideReclassificationBoundedByMaxReclassifications(t *testing.T) {
	s := freshState()
	s.Control.ReclassificationCount = router.DefaultLimits.MaxReclassifications
	s.Control.HasError = true
	s.Control.ErrorInfo = &state.ErrorRecord{Classification: state.ErrorClassification{Severity: registry.SeverityReclassification}}

	d := router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.ErrorNode, d.Next)

	s.Control.ReclassificationCount = router.DefaultLimits.MaxReclassifications - 1
	d = router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.Classifier, d.Next)
}

func TestDecideFatalAlwaysEnds(t *testing.T) {
	s := freshState()
	s.Control.HasError = true
	s.Control.ErrorInfo = &state.ErrorRecord{Classification: state.ErrorClassification{Severity: registry.SeverityFatal}}
	d := router.Decide(s, router.DefaultLimits)
	assert.Equal(t, router.End, d.Next)
}
