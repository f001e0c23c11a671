package checkpoint_test

import (
	"strings"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/conductor/checkpoint"
	"github.com/coriolis-labs/conductor/contextstore"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/state"
)

type staticSchemas map[contextstore.Type]*jsonschema.Schema

func (s staticSchemas) SchemaFor(t contextstore.Type) (*jsonschema.Schema, bool) {
	sch, ok := s[t]
	return sch, ok
}

func compileAnySchema(t *testing.T) *jsonschema.Schema {
	t.Helper()
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(`{"type":"object"}`))
	require.NoError(t, err)
	require.NoError(t, c.AddResource("mem://weather.json", doc))
	sch, err := c.Compile("mem://weather.json")
	require.NoError(t, err)
	return sch
}

func TestEncodeDecodeRoundTripsScalarFields(t *testing.T) {
	lookup := staticSchemas{}
	s := state.New("t1", contextstore.New(lookup))
	task := "check the weather"
	s.Task.CurrentTask = &task
	s.Planning.ActiveCapabilities = map[string]bool{"current_weather": true}
	s.Planning.PlansCreated = 1
	s.Control.RetryCount = 2
	s.AgentControl.PlanningMode = true
	s.AgentControl.ApprovalMode = state.ApprovalAll

	b, err := checkpoint.Encode(s)
	require.NoError(t, err)

	got, err := checkpoint.Decode(b, lookup)
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ThreadID)
	require.NotNil(t, got.Task.CurrentTask)
	assert.Equal(t, task, *got.Task.CurrentTask)
	assert.True(t, got.Planning.ActiveCapabilities["current_weather"])
	assert.Equal(t, 1, got.Planning.PlansCreated)
	assert.Equal(t, 2, got.Control.RetryCount)
	assert.True(t, got.AgentControl.PlanningMode)
	assert.Equal(t, state.ApprovalAll, got.AgentControl.ApprovalMode)
}

func TestEncodeDecodeRoundTripsPlanAndPendingInterrupt(t *testing.T) {
	lookup := staticSchemas{}
	s := state.New("t1", contextstore.New(lookup))
	s.Planning.ExecutionPlan = &plan.Plan{
		OriginalTask: "check the weather",
		CreatedAt:    time.Unix(0, 0).UTC(),
		Version:      "1.0",
		Steps: []plan.Step{
			{ContextKey: "s1", Capability: plan.RespondCapability},
		},
	}
	s.Control.PendingInterrupt = &interrupt.Payload{
		Kind:     interrupt.PlanApproval,
		NodeName: "orchestration",
		Plan:     s.Planning.ExecutionPlan,
		Prompt:   "Approve this plan?",
	}

	b, err := checkpoint.Encode(s)
	require.NoError(t, err)

	got, err := checkpoint.Decode(b, lookup)
	require.NoError(t, err)
	require.NotNil(t, got.Planning.ExecutionPlan)
	assert.Equal(t, "check the weather", got.Planning.ExecutionPlan.OriginalTask)
	require.NotNil(t, got.Control.PendingInterrupt)
	assert.Equal(t, interrupt.PlanApproval, got.Control.PendingInterrupt.Kind)
	assert.Equal(t, "Approve this plan?", got.Control.PendingInterrupt.Prompt)
}

func TestEncodeDecodeRoundTripsContextStoreContents(t *testing.T) {
	sch := compileAnySchema(t)
	lookup := staticSchemas{"WEATHER_DATA": sch}
	ctx := contextstore.New(lookup)
	require.NoError(t, ctx.Store("WEATHER_DATA", "s1", map[string]any{"temp_c": 18.0}, "1.0", "Prague weather", ""))
	s := state.New("t1", ctx)

	b, err := checkpoint.Encode(s)
	require.NoError(t, err)

	got, err := checkpoint.Decode(b, lookup)
	require.NoError(t, err)
	v, ok := got.Context.Get("WEATHER_DATA", "s1")
	require.True(t, ok)
	assert.Equal(t, "Prague weather", v.Summary)
}

func TestDecodeEmptySnapshotProducesFreshContextStore(t *testing.T) {
	lookup := staticSchemas{}
	s := state.New("t1", contextstore.New(lookup))
	b, err := checkpoint.Encode(s)
	require.NoError(t, err)

	got, err := checkpoint.Decode(b, lookup)
	require.NoError(t, err)
	require.NotNil(t, got.Context)
	_, ok := got.Context.Get("WEATHER_DATA", "s1")
	assert.False(t, ok)
}
