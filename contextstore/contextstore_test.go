package contextstore_test

import (
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/conductor/contextstore"
)

type staticSchemas map[contextstore.Type]*jsonschema.Schema

func (s staticSchemas) SchemaFor(t contextstore.Type) (*jsonschema.Schema, bool) {
	sch, ok := s[t]
	return sch, ok
}

func compile(t *testing.T, schemaJSON string) *jsonschema.Schema {
	t.Helper()
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	require.NoError(t, err)
	require.NoError(t, c.AddResource("mem://schema.json", doc))
	sch, err := c.Compile("mem://schema.json")
	require.NoError(t, err)
	return sch
}

func TestStoreAndGet(t *testing.T) {
	schema := compile(t, `{"type":"object","required":["power"],"properties":{"power":{"type":"number"}}}`)
	store := contextstore.New(staticSchemas{"TURBINE_DATA": schema})

	err := store.Store("TURBINE_DATA", "k1", map[string]any{"power": 42.0}, "v1", "turbine k1 power reading", "context.TURBINE_DATA.k1.power")
	require.NoError(t, err)

	v, ok := store.Get("TURBINE_DATA", "k1")
	require.True(t, ok)
	assert.Equal(t, "context.TURBINE_DATA.k1.power", v.AccessHint)
}

func TestStoreRejectsDuplicateKey(t *testing.T) {
	schema := compile(t, `{"type":"object"}`)
	store := contextstore.New(staticSchemas{"T": schema})

	require.NoError(t, store.Store("T", "k", map[string]any{}, "v1", "", ""))
	err := store.Store("T", "k", map[string]any{}, "v1", "", "")
	var dupErr *contextstore.ErrKeyExists
	require.ErrorAs(t, err, &dupErr)
}

func TestStoreRejectsSchemaViolation(t *testing.T) {
	schema := compile(t, `{"type":"object","required":["power"]}`)
	store := contextstore.New(staticSchemas{"T": schema})

	err := store.Store("T", "k", map[string]any{}, "v1", "", "")
	var violation *contextstore.ErrSchemaViolation
	require.ErrorAs(t, err, &violation)
}

func TestStoreUnknownSchema(t *testing.T) {
	store := contextstore.New(staticSchemas{})
	err := store.Store("UNKNOWN", "k", map[string]any{}, "v1", "", "")
	var unknown *contextstore.ErrSchemaUnknown
	require.ErrorAs(t, err, &unknown)
}

func TestExtractFromStepHardFailsOnMissing(t *testing.T) {
	schema := compile(t, `{"type":"object"}`)
	store := contextstore.New(staticSchemas{"T": schema})
	require.NoError(t, store.Store("T", "k1", map[string]any{}, "v1", "", ""))

	inputs := contextstore.StepInputs{{"T": "k1"}}
	_, err := store.ExtractFromStep(inputs, []contextstore.Type{"T", "OTHER"}, contextstore.Hard)
	var missing *contextstore.ContextMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []contextstore.Type{"OTHER"}, missing.Types)
}

func TestExtractFromStepSoftOmitsMissing(t *testing.T) {
	schema := compile(t, `{"type":"object"}`)
	store := contextstore.New(staticSchemas{"T": schema})
	require.NoError(t, store.Store("T", "k1", map[string]any{}, "v1", "", ""))

	inputs := contextstore.StepInputs{{"T": "k1"}}
	got, err := store.ExtractFromStep(inputs, []contextstore.Type{"T", "OTHER"}, contextstore.Soft)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	_, hasT := got["T"]
	assert.True(t, hasT)
}
