// Package contextstore implements the typed, keyed, schema-validated context
// data model described in spec §4.2. Capabilities write their outputs here;
// downstream steps and the final respond/clarify capability read them back by
// (type, key) coordinate.
package contextstore

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type (
	// Type names a context kind (e.g. "WEATHER_DATA", "TURBINE_DATA"). Types
	// are declared with the Registry and carry a compiled schema used to
	// validate every value stored under them.
	Type string

	// Value is one stored context entry: a schema-validated payload plus the
	// bookkeeping the orchestrator prompt and downstream capabilities use to
	// address and describe it (spec §4.2 invariants).
	Value struct {
		Type          Type
		Key           string
		Payload       any
		SchemaVersion string
		Summary       string
		AccessHint    string
	}

	// Store is the two-level (type → key → Value) mapping for a single
	// conversation turn. Store is safe for concurrent use; the accompanying
	// Schemas registry is read-only after Registry.Initialize completes.
	Store struct {
		mu     sync.RWMutex
		byType map[Type]map[string]Value
		schema SchemaLookup
	}

	// SchemaLookup resolves the compiled JSON schema for a context Type.
	// Package registry implements this over its own type registrations.
	SchemaLookup interface {
		SchemaFor(t Type) (*jsonschema.Schema, bool)
	}

	// ExtractMode controls how ExtractFromStep treats unmet constraints.
	ExtractMode int
)

const (
	// Hard extraction fails the whole call if any requested type is unmet.
	Hard ExtractMode = iota
	// Soft extraction returns whatever it can resolve, silently omitting the rest.
	Soft
)

// ErrKeyExists is returned by Store when a (type, key) pair has already been
// written during this turn (spec P6: context append-only).
type ErrKeyExists struct {
	Type Type
	Key  string
}

func (e *ErrKeyExists) Error() string {
	return fmt.Sprintf("contextstore: key %q already exists for type %q", e.Key, e.Type)
}

// ErrSchemaUnknown is returned when a Type has no registered schema.
type ErrSchemaUnknown struct {
	Type Type
}

func (e *ErrSchemaUnknown) Error() string {
	return fmt.Sprintf("contextstore: no schema registered for type %q", e.Type)
}

// ErrSchemaViolation wraps a jsonschema validation failure.
type ErrSchemaViolation struct {
	Type  Type
	Cause error
}

func (e *ErrSchemaViolation) Error() string {
	return fmt.Sprintf("contextstore: payload for type %q violates schema: %v", e.Type, e.Cause)
}
func (e *ErrSchemaViolation) Unwrap() error { return e.Cause }

// New constructs an empty Store that validates payloads against schemas
// resolved through lookup.
func New(lookup SchemaLookup) *Store {
	return &Store{byType: make(map[Type]map[string]Value), schema: lookup}
}

// Store validates payload against the schema registered for t and, if valid,
// records a new Value under (t, key). It returns ErrKeyExists if the pair was
// already written this turn, ErrSchemaUnknown if t has no registered schema,
// or *ErrSchemaViolation if payload fails validation.
func (s *Store) Store(t Type, key string, payload any, schemaVersion, summary, accessHint string) error {
	sch, ok := s.schema.SchemaFor(t)
	if !ok {
		return &ErrSchemaUnknown{Type: t}
	}
	if err := validate(sch, payload); err != nil {
		return &ErrSchemaViolation{Type: t, Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.byType[t]
	if !ok {
		keys = make(map[string]Value)
		s.byType[t] = keys
	}
	if _, exists := keys[key]; exists {
		return &ErrKeyExists{Type: t, Key: key}
	}
	keys[key] = Value{
		Type:          t,
		Key:           key,
		Payload:       payload,
		SchemaVersion: schemaVersion,
		Summary:       summary,
		AccessHint:    accessHint,
	}
	return nil
}

func validate(sch *jsonschema.Schema, payload any) error {
	if sch == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return sch.Validate(decoded)
}

// Get retrieves the value stored under (t, key). The boolean reports whether
// it was found. Retrieval is O(1).
func (s *Store) Get(t Type, key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys, ok := s.byType[t]
	if !ok {
		return Value{}, false
	}
	v, ok := keys[key]
	return v, ok
}

// HumanSummary returns the stored summary for (t, key), or "" if absent.
func (s *Store) HumanSummary(t Type, key string) string {
	v, ok := s.Get(t, key)
	if !ok {
		return ""
	}
	return v.Summary
}

// AccessHint returns the stored access hint for (t, key), or "" if absent.
func (s *Store) AccessHint(t Type, key string) string {
	v, ok := s.Get(t, key)
	if !ok {
		return ""
	}
	return v.AccessHint
}

// Export returns a copy of the store's contents keyed by type then key, for
// serialization (spec §6 "Checkpoint contract": "snapshots are opaque byte
// sequences obtained by serializing Agent State"). The returned map is safe
// to mutate independently of the store.
func (s *Store) Export() map[Type]map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Type]map[string]Value, len(s.byType))
	for t, keys := range s.byType {
		kc := make(map[string]Value, len(keys))
		for k, v := range keys {
			kc[k] = v
		}
		out[t] = kc
	}
	return out
}

// Import rebuilds a Store from data previously produced by Export. Restored
// values are not re-validated against lookup's schemas: they were already
// validated once, on the original Store call, and a checkpoint restore must
// not fail on a value that was valid when written.
func Import(lookup SchemaLookup, data map[Type]map[string]Value) *Store {
	s := New(lookup)
	for t, keys := range data {
		kc := make(map[string]Value, len(keys))
		for k, v := range keys {
			kc[k] = v
		}
		s.byType[t] = kc
	}
	return s
}

// StepInputs names, for a single plan step, which context key satisfies each
// declared input type. This mirrors plan.Step.Inputs without importing
// package plan (which itself depends on contextstore), avoiding a cycle.
type StepInputs []map[Type]string

// ExtractFromStep resolves each of the requested constraints by consulting
// inputs, looking the referenced key up in the store. In Hard mode, any
// unresolved constraint returns a *ContextMissingError. In Soft mode, the
// returned map simply omits unresolved constraints.
func (s *Store) ExtractFromStep(inputs StepInputs, constraints []Type, mode ExtractMode) (map[Type]Value, error) {
	resolved := make(map[Type]string, len(inputs))
	for _, in := range inputs {
		for t, key := range in {
			resolved[t] = key
		}
	}

	out := make(map[Type]Value, len(constraints))
	var missing []Type
	for _, c := range constraints {
		key, ok := resolved[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		v, ok := s.Get(c, key)
		if !ok {
			missing = append(missing, c)
			continue
		}
		out[c] = v
	}

	if mode == Hard && len(missing) > 0 {
		return out, &ContextMissingError{Types: missing}
	}
	return out, nil
}

// ContextMissingError reports that one or more required context types could
// not be resolved for a step. The capability wrapper (capability.Run) reports
// it as a REPLANNING error when a step's inputs do not resolve its
// capability's requires (spec §7).
type ContextMissingError struct {
	Types []Type
}

func (e *ContextMissingError) Error() string {
	return fmt.Sprintf("contextstore: unresolved required context types: %v", e.Types)
}
