package registry

import (
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/coriolis-labs/conductor/contextstore"
)

type (
	// ClassifierGuide is the material the classification node shows the
	// classifying model when deciding whether a capability is relevant to the
	// current task (spec §3).
	ClassifierGuide struct {
		Instructions string
		Examples     []ClassifierExample
	}

	// ClassifierExample is one worked classification example.
	ClassifierExample struct {
		Query         string
		ExpectedMatch bool
		Reason        string
	}

	// OrchestratorGuide is the material the orchestrator node shows the
	// planning model when deciding how and where to place a capability in a
	// Plan (spec §3).
	OrchestratorGuide struct {
		Instructions string
		Examples     []OrchestratorExample
		// Order is the presentation order used when listing capabilities in
		// the orchestrator prompt; lower sorts first.
		Order int
	}

	// OrchestratorExample is one worked step the orchestrator guide offers as
	// a planning precedent. It mirrors plan.Step's shape without importing
	// package plan, since plan does not otherwise depend on registry.
	OrchestratorExample struct {
		ContextKey      string
		Capability      string
		TaskObjective   string
		SuccessCriteria string
		ExpectedOutput  contextstore.Type
	}

	// RetryPolicy bounds how many times the router may send execution back
	// into the same capability in a single turn (spec §3, P3).
	RetryPolicy struct {
		MaxAttempts    int
		BaseDelaySec   float64
		BackoffFactor  float64
	}

	// ErrorClassifier maps a raw execution error to a severity. Each
	// capability supplies its own (spec §3 Capability descriptor, §7).
	ErrorClassifier func(err error) Severity

	// Severity is the router's classification of an execution error. Defined
	// here (not package router) so a capability descriptor can reference it
	// without registry depending on router.
	Severity string
)

const (
	SeverityRetriable       Severity = "RETRIABLE"
	SeverityReplanning      Severity = "REPLANNING"
	SeverityReclassification Severity = "RECLASSIFICATION"
	SeverityCritical        Severity = "CRITICAL"
	SeverityFatal           Severity = "FATAL"
)

// Executor is the function a capability registration lazily resolves to: a
// pure function of state producing a partial state delta (spec §4.3, §4.8).
// It is declared as `any -> (any, error)` at this layer because package
// registry must not import package state (state imports registry for
// Severity and RetryPolicy); package capability narrows this to the concrete
// state.Delta type at the wrapper boundary.
type Executor func(stateSnapshot any) (delta any, err error)

// CapabilityDescriptor is the fully-resolved registry record for one
// capability (spec §3 Capability descriptor).
type CapabilityDescriptor struct {
	Name             string
	Description      string
	Provides         []contextstore.Type
	Requires         []contextstore.Type
	AlwaysActive     bool
	ClassifierGuide  ClassifierGuide
	OrchestratorGuide OrchestratorGuide
	ErrorClassifier  ErrorClassifier
	RetryPolicy      RetryPolicy
	Execute          Executor
}

// ContextClassDescriptor is the fully-resolved registry record for one
// context type: its compiled schema and descriptive metadata (spec §4.2).
type ContextClassDescriptor struct {
	Type        contextstore.Type
	Description string
	Schema      *jsonschema.Schema
}

// InfrastructureNodeDescriptor is a resolved pipeline node that never
// appears as a plan step (task extraction, classification, orchestration,
// error handling — spec Glossary "Infrastructure node").
type InfrastructureNodeDescriptor struct {
	Name string
	Node Executor
}

// DataSourceDescriptor is a resolved declarative data source a capability's
// Execute closure may call into (e.g. a weather API client, a database
// handle). The registry only tracks its presence and metadata; capabilities
// obtain the resolved value through their own closures.
type DataSourceDescriptor struct {
	Name     string
	Metadata map[string]any
	Value    any
}

// ServiceDescriptor is a resolved declarative service dependency (an LLM
// completion service, a checkpoint store, a streaming sink — spec §6
// collaborator contracts).
type ServiceDescriptor struct {
	Name     string
	Metadata map[string]any
	Value    any
}

// PromptProvider supplies the text fragments the classifier and orchestrator
// prompts are assembled from, letting a deployment override the framework
// defaults per capability name (spec §4.1 "optional prompt_provider override
// map").
type PromptProvider interface {
	ClassifierPrompt(capability string, guide ClassifierGuide) string
	OrchestratorPrompt(capability string, guide OrchestratorGuide) string
}

// Registration is the uniform shape every entry takes before resolution:
// a declared name, the module_path/symbol_name coordinate the framework's
// auto-discovery contract documents (spec §4.1), and a Loader closure that
// performs the actual lazy resolution. Go has no dynamic symbol loading by
// string path outside the plugin package (unavailable for a statically
// linked deployment like this one), so ModulePath/SymbolName are retained as
// descriptive metadata for error messages and export() while Loader carries
// the real, statically-typed resolution — the idiomatic equivalent of
// "resolve module_path+symbol_name lazily" in a language without reflection
// -based dynamic imports.
type Registration struct {
	Name       string
	ModulePath string
	SymbolName string
	Metadata   map[string]any
	Loader     func() (any, error)
}
