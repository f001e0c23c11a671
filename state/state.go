// Package state defines the single flat Agent State record mutated by every
// node in the orchestration graph (spec §4.3). State itself is never mutated
// in place: nodes return a Delta, and Merge folds it into a new State value.
// Messages append-merge; every other field is last-write-wins.
package state

import (
	"github.com/coriolis-labs/conductor/contextstore"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/registry"
)

// Message is one conversation turn's worth of content. Role follows the
// common "user"/"assistant"/"system" convention; content is plain text.
type Message struct {
	Role    string
	Content string
}

// TaskState holds the single self-contained task sentence the task
// extraction node distills from the conversation (spec §4.5).
type TaskState struct {
	CurrentTask          *string
	DependsOnChatHistory bool
	DependsOnUserMemory  bool
}

// PlanningState holds the classifier's active-capability set and the
// orchestrator's current execution plan (spec §4.6, §4.7).
type PlanningState struct {
	ActiveCapabilities map[string]bool
	ExecutionPlan      *plan.Plan
	CurrentStepIndex   int
	PlansCreated       int
}

// ErrorClassification is the severity and user-facing framing a capability's
// error_classifier attaches to a raised error (spec §3 ErrorClassification).
type ErrorClassification struct {
	Severity    registry.Severity
	UserMessage string
	Metadata    map[string]any
}

// ErrorRecord is the structured failure record the capability execution
// wrapper populates on a raised error (spec §3 ErrorRecord, §4.8 step 4).
type ErrorRecord struct {
	CapabilityName       string
	OriginalError        string
	TechnicalDetails      string
	Classification       ErrorClassification
	ExecutionTimeSeconds float64
	RetryPolicy          registry.RetryPolicy
}

// ControlState holds the router's own bookkeeping: kill/error flags, the
// error record, and the retry/reclassification counters the decision
// procedure reads (spec §4.4).
type ControlState struct {
	IsKilled bool
	// TimedOut is set by the graph driver, alongside IsKilled, when a turn's
	// elapsed time exceeds execution_control.limits.max_execution_time_seconds
	// (spec §5). It distinguishes that case from an externally signaled kill:
	// both terminate the turn via IsKilled, but only a timeout should be
	// reported to the user as error_node's TIMEOUT error_type rather than
	// KILLED (spec §4.10 Report structure).
	TimedOut              bool
	HasError              bool
	ErrorInfo             *ErrorRecord
	RetryCount            int
	ReclassificationCount int
	// PendingInterrupt is non-nil exactly when a node suspended this turn
	// awaiting approval (spec §4.9). The driver checkpoints state with this
	// set and returns it to the caller instead of continuing the graph; it
	// is cleared the moment a ResumeCommand resolves the suspension.
	PendingInterrupt *interrupt.Payload
}

// ApprovalMode is one of the three interrupt policy modes (spec §4.9).
type ApprovalMode string

const (
	ApprovalDisabled  ApprovalMode = "DISABLED"
	ApprovalSelective ApprovalMode = "SELECTIVE"
	ApprovalAll       ApprovalMode = "ALL"
)

// AgentControl holds the slash-command-adjustable knobs (spec §3
// AgentControl, §6 slash-command surface).
type AgentControl struct {
	PlanningMode         bool
	ApprovalMode         ApprovalMode
	Debug                bool
	BypassTaskExtraction bool
	BypassClassification bool
}

// State is the record every node reads and, via Delta, writes (spec §4.3).
// Context is a shared pointer rather than a patchable field: the context
// store enforces its own append-only discipline internally (P6), so nodes
// write to it directly as a side effect rather than through the delta-merge
// path, exactly as a capability's execute closure does for its own output.
type State struct {
	ThreadID     string
	Messages     []Message
	Task         TaskState
	Planning     PlanningState
	Control      ControlState
	AgentControl AgentControl
	Context      *contextstore.Store
}

// New constructs the initial State for a fresh conversation thread (spec
// §3 Agent State lifecycle: "created by Gateway on each user turn from the
// prior persisted snapshot").
func New(threadID string, ctx *contextstore.Store) State {
	return State{
		ThreadID: threadID,
		Context:  ctx,
		AgentControl: AgentControl{
			ApprovalMode: ApprovalDisabled,
		},
	}
}

// CurrentStep returns the plan step the router is about to dispatch, or
// false if there is no plan, or the index is out of range.
func (s State) CurrentStep() (plan.Step, bool) {
	if s.Planning.ExecutionPlan == nil {
		return plan.Step{}, false
	}
	steps := s.Planning.ExecutionPlan.Steps
	if s.Planning.CurrentStepIndex < 0 || s.Planning.CurrentStepIndex >= len(steps) {
		return plan.Step{}, false
	}
	return steps[s.Planning.CurrentStepIndex], true
}
