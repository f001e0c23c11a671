package state

import (
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/plan"
)

// Patch carries an explicit set-or-clear instruction for a field whose zero
// value is itself meaningful (e.g. a nil *plan.Plan means "no plan", which
// is different from "this delta does not touch the plan"). Touched
// distinguishes the two; an untouched Patch leaves the State field alone.
type Patch[T any] struct {
	Touched bool
	Value   T
}

// Set returns a Patch that overwrites the field with v (v's zero value is a
// valid, explicit clear — e.g. Set[*plan.Plan](nil) clears the plan).
func Set[T any](v T) Patch[T] {
	return Patch[T]{Touched: true, Value: v}
}

// Delta is the partial record a node returns; Merge folds it into a State.
// Every field not set is left untouched in the resulting State (spec §4.3:
// "messages use an append-merge, all other fields use last-write-wins").
type Delta struct {
	MessagesAppend []Message

	CurrentTask          Patch[*string]
	DependsOnChatHistory Patch[bool]
	DependsOnUserMemory  Patch[bool]

	ActiveCapabilities Patch[map[string]bool]
	ExecutionPlan      Patch[*plan.Plan]
	CurrentStepIndex   Patch[int]
	PlansCreated       Patch[int]

	IsKilled              Patch[bool]
	TimedOut              Patch[bool]
	HasError              Patch[bool]
	ErrorInfo             Patch[*ErrorRecord]
	RetryCount            Patch[int]
	ReclassificationCount Patch[int]
	PendingInterrupt      Patch[*interrupt.Payload]

	PlanningMode         Patch[bool]
	ApprovalMode         Patch[ApprovalMode]
	Debug                Patch[bool]
	BypassTaskExtraction Patch[bool]
	BypassClassification Patch[bool]
}

// Merge folds d into s and returns the resulting State. s is never mutated;
// Merge only ever replaces whole field values, so concurrent readers holding
// an older State value continue to observe it unchanged (spec §4.3
// rationale: "delta-return... makes checkpointing trivial").
func Merge(s State, d Delta) State {
	next := s

	if len(d.MessagesAppend) > 0 {
		merged := make([]Message, 0, len(s.Messages)+len(d.MessagesAppend))
		merged = append(merged, s.Messages...)
		merged = append(merged, d.MessagesAppend...)
		next.Messages = merged
	}

	if d.CurrentTask.Touched {
		next.Task.CurrentTask = d.CurrentTask.Value
	}
	if d.DependsOnChatHistory.Touched {
		next.Task.DependsOnChatHistory = d.DependsOnChatHistory.Value
	}
	if d.DependsOnUserMemory.Touched {
		next.Task.DependsOnUserMemory = d.DependsOnUserMemory.Value
	}

	if d.ActiveCapabilities.Touched {
		next.Planning.ActiveCapabilities = d.ActiveCapabilities.Value
	}
	if d.ExecutionPlan.Touched {
		next.Planning.ExecutionPlan = d.ExecutionPlan.Value
	}
	if d.CurrentStepIndex.Touched {
		next.Planning.CurrentStepIndex = d.CurrentStepIndex.Value
	}
	if d.PlansCreated.Touched {
		next.Planning.PlansCreated = d.PlansCreated.Value
	}

	if d.IsKilled.Touched {
		next.Control.IsKilled = d.IsKilled.Value
	}
	if d.TimedOut.Touched {
		next.Control.TimedOut = d.TimedOut.Value
	}
	if d.HasError.Touched {
		next.Control.HasError = d.HasError.Value
	}
	if d.ErrorInfo.Touched {
		next.Control.ErrorInfo = d.ErrorInfo.Value
	}
	if d.RetryCount.Touched {
		next.Control.RetryCount = d.RetryCount.Value
	}
	if d.ReclassificationCount.Touched {
		next.Control.ReclassificationCount = d.ReclassificationCount.Value
	}
	if d.PendingInterrupt.Touched {
		next.Control.PendingInterrupt = d.PendingInterrupt.Value
	}

	if d.PlanningMode.Touched {
		next.AgentControl.PlanningMode = d.PlanningMode.Value
	}
	if d.ApprovalMode.Touched {
		next.AgentControl.ApprovalMode = d.ApprovalMode.Value
	}
	if d.Debug.Touched {
		next.AgentControl.Debug = d.Debug.Value
	}
	if d.BypassTaskExtraction.Touched {
		next.AgentControl.BypassTaskExtraction = d.BypassTaskExtraction.Value
	}
	if d.BypassClassification.Touched {
		next.AgentControl.BypassClassification = d.BypassClassification.Value
	}

	return next
}

// ClearForReplan returns the Delta the router issues on a REPLANNING
// transition (spec §4.4 step 2e): clear the plan and the error, leave
// plans_created for the caller to set to its incremented value.
func ClearForReplan() Delta {
	return Delta{
		ExecutionPlan:    Set[*plan.Plan](nil),
		HasError:         Set(false),
		ErrorInfo:        Set[*ErrorRecord](nil),
		PendingInterrupt: Set[*interrupt.Payload](nil),
	}
}

// ClearForReclassification returns the Delta the router issues on a
// RECLASSIFICATION transition (spec §4.4 step 2f): clear plan, active
// capabilities, and error.
func ClearForReclassification() Delta {
	return Delta{
		ExecutionPlan:      Set[*plan.Plan](nil),
		ActiveCapabilities: Set[map[string]bool](nil),
		HasError:           Set(false),
		ErrorInfo:          Set[*ErrorRecord](nil),
		PendingInterrupt:   Set[*interrupt.Payload](nil),
	}
}

// ClearInterrupt returns the Delta the graph driver merges after a
// ResumeCommand has resolved a pending interrupt, whatever the outcome
// (spec §4.9: the node "then either proceeds, raises a REPLANNING error, or
// terminates" — in all three cases the suspension itself is over).
func ClearInterrupt() Delta {
	return Delta{PendingInterrupt: Set[*interrupt.Payload](nil)}
}
