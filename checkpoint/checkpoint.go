// Package checkpoint defines the generic key-addressed snapshot contract the
// orchestration core requires of its persistence collaborator (spec §6
// "Checkpoint contract"), plus the Encode/Decode codec that turns an Agent
// State into the opaque byte sequence the contract persists. Concrete
// storage backends (in-memory, Redis, MongoDB) live under adapters/checkpoint
// and implement Store; the core never depends on a specific one.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coriolis-labs/conductor/contextstore"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/state"
)

// Store is the checkpoint collaborator contract (spec §6): get the last
// snapshot for a thread, or none; put a new one; per-thread writes are
// atomic. Snapshots are opaque to Store implementations — they exist only to
// be handed back to Decode.
type Store interface {
	Get(ctx context.Context, threadID string) (snapshot []byte, found bool, err error)
	Put(ctx context.Context, threadID string, snapshot []byte) error
}

// snapshot is the wire shape Encode/Decode round-trip. contextstore.Store's
// internal map is unexported, so its contents travel via Export/Import
// rather than struct tags.
type snapshot struct {
	ThreadID     string
	Messages     []state.Message
	Task         state.TaskState
	Planning     planningSnapshot
	Control      controlSnapshot
	AgentControl state.AgentControl
	Context      map[contextstore.Type]map[string]contextstore.Value
}

type planningSnapshot struct {
	ActiveCapabilities map[string]bool
	ExecutionPlan      *plan.Plan
	CurrentStepIndex   int
	PlansCreated       int
}

type controlSnapshot struct {
	IsKilled              bool
	TimedOut              bool
	HasError              bool
	ErrorInfo             *state.ErrorRecord
	RetryCount            int
	ReclassificationCount int
	PendingInterrupt      *interrupt.Payload
}

// Encode serializes s into the opaque snapshot bytes Store persists.
func Encode(s state.State) ([]byte, error) {
	snap := snapshot{
		ThreadID: s.ThreadID,
		Messages: s.Messages,
		Task:     s.Task,
		Planning: planningSnapshot{
			ActiveCapabilities: s.Planning.ActiveCapabilities,
			ExecutionPlan:      s.Planning.ExecutionPlan,
			CurrentStepIndex:   s.Planning.CurrentStepIndex,
			PlansCreated:       s.Planning.PlansCreated,
		},
		Control: controlSnapshot{
			IsKilled:              s.Control.IsKilled,
			TimedOut:              s.Control.TimedOut,
			HasError:              s.Control.HasError,
			ErrorInfo:             s.Control.ErrorInfo,
			RetryCount:            s.Control.RetryCount,
			ReclassificationCount: s.Control.ReclassificationCount,
			PendingInterrupt:      s.Control.PendingInterrupt,
		},
		AgentControl: s.AgentControl,
	}
	if s.Context != nil {
		snap.Context = s.Context.Export()
	}

	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encode: %w", err)
	}
	return b, nil
}

// Decode rebuilds a State from bytes Encode produced. lookup resolves
// context-type schemas for the restored store; callers pass the same
// registry the original turn used.
func Decode(data []byte, lookup contextstore.SchemaLookup) (state.State, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return state.State{}, fmt.Errorf("checkpoint: decode: %w", err)
	}

	ctx := contextstore.New(lookup)
	if snap.Context != nil {
		ctx = contextstore.Import(lookup, snap.Context)
	}

	return state.State{
		ThreadID: snap.ThreadID,
		Messages: snap.Messages,
		Task:     snap.Task,
		Planning: state.PlanningState{
			ActiveCapabilities: snap.Planning.ActiveCapabilities,
			ExecutionPlan:      snap.Planning.ExecutionPlan,
			CurrentStepIndex:   snap.Planning.CurrentStepIndex,
			PlansCreated:       snap.Planning.PlansCreated,
		},
		Control: state.ControlState{
			IsKilled:              snap.Control.IsKilled,
			TimedOut:              snap.Control.TimedOut,
			HasError:              snap.Control.HasError,
			ErrorInfo:             snap.Control.ErrorInfo,
			RetryCount:            snap.Control.RetryCount,
			ReclassificationCount: snap.Control.ReclassificationCount,
			PendingInterrupt:      snap.Control.PendingInterrupt,
		},
		AgentControl: snap.AgentControl,
		Context:      ctx,
	}, nil
}
