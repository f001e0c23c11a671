package temporal

import (
	"context"
	"time"

	"github.com/coriolis-labs/conductor/capability"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/nodes/classification"
	"github.com/coriolis-labs/conductor/nodes/errornode"
	"github.com/coriolis-labs/conductor/nodes/orchestration"
	"github.com/coriolis-labs/conductor/nodes/taskextraction"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
	"github.com/coriolis-labs/conductor/stream"
)

// Activities groups every non-deterministic operation a turn performs — LLM
// calls, capability side effects, stream event delivery — behind Temporal
// activity methods. TurnWorkflow never calls these directly; it dispatches
// through workflow.ExecuteActivity so Temporal can retry, time out, and
// record each call in workflow history independently of the deterministic
// replay of the workflow function itself. Grounded on
// adapters/graph/inmemdriver.Driver, whose Run/dispatchCapability this
// mirrors one-for-one, split across the workflow/activity boundary.
type Activities struct {
	Registry     *registry.Registry
	Service      llm.Service
	ModelConfig  llm.ModelConfig
	RunPolicy    capability.RunPolicy
	ToolMetadata map[string]capability.ToolMetadata
	Stream       stream.Sink
}

// ExtractTaskActivity runs the task extraction infra node (spec §4.5).
func (a *Activities) ExtractTaskActivity(ctx context.Context, s state.State) (state.Delta, error) {
	return taskextraction.Run(ctx, a.Service, a.ModelConfig, s)
}

// ClassifyActivity runs the classification infra node (spec §4.6).
func (a *Activities) ClassifyActivity(ctx context.Context, s state.State) (state.Delta, error) {
	return classification.Run(ctx, a.Registry, a.Service, a.ModelConfig, s)
}

// OrchestrateActivity runs the orchestrator infra node (spec §4.7).
func (a *Activities) OrchestrateActivity(ctx context.Context, s state.State) (orchestration.Result, error) {
	return orchestration.Run(ctx, a.Registry, a.Service, a.ModelConfig, s)
}

// ErrorReportActivity runs the terminal error-report node (spec §4.10),
// producing the user-facing explanation a FATAL/CRITICAL/exhausted turn
// surfaces. now is passed in rather than captured via time.Now inside the
// activity so a replay-safe timestamp (workflow.Now on the caller side)
// flows through even though the activity itself runs off the workflow's
// deterministic thread.
func (a *Activities) ErrorReportActivity(ctx context.Context, s state.State, now time.Time) (errornode.Report, error) {
	return errornode.Run(ctx, a.Service, a.ModelConfig, s, now), nil
}

// CapabilityCallInput bundles everything ExecuteCapabilityActivity needs
// beyond the state itself — the counters inmemdriver.dispatchCapability
// threads through a closure, Temporal activities must receive explicitly
// since each call is independently serialized.
type CapabilityCallInput struct {
	Name                string
	TotalCalls          int
	ConsecutiveFailures int
	ApprovalMode        string
}

// CapabilityCallOutput is ExecuteCapabilityActivity's result: the delta to
// merge, plus the bookkeeping TurnWorkflow must thread into the next call's
// CapabilityCallInput (Temporal activities are stateless between calls).
type CapabilityCallOutput struct {
	Delta               state.Delta
	ConsecutiveFailures int
}

// ExecuteCapabilityActivity resolves in.Name against the registry and runs
// it through capability.Run, emitting the same StepStarted/StepCompleted/
// ApprovalRequested stream events inmemdriver.dispatchCapability does (spec
// §4.8 streaming contract). Like dispatchCapability it reports "capability
// not found" as a HasError delta with a nil activity error, so the workflow
// folds the outcome into state rather than failing the workflow execution.
func (a *Activities) ExecuteCapabilityActivity(ctx context.Context, s state.State, in CapabilityCallInput) (CapabilityCallOutput, error) {
	desc, ok := a.Registry.GetCapability(in.Name)
	if !ok {
		return CapabilityCallOutput{
			Delta:               state.Delta{HasError: state.Set(true)},
			ConsecutiveFailures: in.ConsecutiveFailures,
		}, nil
	}

	step, _ := s.CurrentStep()
	a.emit(ctx, s.ThreadID, stream.StepStarted{
		Base:       stream.Base{T: stream.EventStepStarted, Th: s.ThreadID},
		ContextKey: step.ContextKey,
		Capability: desc.Name,
	})

	meta := a.ToolMetadata[desc.Name]
	sink := stream.StatusBridge(ctx, a.Stream, s.ThreadID, desc.Name, step.ContextKey)
	execFn := capability.FromRegistryExecutor(desc.Execute)

	callStart := time.Now()
	delta := capability.Run(desc, execFn, s, a.RunPolicy, in.TotalCalls, in.ConsecutiveFailures, meta, in.ApprovalMode, sink, time.Now)
	elapsed := time.Since(callStart)

	failed := delta.HasError.Touched && delta.HasError.Value
	consecutiveFailures := in.ConsecutiveFailures
	if failed {
		consecutiveFailures++
	} else {
		consecutiveFailures = 0
	}

	errText := ""
	if failed && delta.ErrorInfo.Touched && delta.ErrorInfo.Value != nil {
		errText = delta.ErrorInfo.Value.OriginalError
	}
	a.emit(ctx, s.ThreadID, stream.StepCompleted{
		Base:       stream.Base{T: stream.EventStepCompleted, Th: s.ThreadID},
		ContextKey: step.ContextKey,
		Capability: desc.Name,
		Duration:   elapsed,
		Err:        errText,
	})

	next := state.Merge(s, delta)
	if next.Control.PendingInterrupt != nil {
		a.emit(ctx, s.ThreadID, stream.ApprovalRequested{
			Base:    stream.Base{T: stream.EventApprovalRequested, Th: s.ThreadID},
			Pending: *next.Control.PendingInterrupt,
		})
	}

	return CapabilityCallOutput{Delta: delta, ConsecutiveFailures: consecutiveFailures}, nil
}

func (a *Activities) emit(ctx context.Context, threadID string, e stream.Event) {
	if a.Stream == nil {
		return
	}
	_ = a.Stream.Send(ctx, e)
}
