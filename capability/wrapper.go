package capability

import (
	"fmt"
	"time"

	"github.com/coriolis-labs/conductor/contextstore"
	"github.com/coriolis-labs/conductor/errkind"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
)

// StatusSink is the best-effort progress channel a capability may write to
// at any point during Execute (spec §4.8 streaming contract). Delivery is
// best-effort: dropping a status message is never an error, and ordering is
// only guaranteed within a single capability call.
type StatusSink interface {
	Status(text string)
}

// noopStatusSink discards every status update.
type noopStatusSink struct{}

func (noopStatusSink) Status(string) {}

// NoopStatusSink is the zero-cost StatusSink substituted when the caller
// supplies none.
var NoopStatusSink StatusSink = noopStatusSink{}

// ExecutionContext is what a capability's Execute closure receives: the
// step it was invoked for, the state snapshot it must treat as read-only,
// the shared context store it writes its output into, and the status sink.
type ExecutionContext struct {
	Step    plan.Step
	State   state.State
	Context *contextstore.Store
	Status  StatusSink
}

// Execute is the concrete, statically-typed signature every capability
// implements. Package registry stores this behind the untyped
// registry.Executor so package registry need not import package state; Wrap
// performs the type assertion once, at the single point capabilities are
// actually invoked.
type Execute func(ctx *ExecutionContext) (state.Delta, error)

// AsRegistryExecutor adapts a concrete Execute into the untyped
// registry.Executor shape a CapabilityDescriptor carries.
func AsRegistryExecutor(fn Execute) registry.Executor {
	return func(snapshot any) (any, error) {
		ctx, ok := snapshot.(*ExecutionContext)
		if !ok {
			return nil, errkind.Errorf(errkind.Internal, "capability wrapper: expected *ExecutionContext, got %T", snapshot)
		}
		return fn(ctx)
	}
}

// FromRegistryExecutor adapts the untyped registry.Executor a
// CapabilityDescriptor carries back into the concrete Execute signature Run
// requires — the inverse of AsRegistryExecutor, used by the graph driver at
// the single point a resolved capability is actually dispatched.
func FromRegistryExecutor(ex registry.Executor) Execute {
	return func(ctx *ExecutionContext) (state.Delta, error) {
		result, err := ex(ctx)
		if err != nil {
			return state.Delta{}, err
		}
		delta, ok := result.(state.Delta)
		if !ok {
			return state.Delta{}, errkind.Errorf(errkind.Internal, "capability wrapper: expected state.Delta, got %T", result)
		}
		return delta, nil
	}
}

// Clock abstracts wall-clock time so Run's execution_time_seconds
// measurement is deterministic under test.
type Clock func() time.Time

// Run is the identical envelope every capability node is wrapped in (spec
// §4.8). It reads the current step from state, invokes the capability's
// Execute, and on success increments current_step_index and resets
// retry/error bookkeeping; on error it synchronously classifies the failure
// via desc.ErrorClassifier and populates ErrorInfo instead of propagating
// the error to the caller — by design, a capability failure is always
// reported through the returned Delta, never through Run's own error return,
// so the router (not a panic/exception path) decides what happens next.
// An ErrorInfo whose descriptor leaves RetryPolicy.MaxAttempts at 0 records
// MaxAttempts 3.
//
// Before invoking execFn, Run resolves desc.Requires through the step's
// inputs in s.Context; an unresolved required type yields a REPLANNING
// error and execFn is not called. It also checks whether approvalMode requires an
// interrupt for this step's capability (spec §4.9 policy modes). If so it
// returns a Delta carrying a PendingInterrupt payload and does not advance
// current_step_index or call execFn at all — the graph driver checkpoints
// and returns to the caller instead of continuing, and resumes this exact
// step once a ResumeCommand resolves the suspension.
func Run(desc registry.CapabilityDescriptor, execFn Execute, s state.State, policy RunPolicy, totalCalls, consecutiveFailures int, meta ToolMetadata, approvalMode string, sink StatusSink, clock Clock) state.Delta {
	if sink == nil {
		sink = NoopStatusSink
	}
	if clock == nil {
		clock = time.Now
	}

	step, ok := s.CurrentStep()
	if !ok {
		return state.Delta{
			HasError: state.Set(true),
			ErrorInfo: state.Set(&state.ErrorRecord{
				CapabilityName: desc.Name,
				OriginalError:  "no current step to execute",
				Classification: state.ErrorClassification{Severity: registry.SeverityFatal},
			}),
		}
	}

	if policy.Exceeded(totalCalls, consecutiveFailures) {
		return state.Delta{
			HasError: state.Set(true),
			ErrorInfo: state.Set(&state.ErrorRecord{
				CapabilityName: desc.Name,
				OriginalError:  "run policy cap exceeded",
				Classification: state.ErrorClassification{
					Severity:    registry.SeverityCritical,
					UserMessage: "This turn exceeded its safety limits and was stopped.",
					// Metadata marks this Critical as the run-policy cap
					// specifically, so the error node reports SAFETY_LIMIT
					// (spec §4.10) instead of a generic CRITICAL.
					Metadata: map[string]any{"reason": "safety_limit"},
				},
			}),
		}
	}

	if len(desc.Requires) > 0 && s.Context != nil {
		if _, err := s.Context.ExtractFromStep(step.Inputs, desc.Requires, contextstore.Hard); err != nil {
			return state.Delta{
				HasError: state.Set(true),
				ErrorInfo: state.Set(&state.ErrorRecord{
					CapabilityName: desc.Name,
					OriginalError:  err.Error(),
					Classification: state.ErrorClassification{Severity: registry.SeverityReplanning},
				}),
			}
		}
	}

	artifact := fmt.Sprintf("%v", step.Parameters)
	if RequiresInterrupt(approvalMode, meta, artifact) {
		return state.Delta{
			PendingInterrupt: state.Set(&interrupt.Payload{
				Kind:           interrupt.ToolApproval,
				NodeName:       desc.Name,
				CapabilityName: desc.Name,
				StepContextKey: step.ContextKey,
				Artifact:       artifact,
				Prompt:         fmt.Sprintf("Approve %s for step %s?", desc.Name, step.ContextKey),
			}),
		}
	}

	start := clock()
	delta, err := execFn(&ExecutionContext{Step: step, State: s, Context: s.Context, Status: sink})
	elapsed := clock().Sub(start).Seconds()

	if err == nil {
		delta.CurrentStepIndex = state.Set(s.Planning.CurrentStepIndex + 1)
		delta.RetryCount = state.Set(0)
		delta.HasError = state.Set(false)
		delta.ErrorInfo = state.Set[*state.ErrorRecord](nil)
		return delta
	}

	classifier := desc.ErrorClassifier
	if classifier == nil {
		classifier = func(error) registry.Severity { return registry.SeverityCritical }
	}
	retryPolicy := desc.RetryPolicy
	if retryPolicy.MaxAttempts == 0 {
		retryPolicy.MaxAttempts = 3
	}

	return state.Delta{
		HasError: state.Set(true),
		ErrorInfo: state.Set(&state.ErrorRecord{
			CapabilityName:        desc.Name,
			OriginalError:         err.Error(),
			TechnicalDetails:      errTechnicalDetails(err),
			ExecutionTimeSeconds:  elapsed,
			RetryPolicy:           retryPolicy,
			Classification: state.ErrorClassification{
				Severity: classifier(err),
			},
		}),
	}
}

func errTechnicalDetails(err error) string {
	if e, ok := errkind.As(err); ok {
		return string(e.Kind) + ": " + e.Error()
	}
	return err.Error()
}
