// Package inmemdriver implements graph.Driver as a direct in-process
// dispatch loop (SPEC_FULL §11.4): no durability across process restarts
// beyond what the injected checkpointer provides. It is the default driver;
// adapters/graph/temporal implements the same interface as a durable
// Temporal-backed alternative. Grounded on the teacher's
// runtime/agent/engine/engine.go dispatch loop (resolve next step, invoke,
// fold result, re-decide), generalized away from its durable-workflow
// (WorkflowContext/Future/signal-channel) machinery, which a process-local
// loop has no need of.
package inmemdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/coriolis-labs/conductor/capability"
	"github.com/coriolis-labs/conductor/checkpoint"
	"github.com/coriolis-labs/conductor/errkind"
	"github.com/coriolis-labs/conductor/graph"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/nodes/classification"
	"github.com/coriolis-labs/conductor/nodes/errornode"
	"github.com/coriolis-labs/conductor/nodes/orchestration"
	"github.com/coriolis-labs/conductor/nodes/taskextraction"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/router"
	"github.com/coriolis-labs/conductor/state"
	"github.com/coriolis-labs/conductor/stream"
)

// Driver holds the collaborators a turn needs: the registry to resolve
// capabilities from, the LLM service every LLM-backed node calls through,
// the checkpoint store a suspended or finished turn persists to, and the
// stream sink progress events are best-effort delivered to. It implements
// graph.Driver.
type Driver struct {
	Registry     *registry.Registry
	Service      llm.Service
	ModelConfig  llm.ModelConfig
	Checkpointer checkpoint.Store
	Stream       stream.Sink
	Config       graph.Config
}

var _ graph.Driver = (*Driver)(nil)

// Run drives s through the graph until it suspends, reaches a terminal
// Report, or completes normally (spec §4.4's decision procedure dispatched
// in a loop, spec §5's recursion/timeout/kill bounds enforced around it).
func (d *Driver) Run(ctx context.Context, s state.State) graph.Outcome {
	cfg := d.Config
	limits := cfg.Limits
	if limits == (router.Limits{}) {
		limits = router.DefaultLimits
	}
	recursionLimit := cfg.RecursionLimit
	if recursionLimit <= 0 {
		recursionLimit = graph.DefaultRecursionLimit
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	start := clock()
	totalCalls := 0
	consecutiveFailures := 0

	for iterations := 0; ; iterations++ {
		if iterations >= recursionLimit {
			s.Control.HasError = true
			return d.reportAndPersist(ctx, s, clock())
		}
		if cfg.MaxExecutionTimeSeconds > 0 && clock().Sub(start).Seconds() > cfg.MaxExecutionTimeSeconds {
			s.Control.IsKilled = true
			s.Control.TimedOut = true
			return d.reportAndPersist(ctx, s, clock())
		}

		decision := router.Decide(s, limits)
		s = state.Merge(s, decision.Delta)

		switch decision.Next {
		case router.Suspended:
			return d.suspendAndPersist(ctx, s)

		case router.End:
			if s.Control.IsKilled || s.Control.HasError {
				return d.reportAndPersist(ctx, s, clock())
			}
			return d.finishAndPersist(ctx, s)

		case router.ErrorNode:
			return d.reportAndPersist(ctx, s, clock())

		case router.TaskExtraction:
			delta, err := taskextraction.Run(ctx, d.Service, d.ModelConfig, s)
			if err != nil {
				s = state.Merge(s, classifyInfraError(router.TaskExtraction, err))
				continue
			}
			s = state.Merge(s, delta)

		case router.Classifier:
			delta, err := classification.Run(ctx, d.Registry, d.Service, d.ModelConfig, s)
			if err != nil {
				s = state.Merge(s, classifyInfraError(router.Classifier, err))
				continue
			}
			s = state.Merge(s, delta)

		case router.Orchestrator:
			result, err := orchestration.Run(ctx, d.Registry, d.Service, d.ModelConfig, s)
			if err != nil {
				s = state.Merge(s, classifyInfraError(router.Orchestrator, err))
				continue
			}
			s = state.Merge(s, result.Delta)
			if result.NeedsApproval {
				return d.suspendAndPersist(ctx, s)
			}

		default:
			if decision.BackoffSleep > 0 {
				sleep(decision.BackoffSleep)
			}
			next, suspended, err := d.dispatchCapability(ctx, s, decision.Next, &totalCalls, &consecutiveFailures)
			if err != nil {
				return graph.Outcome{State: s, Err: err}
			}
			s = next
			if suspended {
				return d.suspendAndPersist(ctx, s)
			}
		}
	}
}

// dispatchCapability resolves decision.Next against the registry and runs
// it through capability.Run, emitting best-effort StepStarted/StepCompleted
// stream events around the call (spec §4.8 streaming contract).
func (d *Driver) dispatchCapability(ctx context.Context, s state.State, name string, totalCalls, consecutiveFailures *int) (state.State, bool, error) {
	desc, ok := d.Registry.GetCapability(name)
	if !ok {
		s.Control.HasError = true
		return s, false, nil
	}

	step, _ := s.CurrentStep()
	d.emit(ctx, s.ThreadID, stream.StepStarted{
		Base:       stream.Base{T: stream.EventStepStarted, Th: s.ThreadID},
		ContextKey: step.ContextKey,
		Capability: desc.Name,
	})

	*totalCalls++
	meta := d.Config.ToolMetadata[desc.Name]
	sink := stream.StatusBridge(ctx, d.Stream, s.ThreadID, desc.Name, step.ContextKey)
	execFn := capability.FromRegistryExecutor(desc.Execute)

	callStart := d.clockOrNow()
	delta := capability.Run(desc, execFn, s, d.Config.RunPolicy, *totalCalls, *consecutiveFailures, meta, string(s.AgentControl.ApprovalMode), sink, d.Config.Clock)
	elapsed := d.clockOrNow().Sub(callStart)

	failed := delta.HasError.Touched && delta.HasError.Value
	if failed {
		*consecutiveFailures++
	} else {
		*consecutiveFailures = 0
	}

	errText := ""
	if failed && delta.ErrorInfo.Touched && delta.ErrorInfo.Value != nil {
		errText = delta.ErrorInfo.Value.OriginalError
	}
	d.emit(ctx, s.ThreadID, stream.StepCompleted{
		Base:       stream.Base{T: stream.EventStepCompleted, Th: s.ThreadID},
		ContextKey: step.ContextKey,
		Capability: desc.Name,
		Duration:   elapsed,
		Err:        errText,
	})

	next := state.Merge(s, delta)
	if next.Control.PendingInterrupt != nil {
		d.emit(ctx, s.ThreadID, stream.ApprovalRequested{
			Base:    stream.Base{T: stream.EventApprovalRequested, Th: s.ThreadID},
			Pending: *next.Control.PendingInterrupt,
		})
		return next, true, nil
	}
	return next, false, nil
}

func (d *Driver) clockOrNow() time.Time {
	if d.Config.Clock != nil {
		return d.Config.Clock()
	}
	return time.Now()
}

func (d *Driver) emit(ctx context.Context, threadID string, e stream.Event) {
	if d.Stream == nil {
		return
	}
	_ = d.Stream.Send(ctx, e)
}

func (d *Driver) persist(ctx context.Context, s state.State) error {
	if d.Checkpointer == nil {
		return nil
	}
	snap, err := checkpoint.Encode(s)
	if err != nil {
		return fmt.Errorf("inmemdriver: encode checkpoint: %w", err)
	}
	if err := d.Checkpointer.Put(ctx, s.ThreadID, snap); err != nil {
		return fmt.Errorf("inmemdriver: persist checkpoint: %w", err)
	}
	return nil
}

func (d *Driver) suspendAndPersist(ctx context.Context, s state.State) graph.Outcome {
	if err := d.persist(ctx, s); err != nil {
		return graph.Outcome{State: s, Err: err}
	}
	return graph.Outcome{State: s, Suspended: true}
}

func (d *Driver) finishAndPersist(ctx context.Context, s state.State) graph.Outcome {
	if err := d.persist(ctx, s); err != nil {
		return graph.Outcome{State: s, Err: err}
	}
	return graph.Outcome{State: s}
}

func (d *Driver) reportAndPersist(ctx context.Context, s state.State, now time.Time) graph.Outcome {
	report := errornode.Run(ctx, d.Service, d.ModelConfig, s, now)
	if err := d.persist(ctx, s); err != nil {
		return graph.Outcome{State: s, Report: &report, Err: err}
	}
	return graph.Outcome{State: s, Report: &report}
}

// Resume re-enters a turn previously suspended on an interrupt (spec §4.9:
// "the driver resumes the exact suspended node with the verdict as its
// return value"). It resolves cmd against the plan that was pending (or,
// for a tool approval, simply clears the interrupt so the wrapper
// re-attempts the same step), clears the interrupt, and re-enters Run.
func (d *Driver) Resume(ctx context.Context, s state.State, cmd interrupt.ResumeCommand) graph.Outcome {
	pending := s.Control.PendingInterrupt
	if pending == nil {
		return graph.Outcome{State: s, Err: fmt.Errorf("inmemdriver: resume called with no pending interrupt")}
	}

	switch pending.Kind {
	case interrupt.PlanApproval:
		activeCapabilities := s.Planning.ActiveCapabilities
		replacement, err := interrupt.Resolve(cmd, s.Planning.ExecutionPlan, activeCapabilities)
		if err != nil {
			if errkind.KindOf(err) == errkind.ApprovalRejected {
				s = state.Merge(s, rejectedPlanRespondDelta(s, err.Error()))
				return d.Run(ctx, s)
			}
			s = state.Merge(s, state.ClearInterrupt())
			s = state.Merge(s, rejectedPlanDelta(err))
			return d.Run(ctx, s)
		}
		delta := state.ClearInterrupt()
		delta.ExecutionPlan = state.Set(replacement)
		delta.CurrentStepIndex = state.Set(0)
		s = state.Merge(s, delta)

	case interrupt.ToolApproval:
		if !cmd.Approved {
			reason := cmd.Reason
			if reason == "" {
				reason = "tool action was not approved"
			}
			s = state.Merge(s, rejectedPlanRespondDelta(s, reason))
			return d.Run(ctx, s)
		}
		s = state.Merge(s, state.ClearInterrupt())
	}

	return d.Run(ctx, s)
}

// rejectedPlanDelta classifies a genuine plan-edit validation failure (not
// an approval rejection) as REPLANNING, so the orchestrator gets one more
// attempt at a plan the router will accept.
func rejectedPlanDelta(err error) state.Delta {
	return state.Delta{
		HasError: state.Set(true),
		ErrorInfo: state.Set(&state.ErrorRecord{
			CapabilityName: "orchestration",
			OriginalError:  err.Error(),
			Classification: state.ErrorClassification{
				Severity:    registry.SeverityReplanning,
				UserMessage: "That plan was not approved; building a new one.",
			},
		}),
	}
}

// rejectedPlanRespondDelta routes an ApprovalRejected rejection straight to
// the respond capability instead of treating it as a failure (spec §7:
// "ApprovalRejected -> not an error... routed to respond with a rejection
// message"; scenario S6: "plan does not execute; assistant produces a
// cancellation message"). It does not touch plans_created: a rejected
// approval is a clean terminal, not a planning attempt.
func rejectedPlanRespondDelta(s state.State, reason string) state.Delta {
	task := ""
	if s.Planning.ExecutionPlan != nil {
		task = s.Planning.ExecutionPlan.OriginalTask
	}
	respondPlan := &plan.Plan{
		OriginalTask: task,
		Steps: []plan.Step{{
			ContextKey:      "rejection_respond",
			Capability:      plan.RespondCapability,
			TaskObjective:   "Tell the user their request was not approved (" + reason + ") and ask if they'd like to try something else.",
			SuccessCriteria: "The user is told the plan did not run.",
		}},
	}
	d := state.ClearInterrupt()
	d.ExecutionPlan = state.Set(respondPlan)
	d.CurrentStepIndex = state.Set(0)
	return d
}

// classifyInfraError turns a Go error returned by one of the three
// LLM-backed infrastructure nodes (task extraction, classification,
// orchestration) into the same HasError/ErrorInfo shape capability.Run
// produces, using the shared error policy spec §4.5-§4.7 describe for all
// three: transport/timeout failures are RETRIABLE, invalid or unsatisfiable
// structured output is REPLANNING, a registry/config problem reaching this
// far is FATAL, and anything else is CRITICAL. Infra nodes have no
// per-capability ErrorClassifier of their own (they are not registry
// capabilities), so this one shared mapping stands in for it.
func classifyInfraError(nodeName string, err error) state.Delta {
	var severity registry.Severity
	switch errkind.KindOf(err) {
	case errkind.Transport:
		severity = registry.SeverityRetriable
	case errkind.Validation, errkind.ContextMissing:
		severity = registry.SeverityReplanning
	case errkind.Config:
		severity = registry.SeverityFatal
	default:
		severity = registry.SeverityCritical
	}

	return state.Delta{
		HasError: state.Set(true),
		ErrorInfo: state.Set(&state.ErrorRecord{
			CapabilityName: nodeName,
			OriginalError:  err.Error(),
			Classification: state.ErrorClassification{Severity: severity},
			RetryPolicy:    taskextraction.DefaultRetryPolicy,
		}),
	}
}
