package temporal

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/coriolis-labs/conductor/checkpoint"
	"github.com/coriolis-labs/conductor/errkind"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/nodes/errornode"
	"github.com/coriolis-labs/conductor/nodes/taskextraction"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/router"
	"github.com/coriolis-labs/conductor/state"
)

// Activity names, registered against the worker via RegisterWith and
// referenced here by name (rather than by method value) so TurnWorkflow
// stays a plain function of its workflow.Context — matching the teacher's
// own temporalWorkflowContext, which calls workflow.ExecuteActivity(actx,
// call.Name, call.Input) against a registered name string.
const (
	activityExtractTask       = "ConductorExtractTask"
	activityClassify          = "ConductorClassify"
	activityOrchestrate       = "ConductorOrchestrate"
	activityErrorReport       = "ConductorErrorReport"
	activityExecuteCapability = "ConductorExecuteCapability"
)

// defaultActivityTimeout bounds every activity's schedule-to-start and
// start-to-close duration. The same timeout applies to every capability
// call: TurnWorkflow has no per-capability override mechanism, matching
// inmemdriver, which applies no per-capability timeout of its own either.
const defaultActivityTimeout = 2 * time.Minute

// TurnInput is TurnWorkflow's argument: the state to drive, plus an optional
// resume verdict when this execution continues a turn that previously
// suspended on an interrupt (spec §4.9). Each turn-pass — initial run or
// resume — is its own workflow execution (SPEC_FULL §11.4): there is no
// long-lived workflow blocked on a signal channel
// between turns, mirroring the "suspension is data" design interrupt
// already uses for inmemdriver.
type TurnInput struct {
	State     state.State
	ResumeCmd *interrupt.ResumeCommand
}

// TurnResult is TurnWorkflow's single return value. StateBytes is the final
// state pre-encoded via checkpoint.Encode inside the workflow, not a live
// state.State field: a Temporal workflow return value is converted as one
// composite payload, so wrapping state.State inside this struct would hide
// it from the custom data converter's type switch (which only ever sees the
// literal argument/return type, never a field nested inside another type).
// Pre-encoding sidesteps that entirely — TurnResult is plain, ordinary JSON.
type TurnResult struct {
	StateBytes []byte
	Suspended  bool
	Report     *errornode.Report
	ErrMsg     string
}

// TurnWorkflow drives state through the graph until it suspends, reaches a
// terminal Report, or completes normally — the same decision procedure
// adapters/graph/inmemdriver.Driver.Run implements, restructured so every
// non-deterministic step (LLM calls, capability execution, stream delivery)
// crosses an activity boundary instead of running inline. Router decisions,
// state merging, and loop bookkeeping stay in the workflow function itself
// because they are pure and must replay identically (spec §4.4).
func TurnWorkflow(ctx workflow.Context, cfg TurnConfig, in TurnInput) (TurnResult, error) {
	ao := workflow.ActivityOptions{
		ScheduleToStartTimeout: defaultActivityTimeout,
		StartToCloseTimeout:    defaultActivityTimeout,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	s := in.State
	if in.ResumeCmd != nil {
		var err error
		s, err = applyResume(s, *in.ResumeCmd)
		if err != nil {
			return TurnResult{}, err
		}
	}

	limits := cfg.Limits
	if limits == (router.Limits{}) {
		limits = router.DefaultLimits
	}
	recursionLimit := cfg.RecursionLimit
	if recursionLimit <= 0 {
		recursionLimit = 100
	}

	start := workflow.Now(ctx)
	totalCalls := 0
	consecutiveFailures := 0

	for iterations := 0; ; iterations++ {
		if iterations >= recursionLimit {
			s.Control.HasError = true
			return reportResult(ctx, s, workflow.Now(ctx))
		}
		if cfg.MaxExecutionTimeSeconds > 0 && workflow.Now(ctx).Sub(start).Seconds() > cfg.MaxExecutionTimeSeconds {
			s.Control.IsKilled = true
			s.Control.TimedOut = true
			return reportResult(ctx, s, workflow.Now(ctx))
		}

		decision := router.Decide(s, limits)
		s = state.Merge(s, decision.Delta)

		switch decision.Next {
		case router.Suspended:
			return suspendResult(s)

		case router.End:
			if s.Control.IsKilled || s.Control.HasError {
				return reportResult(ctx, s, workflow.Now(ctx))
			}
			return finishResult(s)

		case router.ErrorNode:
			return reportResult(ctx, s, workflow.Now(ctx))

		case router.TaskExtraction:
			var delta state.Delta
			err := workflow.ExecuteActivity(ctx, activityExtractTask, s).Get(ctx, &delta)
			if err != nil {
				s = state.Merge(s, classifyInfraError(router.TaskExtraction, err))
				continue
			}
			s = state.Merge(s, delta)

		case router.Classifier:
			var delta state.Delta
			err := workflow.ExecuteActivity(ctx, activityClassify, s).Get(ctx, &delta)
			if err != nil {
				s = state.Merge(s, classifyInfraError(router.Classifier, err))
				continue
			}
			s = state.Merge(s, delta)

		case router.Orchestrator:
			var result orchestrationResultWire
			err := workflow.ExecuteActivity(ctx, activityOrchestrate, s).Get(ctx, &result)
			if err != nil {
				s = state.Merge(s, classifyInfraError(router.Orchestrator, err))
				continue
			}
			s = state.Merge(s, result.Delta)
			if result.NeedsApproval {
				return suspendResult(s)
			}

		default:
			if decision.BackoffSleep > 0 {
				_ = workflow.Sleep(ctx, decision.BackoffSleep)
			}
			var out CapabilityCallOutput
			callIn := CapabilityCallInput{
				Name:                decision.Next,
				TotalCalls:          totalCalls + 1,
				ConsecutiveFailures: consecutiveFailures,
				ApprovalMode:        string(s.AgentControl.ApprovalMode),
			}
			totalCalls++
			err := workflow.ExecuteActivity(ctx, activityExecuteCapability, s, callIn).Get(ctx, &out)
			if err != nil {
				return TurnResult{}, err
			}
			consecutiveFailures = out.ConsecutiveFailures
			s = state.Merge(s, out.Delta)
			if s.Control.PendingInterrupt != nil {
				return suspendResult(s)
			}
		}
	}
}

// orchestrationResultWire mirrors nodes/orchestration.Result's fields; the
// activity returns the concrete type, but TurnWorkflow only needs this
// shape, kept local to avoid an import cycle risk were orchestration ever to
// depend on this package (it does not today, but the boundary is cheap to
// keep one-directional).
type orchestrationResultWire struct {
	Delta         state.Delta
	NeedsApproval bool
}

func applyResume(s state.State, cmd interrupt.ResumeCommand) (state.State, error) {
	pending := s.Control.PendingInterrupt
	if pending == nil {
		return s, errkind.Errorf(errkind.Internal, "temporal: resume called with no pending interrupt")
	}

	switch pending.Kind {
	case interrupt.PlanApproval:
		activeCapabilities := s.Planning.ActiveCapabilities
		replacement, err := interrupt.Resolve(cmd, s.Planning.ExecutionPlan, activeCapabilities)
		if err != nil {
			if errkind.KindOf(err) == errkind.ApprovalRejected {
				return state.Merge(s, rejectedPlanRespondDelta(s, err.Error())), nil
			}
			s = state.Merge(s, state.ClearInterrupt())
			s = state.Merge(s, rejectedPlanDelta(err))
			return s, nil
		}
		delta := state.ClearInterrupt()
		delta.ExecutionPlan = state.Set(replacement)
		delta.CurrentStepIndex = state.Set(0)
		return state.Merge(s, delta), nil

	case interrupt.ToolApproval:
		if !cmd.Approved {
			reason := cmd.Reason
			if reason == "" {
				reason = "tool action was not approved"
			}
			return state.Merge(s, rejectedPlanRespondDelta(s, reason)), nil
		}
		return state.Merge(s, state.ClearInterrupt()), nil
	}

	return s, nil
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

// classifyInfraError mirrors inmemdriver's mapping from a Go error returned
// by one of the three LLM-backed infra nodes into the HasError/ErrorInfo
// shape the router's decideError branch consumes (spec §4.5-§4.7).
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

func suspendResult(s state.State) (TurnResult, error) {
	b, err := checkpoint.Encode(s)
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{StateBytes: b, Suspended: true}, nil
}

func finishResult(s state.State) (TurnResult, error) {
	b, err := checkpoint.Encode(s)
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{StateBytes: b}, nil
}

func reportResult(ctx workflow.Context, s state.State, now time.Time) (TurnResult, error) {
	var report errornode.Report
	err := workflow.ExecuteActivity(ctx, activityErrorReport, s, now).Get(ctx, &report)
	b, encErr := checkpoint.Encode(s)
	if encErr != nil {
		return TurnResult{}, encErr
	}
	if err != nil {
		return TurnResult{StateBytes: b, ErrMsg: err.Error()}, nil
	}
	return TurnResult{StateBytes: b, Report: &report}, nil
}

// TurnConfig is the subset of graph.Config TurnWorkflow consults directly;
// RunPolicy and ToolMetadata live on Activities instead, since those only
// matter to ExecuteCapabilityActivity, not to the workflow's own loop.
type TurnConfig struct {
	Limits                  router.Limits
	RecursionLimit          int
	MaxExecutionTimeSeconds float64
}
