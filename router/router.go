// Package router implements the single decision function called after every
// node in the orchestration graph (spec §4.4). Router is pure with respect
// to state: its only side effect is the retry backoff sleep, which the
// caller performs because Decide itself never blocks (keeping it trivially
// testable for P1, router determinism).
package router

import (
	"time"

	cenkaltibackoff "github.com/cenkalti/backoff/v4"

	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
)

// End is the sentinel node name Decide returns to signal the graph should
// stop dispatching for this turn.
const End = "END"

// Suspended is the sentinel node name Decide returns when a node has left a
// PendingInterrupt in Control (spec §4.9). Like End it tells the graph to
// stop dispatching, but the driver must checkpoint and surface the payload
// rather than simply ending the turn.
const Suspended = "SUSPENDED"

// Names of the always-present infrastructure nodes the decision procedure
// can route to directly, matching registry.RequiredInfrastructureNodes.
const (
	TaskExtraction = "task_extraction"
	Classifier     = "classification"
	Orchestrator   = "orchestration"
	ErrorNode      = "error_node"
)

// Limits bounds the router's replanning/reclassification budget (spec §4.4
// steps 2e/2f; also P4, P5).
type Limits struct {
	MaxPlanningAttempts  int
	MaxReclassifications int
}

// DefaultLimits matches the defaults named in spec §4.7 ("max_planning_attempts,
// default 2") and the Open Question decision in SPEC_FULL §13
// (max_reclassifications default mirrors max_step_retries=3 reasoning: bound
// conservatively rather than unboundedly).
var DefaultLimits = Limits{MaxPlanningAttempts: 2, MaxReclassifications: 3}

// Decision is the result of one Decide call: the node to dispatch next, and
// — only when a RETRIABLE error is being retried — the backoff duration the
// caller must sleep before dispatching.
type Decision struct {
	Next        string
	Delta       state.Delta
	BackoffSleep time.Duration
}

// Decide evaluates the decision procedure from spec §4.4 in strict order and
// returns the first match. It never blocks; RETRIABLE retries return the
// sleep duration in Decision.BackoffSleep for the caller to honor before
// re-merging Decision.Delta and dispatching Decision.Next.
func Decide(s state.State, limits Limits) Decision {
	if s.Control.PendingInterrupt != nil {
		return Decision{Next: Suspended}
	}

	if s.Control.IsKilled {
		return Decision{Next: End}
	}

	if s.Control.HasError {
		return decideError(s, limits)
	}

	if s.Task.CurrentTask == nil && !s.AgentControl.BypassTaskExtraction {
		return Decision{Next: TaskExtraction}
	}

	if s.Planning.ActiveCapabilities == nil && !s.AgentControl.BypassClassification {
		return Decision{Next: Classifier}
	}

	if s.Planning.ExecutionPlan == nil {
		return Decision{Next: Orchestrator}
	}

	if s.Planning.CurrentStepIndex >= len(s.Planning.ExecutionPlan.Steps) {
		return Decision{Next: End}
	}

	return Decision{Next: s.Planning.ExecutionPlan.Steps[s.Planning.CurrentStepIndex].Capability}
}

func decideError(s state.State, limits Limits) Decision {
	info := s.Control.ErrorInfo
	var severity state.ErrorClassification
	if info != nil {
		severity = info.Classification
	}

	switch severity.Severity {
	case registry.SeverityFatal:
		return Decision{Next: End}

	case registry.SeverityCritical:
		return Decision{Next: ErrorNode}

	case registry.SeverityRetriable:
		policy := state.ErrorRecord{}
		if info != nil {
			policy = *info
		}
		if s.Control.RetryCount < policy.RetryPolicy.MaxAttempts {
			sleep := backoff(policy.RetryPolicy.BaseDelaySec, policy.RetryPolicy.BackoffFactor, s.Control.RetryCount)
			next := ""
			if info != nil {
				next = info.CapabilityName
			}
			return Decision{
				Next:         next,
				BackoffSleep: sleep,
				Delta: state.Delta{
					RetryCount: state.Set(s.Control.RetryCount + 1),
					HasError:   state.Set(false),
					ErrorInfo:  state.Set[*state.ErrorRecord](nil),
				},
			}
		}
		return Decision{Next: ErrorNode}

	case registry.SeverityReplanning:
		if s.Planning.PlansCreated < limits.MaxPlanningAttempts {
			return Decision{Next: Orchestrator, Delta: state.ClearForReplan()}
		}
		return Decision{Next: ErrorNode}

	case registry.SeverityReclassification:
		if s.Control.ReclassificationCount < limits.MaxReclassifications {
			d := state.ClearForReclassification()
			d.ReclassificationCount = state.Set(s.Control.ReclassificationCount + 1)
			return Decision{Next: Classifier, Delta: d}
		}
		return Decision{Next: ErrorNode}

	default:
		// An unclassified severity reaching the router is itself a defect;
		// route to the error node rather than guess.
		return Decision{Next: ErrorNode}
	}
}

// backoff computes base * factor^attempt, matching the exponential backoff
// named in spec §4.4 step 2d, via cenkalti/backoff/v4's ExponentialBackOff:
// a fresh, zero-jitter instance is driven attempt+1 times rather than
// hand-rolling the same growth with math.Pow.
func backoff(baseSeconds, factor float64, attempt int) time.Duration {
	if baseSeconds <= 0 {
		return 0
	}
	if factor <= 0 {
		factor = 1
	}

	b := cenkaltibackoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(baseSeconds * float64(time.Second))
	b.Multiplier = factor
	b.RandomizationFactor = 0
	b.MaxInterval = 365 * 24 * time.Hour
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
