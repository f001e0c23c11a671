// Package interrupt implements the approval/interrupt machinery (spec
// §4.9): the payload a suspended node surfaces to the caller, the Gateway's
// approve/reject/edit classification of the next user turn (guarded by the
// "ambiguity → rejection" fail-safe, P8), and the resolution of a
// ResumeCommand against the plan that was pending approval.
//
// Unlike the teacher's Controller (which blocks a long-lived Temporal
// workflow goroutine on a signal channel), this package models suspension
// as data rather than a blocking receive: a turn either runs to completion
// or returns a Payload for the driver to checkpoint, and the next turn
// resumes from that checkpoint with an explicit ResumeCommand. There is no
// call to block on, because nothing here assumes the process survives
// between turns.
package interrupt

import (
	"context"
	"fmt"
	"strings"

	"github.com/coriolis-labs/conductor/errkind"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/plan"
)

// PayloadKind distinguishes what is being surfaced for approval.
type PayloadKind string

const (
	// PlanApproval is raised by the orchestrator node when approval_mode is
	// ALL or planning_mode is set (spec §4.7 step 5).
	PlanApproval PayloadKind = "plan_approval"
	// ToolApproval is raised by the capability wrapper when SELECTIVE mode's
	// requires_approval or sensitive-pattern rule matches, or ALL mode is set
	// (spec §4.9 policy modes).
	ToolApproval PayloadKind = "tool_approval"
)

// Payload is what a suspended node surfaces to the caller: enough for the
// Gateway to render a prompt and, on the next turn, for Resolve to act on
// the user's verdict (spec §4.9 "the driver... returns to the Gateway with
// the payload surfaced").
type Payload struct {
	Kind           PayloadKind
	NodeName       string
	CapabilityName string
	StepContextKey string
	Plan           *plan.Plan
	Artifact       string
	Prompt         string
}

// Decision is the Gateway's classification of a reply to a pending
// interrupt (spec §4.9, §4.11 step 3).
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
	Edit    Decision = "edit"
	Other   Decision = "other"
)

// ResumeCommand is what the Gateway hands the graph driver to resume the
// exact suspended node with a verdict (spec §4.9).
type ResumeCommand struct {
	Approved    bool
	Reason      string
	Replacement *plan.Plan
}

const classifierSchemaHint = `Respond with a JSON object: {"decision": "approve"|"reject"|"edit"|"other"}`

// Classify asks svc whether reply approves, rejects, or edits the pending
// payload. Per P8, any failure to obtain an unambiguous decision — a
// transport error, an empty response, or any value other than the three
// recognized decisions — classifies as Reject. Other is the one
// non-ambiguous, non-approval decision: it tells the caller the reply was
// not about the pending interrupt at all (spec §4.11 step 3 "other → treat
// as new message").
func Classify(ctx context.Context, svc llm.Service, cfg llm.ModelConfig, payload Payload, reply string) Decision {
	if svc == nil {
		return Reject
	}
	raw, err := svc.CompleteStructured(ctx, buildClassifyPrompt(payload, reply), cfg, classifierSchemaHint)
	if err != nil {
		return Reject
	}
	decision, _ := raw["decision"].(string)
	switch Decision(strings.ToLower(strings.TrimSpace(decision))) {
	case Approve:
		return Approve
	case Edit:
		return Edit
	case Other:
		return Other
	default:
		// Includes the literal "reject" and any unrecognized/empty value:
		// the fail-safe treats "reject" and "ambiguous" identically.
		return Reject
	}
}

func buildClassifyPrompt(payload Payload, reply string) string {
	return fmt.Sprintf(
		"A plan or tool action is pending approval.\nPrompt shown to the user: %s\nUser reply: %q\n\n"+
			"Classify the reply as approve, reject, edit, or other (not a response to this prompt at all). "+
			"If the reply is ambiguous, classify it as reject.",
		payload.Prompt, reply)
}

// Resolve applies a ResumeCommand to the plan that was pending approval
// (spec §4.9: "the node then either proceeds, raises a REPLANNING error, or
// terminates"):
//   - rejected  -> an *errkind.Error of Kind ApprovalRejected (not a
//     failure; the normal terminal of a rejected plan, routed to respond).
//   - approved, no replacement -> the pending plan, unchanged.
//   - approved, with replacement -> the replacement, after re-validating it;
//     an invalid replacement is a ContextMissing error so the router
//     replans rather than executing a broken edit.
func Resolve(cmd ResumeCommand, pending *plan.Plan, activeCapabilities map[string]bool) (*plan.Plan, error) {
	if !cmd.Approved {
		reason := cmd.Reason
		if reason == "" {
			reason = "approval request was rejected"
		}
		return nil, errkind.New(errkind.ApprovalRejected, reason)
	}
	if cmd.Replacement == nil {
		return pending, nil
	}
	if verr := plan.Validate(cmd.Replacement, activeCapabilities); verr != nil {
		return nil, errkind.Wrap(errkind.ContextMissing, "edited plan failed validation", verr)
	}
	return cmd.Replacement, nil
}
