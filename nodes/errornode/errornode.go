// Package errornode implements the error infrastructure node (spec §4.10):
// produces a user-facing explanation and structured report when recovery is
// exhausted, and never loops back into itself (its own classifier always
// returns FATAL).
package errornode

import (
	"context"
	"fmt"
	"time"

	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
)

// Type enumerates the structured report's error_type field (spec §4.10).
type Type string

const (
	Timeout                    Type = "TIMEOUT"
	StepFailure                Type = "STEP_FAILURE"
	SafetyLimit                Type = "SAFETY_LIMIT"
	RetriableExhausted         Type = "RETRIABLE_EXHAUSTED"
	ReclassificationExhausted  Type = "RECLASSIFICATION_EXHAUSTED"
	Critical                   Type = "CRITICAL"
	Infrastructure             Type = "INFRASTRUCTURE"
	Killed                     Type = "KILLED"
)

// Report is the structured failure explanation the error node produces
// (spec §4.10 "Report structure").
type Report struct {
	Timestamp          time.Time
	ErrorType          Type
	Task               string
	FailedOperation    string
	UserMessage        string
	TechnicalDetails    string
	RetryCount         int
	SuccessfulSteps    []string
	FailedStep         string
	Suggestions        []string
	Analysis           string // LLM-generated; omitted (not an error) if unavailable
}

// Classify is the error node's own error_classifier: it always returns
// FATAL, so the error node itself can never be retried or re-routed back
// through the router into another error (spec §4.10).
func Classify(error) registry.Severity { return registry.SeverityFatal }

// Run renders the structured Report for the current failure and, best
// effort, asks svc for a short natural-language analysis. A failed analysis
// call is silently omitted rather than propagated (spec §4.10: "If the
// analysis call itself fails, omit it — never raise").
func Run(ctx context.Context, svc llm.Service, cfg llm.ModelConfig, s state.State, now time.Time) Report {
	errType, failedOp, userMsg, techDetails, retryCount := classifyFailure(s)

	successful := make([]string, 0)
	if s.Planning.ExecutionPlan != nil {
		for i := 0; i < s.Planning.CurrentStepIndex && i < len(s.Planning.ExecutionPlan.Steps); i++ {
			successful = append(successful, s.Planning.ExecutionPlan.Steps[i].ContextKey)
		}
	}

	task := ""
	if s.Task.CurrentTask != nil {
		task = *s.Task.CurrentTask
	}

	report := Report{
		Timestamp:        now,
		ErrorType:        errType,
		Task:             task,
		FailedOperation:  failedOp,
		UserMessage:      userMsg,
		TechnicalDetails: techDetails,
		RetryCount:       retryCount,
		SuccessfulSteps:  successful,
		FailedStep:       failedOp,
	}

	if svc != nil {
		prompt := fmt.Sprintf("Explain this failure in at most ~500 tokens for an end user.\nTask: %s\nFailure: %s\n", task, techDetails)
		analysis, err := svc.Complete(ctx, prompt, cfg)
		if err == nil {
			report.Analysis = analysis
		}
	}

	return report
}

func classifyFailure(s state.State) (errType Type, failedOp, userMsg, techDetails string, retryCount int) {
	if s.Control.TimedOut {
		return Timeout, "", "This run took too long and was stopped.", "max_execution_time_seconds exceeded", s.Control.RetryCount
	}
	if s.Control.IsKilled {
		return Killed, "", "This run was stopped.", "is_killed was set", s.Control.RetryCount
	}

	info := s.Control.ErrorInfo
	if info == nil {
		return Infrastructure, "", "An internal error occurred.", "router reached the error node with no ErrorInfo", 0
	}

	retryCount = s.Control.RetryCount
	failedOp = info.CapabilityName
	userMsg = info.Classification.UserMessage
	if userMsg == "" {
		userMsg = "Something went wrong while processing your request."
	}
	techDetails = info.TechnicalDetails
	if techDetails == "" {
		techDetails = info.OriginalError
	}

	switch info.Classification.Severity {
	case registry.SeverityRetriable:
		errType = RetriableExhausted
	case registry.SeverityReclassification:
		errType = ReclassificationExhausted
	case registry.SeverityCritical:
		if info.Classification.Metadata["reason"] == "safety_limit" {
			errType = SafetyLimit
		} else {
			errType = Critical
		}
	case registry.SeverityFatal:
		errType = Critical
	default:
		errType = StepFailure
	}
	return errType, failedOp, userMsg, techDetails, retryCount
}
