// Package errkind defines the domain error taxonomy capabilities and
// infrastructure nodes use to signal failures to the capability execution
// wrapper (see package capability). The taxonomy is deliberately small and
// flat: every error a node raises maps to exactly one of these kinds before
// the router decides how to react.
package errkind

import (
	"errors"
	"fmt"
)

// Kind names one domain error category. Kinds are distinct from severities
// (registry.Severity): a Kind describes *what went wrong*, a severity describes
// *what the router should do about it*. The capability's error_classifier
// maps a Kind (or a raw error) to a severity.
type Kind string

const (
	// Transport covers network failures, timeouts, and rate limits from an
	// LLM provider or other remote collaborator. Typically classified RETRIABLE.
	Transport Kind = "transport"
	// Validation covers malformed structured output or a schema mismatch.
	// Typically classified REPLANNING if a fresh plan can route around it,
	// CRITICAL otherwise.
	Validation Kind = "validation"
	// ContextMissing covers a step whose required typed-context input is not
	// available. Always classified REPLANNING.
	ContextMissing Kind = "context_missing"
	// CapabilitySemantic covers a capability deciding its own preconditions do
	// not hold. The capability chooses RECLASSIFICATION or REPLANNING via the
	// error it returns.
	CapabilitySemantic Kind = "capability_semantic"
	// Config covers registry or model configuration errors. CRITICAL at
	// startup; if one reaches the router at runtime it is INFRASTRUCTURE/FATAL.
	Config Kind = "config"
	// ApprovalRejected is not a failure; it is the normal terminal of a plan
	// whose approval request was rejected (§4.9). Routed to respond.
	ApprovalRejected Kind = "approval_rejected"
	// Internal covers the error node's own failures. Always FATAL: the error
	// node must never be able to loop back into itself.
	Internal Kind = "internal"
)

// Error wraps an underlying cause with a Kind so capability error classifiers
// and the error node can branch on category without string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Errorf formats a message and wraps it as an *Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// As reports whether err (or any error in its chain) is an *Error and, if so,
// returns it alongside its Kind.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and Internal
// otherwise — an unclassified error defaults to the most conservative kind
// so a buggy capability cannot accidentally downgrade an unknown failure to
// something retriable.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}
