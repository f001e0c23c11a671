// Package stream defines the best-effort streaming status contract (spec
// §4.8 "Streaming contract", §5 "Suspension points"): a Sink clients
// implement to receive progress as a turn executes, and the Event types a
// turn may emit. Delivery is best-effort — dropping an event is never an
// error the core surfaces — and ordering is only guaranteed within a single
// capability call, never across capability calls (spec §5, since there is
// no concurrency across capabilities in this design).
package stream

import (
	"context"
	"time"

	"github.com/coriolis-labs/conductor/capability"
	"github.com/coriolis-labs/conductor/interrupt"
)

// EventType enumerates stream payload flavors.
type EventType string

const (
	// EventStatus carries a capability's free-text progress update (spec
	// §4.8's status(text) sink).
	EventStatus EventType = "status"
	// EventStepStarted fires when the graph driver is about to dispatch a
	// plan step's capability.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted fires when a capability step returns, success or
	// failure.
	EventStepCompleted EventType = "step_completed"
	// EventApprovalRequested fires when a node suspends pending approval
	// (spec §4.9).
	EventApprovalRequested EventType = "approval_requested"
	// EventAssistantReply carries the final respond/clarify message text.
	EventAssistantReply EventType = "assistant_reply"
)

type (
	// Sink delivers streaming events to a client over some transport (SSE,
	// WebSocket, a message bus). Implementations must be safe for concurrent
	// use; the teacher's equivalent (runtime/agents/stream.Sink) carries the
	// same requirement for the same reason — a single sink may be shared
	// across independent conversation threads.
	Sink interface {
		Send(ctx context.Context, event Event) error
		Close(ctx context.Context) error
	}

	// Event is one streamed update. Concrete event types embed Base.
	Event interface {
		Type() EventType
		ThreadID() string
		Payload() any
	}

	// Base provides Event's three accessors; concrete event types embed it.
	Base struct {
		T  EventType
		Th string
		P  any
	}

	// Status streams a capability's free-text progress update.
	Status struct {
		Base
		CapabilityName string
		ContextKey     string
		Text           string
	}

	// StepStarted streams the dispatch of one plan step.
	StepStarted struct {
		Base
		ContextKey string
		Capability string
	}

	// StepCompleted streams a plan step's outcome.
	StepCompleted struct {
		Base
		ContextKey string
		Capability string
		Duration   time.Duration
		Err        string
	}

	// ApprovalRequested streams a pending interrupt payload.
	ApprovalRequested struct {
		Base
		Pending interrupt.Payload
	}

	// AssistantReply streams the final message text for the turn.
	AssistantReply struct {
		Base
		Text string
	}
)

func (e Base) Type() EventType  { return e.T }
func (e Base) ThreadID() string { return e.Th }
func (e Base) Payload() any     { return e.P }

// noopSink discards every event.
type noopSink struct{}

func (noopSink) Send(context.Context, Event) error { return nil }
func (noopSink) Close(context.Context) error        { return nil }

// NoopSink is the zero-cost Sink substituted when the caller supplies none.
var NoopSink Sink = noopSink{}

// statusBridge adapts a (Sink, threadID, capabilityName, contextKey) tuple
// into the single-method capability.StatusSink a capability's Execute
// closure actually calls, so capabilities need not know about Sink or Event
// at all (spec §4.8: "the wrapper exposes a status(text) sink").
type statusBridge struct {
	ctx            context.Context
	sink           Sink
	threadID       string
	capabilityName string
	contextKey     string
}

// StatusBridge returns a capability.StatusSink that forwards every Status
// call into sink as an EventStatus Event. Delivery errors from sink.Send are
// swallowed: per spec §4.8, dropping a status message is never an error.
func StatusBridge(ctx context.Context, sink Sink, threadID, capabilityName, contextKey string) capability.StatusSink {
	if sink == nil {
		sink = NoopSink
	}
	return &statusBridge{ctx: ctx, sink: sink, threadID: threadID, capabilityName: capabilityName, contextKey: contextKey}
}

func (b *statusBridge) Status(text string) {
	_ = b.sink.Send(b.ctx, Status{
		Base:           Base{T: EventStatus, Th: b.threadID, P: text},
		CapabilityName: b.capabilityName,
		ContextKey:     b.contextKey,
		Text:           text,
	})
}
