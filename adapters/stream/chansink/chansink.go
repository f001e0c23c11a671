// Package chansink implements stream.Sink over a buffered Go channel (spec
// §4.8, SPEC_FULL §11.5): the simplest possible in-process sink, useful for
// tests and for a single-process deployment that renders events directly
// rather than publishing them to an external transport. Grounded on the
// teacher's features/stream/pulse.Subscriber, whose SubscriberOptions.Buffer
// ("specifies the event channel capacity, defaults to 64") is the template
// for DefaultBuffer here, adapted from the receiving side (Pulse → channel)
// to the sending side (Send → channel) since this sink's caller is the
// graph driver, not an external broker's consumer loop.
package chansink

import (
	"context"
	"fmt"
	"sync"

	"github.com/coriolis-labs/conductor/stream"
)

// DefaultBuffer matches the teacher's own default channel capacity.
const DefaultBuffer = 64

// Sink implements stream.Sink by pushing every event onto a buffered
// channel. Events() exposes the channel for a consumer to range over. mu
// serializes Send against Close so the channel is never closed while a Send
// is enqueueing onto it — sending on a closed channel panics, and Go gives
// no other way to ask "is this channel closed" atomically with a send.
type Sink struct {
	mu     sync.Mutex
	events chan stream.Event
	closed bool
}

var _ stream.Sink = (*Sink)(nil)

// New returns a Sink with the given channel capacity. A non-positive buffer
// falls back to DefaultBuffer.
func New(buffer int) *Sink {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Sink{events: make(chan stream.Event, buffer)}
}

// Events returns the channel events are delivered on. It is closed when
// Close is called.
func (s *Sink) Events() <-chan stream.Event {
	return s.events
}

// Send implements stream.Sink. It blocks until the event is enqueued or the
// context is canceled, whichever happens first. A full channel with no
// consumer draining it therefore backpressures the caller rather than
// silently dropping events; callers that cannot tolerate blocking should
// size the buffer generously or drain promptly.
func (s *Sink) Send(ctx context.Context, e stream.Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("chansink: sink is closed")
	}
	// Held across the blocking send so Close cannot close the channel out
	// from under it; Close waits until an in-flight Send is drained or its
	// ctx is canceled, so a Send on a never-canceled ctx with no consumer
	// blocks Close as well.
	defer s.mu.Unlock()

	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements stream.Sink. It closes the events channel so a ranging
// consumer observes the end of the stream; Close is idempotent.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
