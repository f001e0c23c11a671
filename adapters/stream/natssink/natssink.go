// Package natssink implements stream.Sink over NATS core pub/sub (spec
// §4.8, SPEC_FULL §11.5): one JSON message per event, published to a
// per-thread subject so a client subscribes only to the thread it is
// rendering. Grounded on the pack's C360Studio-semspec repo
// (cmd/semspec/app.go's nats.Connect wiring, test/e2e/client/nats.go's
// Publish/PublishJSON helpers), simplified to plain *nats.Conn.Publish since
// this sink needs neither JetStream durability nor the repo's own
// natsclient wrapper (a separate module not vendored into this tree) —
// delivery here is already best-effort by the streaming contract, so core
// NATS pub/sub (at-most-once, no ack) is the right-sized tool.
package natssink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/coriolis-labs/conductor/stream"
)

const defaultSubjectPrefix = "conductor.events."

// conn is the slice of *nats.Conn Sink depends on — the same
// narrow-interface-boundary pattern adapters/runstore/mongo and
// adapters/checkpoint/mongostore use over the Mongo driver, applied here so
// Sink is unit-testable against an in-memory fake rather than a live NATS
// server (the pack carries no embedded NATS test server the way miniredis
// covers Redis).
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Options configures the NATS-backed sink.
type Options struct {
	Conn *nats.Conn
	// SubjectPrefix is prepended to the thread ID to form each event's
	// publish subject; defaults to "conductor.events.".
	SubjectPrefix string
}

// Sink implements stream.Sink by publishing each event as JSON to
// "<prefix><thread_id>".
type Sink struct {
	conn   conn
	prefix string
}

var _ stream.Sink = (*Sink)(nil)

// New returns a Sink backed by opts.Conn.
func New(opts Options) (*Sink, error) {
	if opts.Conn == nil {
		return nil, fmt.Errorf("natssink: connection is required")
	}
	prefix := opts.SubjectPrefix
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &Sink{conn: opts.Conn, prefix: prefix}, nil
}

// envelope wraps an Event with its discriminant so a subscriber can decode
// the right concrete type without a schema registry — every field stream
// defines across its event types is plain-exported, so one envelope covers
// all of them via the standard library's field-name matching.
type envelope struct {
	Type    stream.EventType `json:"type"`
	Payload stream.Event     `json:"payload"`
}

// Send implements stream.Sink. A publish failure is returned to the caller;
// per spec §4.8 the caller (the graph driver) already treats Send's error as
// best-effort and discards it, but Sink still reports it honestly rather
// than swallowing it itself.
func (s *Sink) Send(ctx context.Context, e stream.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Type: e.Type(), Payload: e})
	if err != nil {
		return fmt.Errorf("natssink: marshal event: %w", err)
	}
	subject := s.prefix + e.ThreadID()
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("natssink: publish: %w", err)
	}
	return nil
}

// Close flushes any buffered publishes. It does not close the underlying
// connection: Sink does not own conn's lifecycle, since the same connection
// is typically shared across many threads' sinks.
func (s *Sink) Close(ctx context.Context) error {
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("natssink: flush: %w", err)
	}
	return nil
}
