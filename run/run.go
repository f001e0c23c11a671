// Package run defines the run-metadata store contract (spec SPEC_FULL
// §11.6): an observability-only record of a turn's lifecycle, entirely off
// the hot path — a turn executes correctly whether or not a Store is wired,
// and a Store failure is never allowed to fail the turn itself.
package run

import (
	"context"
	"errors"
	"time"
)

// Status is the coarse-grained lifecycle state of one turn's execution,
// matching the graph driver's own terminal shapes (spec §4.4, §4.9):
// suspended mirrors graph.Outcome.Suspended, completed/failed mirror a
// normal finish versus an errornode.Report.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record captures persistent metadata for one turn's execution: enough to
// answer "what happened to thread X's last turn" without replaying the
// checkpoint itself.
type Record struct {
	ThreadID  string
	RunID     string
	Status    Status
	StartedAt time.Time
	UpdatedAt time.Time
	Labels    map[string]string
	// ErrorType mirrors errornode.Report.ErrorType when Status is
	// StatusFailed; empty otherwise.
	ErrorType string
}

// Store persists run metadata for observability and lookup (spec SPEC_FULL
// §11.6). Implementations must tolerate repeated Upsert calls for the same
// RunID (last-write-wins on UpdatedAt) since a turn transitions through
// several statuses over its lifetime.
type Store interface {
	Upsert(ctx context.Context, record Record) error
	Load(ctx context.Context, runID string) (Record, error)
}

// ErrNotFound indicates no run record exists for the given RunID.
var ErrNotFound = errors.New("run: not found")
