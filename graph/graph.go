// Package graph declares the turn-execution contract every concrete driver
// implements (spec §2 "control flows... Router <- capability/infra nodes",
// §5 "Concurrency & resource model", SPEC_FULL §11.4): drive a
// Gateway-built State through the graph to a terminal Outcome —
// respond/clarify reached, an error reported, or a suspension checkpointed
// for the Gateway to resume later. Two implementations satisfy Driver:
// adapters/graph/inmemdriver (the default, a direct in-process dispatch
// loop) and adapters/graph/temporal (a durable Temporal-backed workflow).
// Neither the Gateway nor the router package imports either adapter
// directly — both depend only on this package.
package graph

import (
	"context"
	"time"

	"github.com/coriolis-labs/conductor/capability"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/nodes/errornode"
	"github.com/coriolis-labs/conductor/router"
	"github.com/coriolis-labs/conductor/state"
)

// DefaultRecursionLimit bounds total node invocations per turn against
// router oscillation bugs (spec §5 "Graph recursion limit... default 100").
const DefaultRecursionLimit = 100

// Sleep abstracts the router's retry backoff wait so tests can run it
// instantaneously; defaults to time.Sleep.
type Sleep func(time.Duration)

// Config bundles every turn-scoped policy knob a Driver consults.
type Config struct {
	Limits                  router.Limits
	RecursionLimit          int
	MaxExecutionTimeSeconds float64
	RunPolicy               capability.RunPolicy
	ToolMetadata            map[string]capability.ToolMetadata
	Clock                   capability.Clock
	Sleep                   Sleep
}

// Outcome is a Driver call's single return value. Exactly one of the three
// terminal shapes is populated: Suspended (with State.Control.PendingInterrupt
// set), Report (a terminal failure explanation), or neither (a normal run to
// completion — the final State's context/messages carry the result). Err is
// reserved for a Go-level failure in the driver itself (e.g. a checkpoint
// write failing), distinct from a domain failure, which always surfaces as
// Report instead.
type Outcome struct {
	State     state.State
	Suspended bool
	Report    *errornode.Report
	Err       error
}

// Driver drives a turn through the graph to a terminal Outcome. Run starts
// (or continues) a turn from its current State; Resume re-enters a turn
// previously suspended on an interrupt, given the caller's verdict.
type Driver interface {
	Run(ctx context.Context, s state.State) Outcome
	Resume(ctx context.Context, s state.State, cmd interrupt.ResumeCommand) Outcome
}
