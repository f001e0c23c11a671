// Package temporal implements graph.Driver as a durable Temporal-backed
// alternative to adapters/graph/inmemdriver (SPEC_FULL §11.4): every
// non-deterministic step of a turn — LLM calls, capability execution,
// stream delivery — runs as a Temporal activity, so a worker crash mid-turn
// resumes from Temporal's own event history rather than losing the turn
// entirely. Each turn-pass is its own workflow execution: Run starts one
// fresh, Resume starts another fresh one carrying the verdict, mirroring
// the "suspension is data, not a blocking call" design the interrupt
// package already uses — there is no long-lived workflow parked on a
// signal channel between turns.
//
// Grounded on the teacher's runtime/agent/engine/temporal package (Options
// struct shape, client/worker wiring, the custom data converter solving an
// analogous opaque-field serialization problem), narrowed from its generic
// multi-workflow Engine abstraction down to the two-method graph.Driver
// contract this module actually needs.
package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/coriolis-labs/conductor/checkpoint"
	"github.com/coriolis-labs/conductor/graph"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
)

// WorkflowName is the name TurnWorkflow is registered under. A worker hosts
// it via worker.RegisterWorkflowWithOptions(TurnWorkflow,
// workflow.RegisterOptions{Name: WorkflowName}).
const WorkflowName = "ConductorTurn"

// DefaultTaskQueue is used when Options.TaskQueue is empty.
const DefaultTaskQueue = "conductor-turns"

// Options configures a Driver.
type Options struct {
	Client       client.Client
	Registry     *registry.Registry
	Checkpointer checkpoint.Store
	TaskQueue    string
	Config       TurnConfig
	// WorkflowTimeout bounds each started workflow execution end to end,
	// independent of TurnConfig.MaxExecutionTimeSeconds (which bounds the
	// turn's own notion of elapsed time from inside the workflow). Defaults
	// to 10 minutes.
	WorkflowTimeout time.Duration
}

// Driver implements graph.Driver by starting one Temporal workflow execution
// per turn-pass.
type Driver struct {
	client       client.Client
	registry     *registry.Registry
	checkpointer checkpoint.Store
	taskQueue    string
	config       TurnConfig
	workflowTO   time.Duration
}

var _ graph.Driver = (*Driver)(nil)

// New returns a Driver. opts.Client must already be configured with
// NewStateDataConverter(opts.Registry) as its DataConverter — Driver does
// not construct the client itself, since client construction also owns
// connection lifecycle the caller must manage independently of any one
// Driver.
func New(opts Options) (*Driver, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("temporal: client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("temporal: registry is required")
	}
	taskQueue := opts.TaskQueue
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	workflowTO := opts.WorkflowTimeout
	if workflowTO <= 0 {
		workflowTO = 10 * time.Minute
	}
	return &Driver{
		client:       opts.Client,
		registry:     opts.Registry,
		checkpointer: opts.Checkpointer,
		taskQueue:    taskQueue,
		config:       opts.Config,
		workflowTO:   workflowTO,
	}, nil
}

// Run starts a new workflow execution for s and waits for it to complete
// (spec §4.4's decision procedure, run durably).
func (d *Driver) Run(ctx context.Context, s state.State) graph.Outcome {
	return d.execute(ctx, s.ThreadID, TurnInput{State: s})
}

// Resume starts a brand-new workflow execution carrying cmd, rather than
// signaling a still-running one — the turn that suspended already
// completed its workflow execution when it returned Suspended, so there is
// nothing left running to signal.
func (d *Driver) Resume(ctx context.Context, s state.State, cmd interrupt.ResumeCommand) graph.Outcome {
	return d.execute(ctx, s.ThreadID, TurnInput{State: s, ResumeCmd: &cmd})
}

func (d *Driver) execute(ctx context.Context, threadID string, in TurnInput) graph.Outcome {
	workflowID := threadID + ":" + uuid.New().String()
	startOpts := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                d.taskQueue,
		WorkflowExecutionTimeout: d.workflowTO,
	}

	run, err := d.client.ExecuteWorkflow(ctx, startOpts, WorkflowName, d.config, in)
	if err != nil {
		return graph.Outcome{State: in.State, Err: fmt.Errorf("temporal: start workflow: %w", err)}
	}

	var result TurnResult
	if err := run.Get(ctx, &result); err != nil {
		return graph.Outcome{State: in.State, Err: fmt.Errorf("temporal: workflow execution: %w", err)}
	}

	finalState, err := checkpoint.Decode(result.StateBytes, d.registry)
	if err != nil {
		return graph.Outcome{State: in.State, Err: fmt.Errorf("temporal: decode final state: %w", err)}
	}

	if result.ErrMsg != "" {
		return graph.Outcome{State: finalState, Err: fmt.Errorf("temporal: %s", result.ErrMsg)}
	}

	if d.checkpointer != nil && (result.Suspended || result.Report == nil) {
		if err := d.checkpointer.Put(ctx, finalState.ThreadID, result.StateBytes); err != nil {
			return graph.Outcome{State: finalState, Report: result.Report, Err: fmt.Errorf("temporal: persist checkpoint: %w", err)}
		}
	}

	return graph.Outcome{State: finalState, Suspended: result.Suspended, Report: result.Report}
}
