// Package gateway implements the process_message entry point (spec §4.11,
// §6 "External interfaces", SPEC_FULL §12.4): the boundary between a raw
// inbound user message and the turn-scoped state.State a graph run consumes.
// It owns snapshot loading, slash-command parsing, and interrupt-reply
// classification — nothing downstream of Process needs to know a message
// ever carried a leading "/approval:all" or that a reply was in fact an
// answer to a pending approval rather than a new instruction.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coriolis-labs/conductor/checkpoint"
	"github.com/coriolis-labs/conductor/contextstore"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/state"
)

// Config carries the per-call identity the gateway needs beyond the message
// text itself.
type Config struct {
	ThreadID string
}

// Result is Process's single return value. Exactly one of AgentState or
// ResumeCommand is meaningful for a successful call: AgentState starts a
// fresh graph run, ResumeCommand resumes a suspended one. Err non-nil means
// neither is usable.
type Result struct {
	AgentState                state.State
	ResumeCommand              *interrupt.ResumeCommand
	Err                        error
	SlashCommandsProcessed     []SlashCommand
	UnrecognizedSlashCommands  []string
	ApprovalDetected           bool
}

// Process implements spec §4.11's five steps: load the prior snapshot (if
// any), parse and apply slash commands, classify the reply against any
// pending interrupt, and either produce a ResumeCommand or construct a fresh
// turn's State.
func Process(ctx context.Context, store checkpoint.Store, lookup contextstore.SchemaLookup, svc llm.Service, cfg llm.ModelConfig, userInput string, gwCfg Config) Result {
	prior, found, err := loadPrior(ctx, store, lookup, gwCfg.ThreadID)
	if err != nil {
		return Result{Err: fmt.Errorf("gateway: load snapshot: %w", err)}
	}

	commands, stripped := ParseSlashCommands(userInput)
	control := state.AgentControl{ApprovalMode: state.ApprovalDisabled}
	if found {
		control = prior.AgentControl
	}
	control, unknown := ApplySlashCommands(control, commands)

	if found && prior.Control.PendingInterrupt != nil {
		pending := *prior.Control.PendingInterrupt
		decision := interrupt.Classify(ctx, svc, cfg, pending, stripped)
		switch decision {
		case interrupt.Approve:
			return Result{
				ResumeCommand:             &interrupt.ResumeCommand{Approved: true},
				SlashCommandsProcessed:    commands,
				UnrecognizedSlashCommands: unknown,
				ApprovalDetected:          true,
			}
		case interrupt.Reject:
			return Result{
				ResumeCommand:             &interrupt.ResumeCommand{Approved: false, Reason: stripped},
				SlashCommandsProcessed:    commands,
				UnrecognizedSlashCommands: unknown,
				ApprovalDetected:          true,
			}
		case interrupt.Edit:
			replacement, perr := parseEditedPlan(stripped)
			if perr != nil {
				return Result{
					Err:                       fmt.Errorf("gateway: parse edited plan: %w", perr),
					SlashCommandsProcessed:    commands,
					UnrecognizedSlashCommands: unknown,
					ApprovalDetected:          true,
				}
			}
			return Result{
				ResumeCommand:             &interrupt.ResumeCommand{Approved: true, Replacement: replacement},
				SlashCommandsProcessed:    commands,
				UnrecognizedSlashCommands: unknown,
				ApprovalDetected:          true,
			}
		case interrupt.Other:
			// Not a reply to the pending interrupt: fall through and treat
			// stripped as a brand new message, discarding the stale
			// suspension (spec §4.11: "an unrelated message abandons the
			// pending interrupt rather than blocking the thread forever").
		}
	}

	fresh := freshTurnState(prior, found, control, stripped, gwCfg.ThreadID, lookup)
	return Result{
		AgentState:                fresh,
		SlashCommandsProcessed:    commands,
		UnrecognizedSlashCommands: unknown,
	}
}

// loadPrior fetches and decodes the prior turn's checkpoint, if a store is
// configured and a snapshot exists for threadID.
func loadPrior(ctx context.Context, store checkpoint.Store, lookup contextstore.SchemaLookup, threadID string) (state.State, bool, error) {
	if store == nil {
		return state.State{}, false, nil
	}
	snap, found, err := store.Get(ctx, threadID)
	if err != nil {
		return state.State{}, false, err
	}
	if !found {
		return state.State{}, false, nil
	}
	s, err := checkpoint.Decode(snap, lookup)
	if err != nil {
		return state.State{}, false, err
	}
	return s, true, nil
}

// freshTurnState builds the State a new graph run starts from: conversation
// history carries forward, AgentControl carries forward (as updated by any
// slash commands this turn), and every per-turn subspace — task, planning,
// control, context — starts clean (spec §3: "Task/Planning/Control reset
// each turn; Messages and AgentControl persist across turns").
func freshTurnState(prior state.State, found bool, control state.AgentControl, strippedMessage, threadID string, lookup contextstore.SchemaLookup) state.State {
	s := state.New(threadID, contextstore.New(lookup))
	switch {
	case strings.TrimSpace(strippedMessage) == "":
		// Input consisting only of slash-commands and whitespace carries no
		// user message: leave Messages untouched rather than appending an
		// empty one (P7: no state changes beyond AgentControl).
		if found {
			s.Messages = append([]state.Message(nil), prior.Messages...)
		}
	case found:
		s.Messages = append(append([]state.Message(nil), prior.Messages...), state.Message{Role: "user", Content: strippedMessage})
	default:
		s.Messages = []state.Message{{Role: "user", Content: strippedMessage}}
	}
	s.AgentControl = control
	return s
}

// parseEditedPlan parses the free-text reply to an "edit" decision into a
// replacement Plan. SPEC_FULL §12.3 frames YAML as the human-reviewable
// format surfaced to a user asked to approve or edit a plan, so a YAML
// document is tried first; a JSON object (e.g. from a programmatic client)
// is accepted as a fallback.
func parseEditedPlan(raw string) (*plan.Plan, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("edit reply carried no plan content")
	}
	if p, err := plan.UnmarshalPlanYAML([]byte(trimmed)); err == nil {
		return p, nil
	}
	var p plan.Plan
	if err := json.Unmarshal([]byte(trimmed), &p); err == nil {
		return &p, nil
	}
	return nil, fmt.Errorf("edit reply is neither a valid plan YAML document nor JSON object")
}
