// conductorctl is a minimal concrete front-end over gateway.Process
// (SPEC_FULL §11.7): it reads one user turn per stdin line, drives it
// through a graph.Driver, and prints the resulting assistant reply or
// pending interrupt. It is an example, not a spec'd component — nothing in
// the core packages imports this tree.
package main

import (
	"github.com/coriolis-labs/conductor/capability"
	"github.com/coriolis-labs/conductor/contextstore"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
)

// buildDemoRegistry wires the smallest registry Initialize will accept: the
// four required infrastructure node names (never invoked through the
// registry — adapters/graph/inmemdriver and adapters/graph/temporal both
// call nodes/* packages directly, the same way the teacher's own engine
// dispatches planner/tool activities by name rather than through a generic
// node table) plus the two always-active capabilities every plan's final
// step targets (spec §3, plan.RespondCapability/ClarifyCapability).
//
// respond echoes the extracted task back as an acknowledgement; clarify
// asks the user the question the orchestrator placed in the step's
// task_objective. Both are demo stand-ins — a real deployment supplies its
// own domain capabilities and its own respond/clarify implementations tied
// to its own presentation layer.
func buildDemoRegistry() (*registry.Registry, error) {
	reg := registry.New()

	infra := func(name string) registry.Registration {
		return registry.Registration{
			Name: name,
			Loader: func() (any, error) {
				return registry.InfrastructureNodeDescriptor{
					Name: name,
					Node: func(snapshot any) (any, error) { return snapshot, nil },
				}, nil
			},
		}
	}

	respond := registry.Registration{
		Name: plan.RespondCapability,
		Loader: func() (any, error) {
			return registry.CapabilityDescriptor{
				Name:         plan.RespondCapability,
				Description:  "Summarizes the gathered context back to the user in plain text.",
				AlwaysActive: true,
				Execute:      capability.AsRegistryExecutor(respondExecute),
			}, nil
		},
	}

	clarify := registry.Registration{
		Name: plan.ClarifyCapability,
		Loader: func() (any, error) {
			return registry.CapabilityDescriptor{
				Name:         plan.ClarifyCapability,
				Description:  "Asks the user a clarifying question instead of proceeding.",
				AlwaysActive: true,
				Execute:      capability.AsRegistryExecutor(clarifyExecute),
			}, nil
		},
	}

	// note is a permissive (schema-less) context class so a demo capability
	// has somewhere to write free-form findings; a real deployment declares
	// its own schema-validated types per spec §4.2 instead.
	note := registry.Registration{
		Name: "NOTE",
		Loader: func() (any, error) {
			return registry.ContextClassDescriptor{
				Type:        "NOTE",
				Description: "A free-form note a capability recorded for the final reply to draw on.",
			}, nil
		},
	}

	err := reg.Register(registry.ConfigProvider{
		InfrastructureNodes: []registry.Registration{
			infra("task_extraction"),
			infra("classification"),
			infra("orchestration"),
			infra("error_node"),
		},
		ContextClasses: []registry.Registration{note},
		Capabilities:   []registry.Registration{respond, clarify},
	})
	if err != nil {
		return nil, err
	}
	if err := reg.Initialize(); err != nil {
		return nil, err
	}
	return reg, nil
}

func respondExecute(ctx *capability.ExecutionContext) (state.Delta, error) {
	text := "Done."
	if ctx.State.Task.CurrentTask != nil && *ctx.State.Task.CurrentTask != "" {
		text = "Here's what I found for: " + *ctx.State.Task.CurrentTask
	}
	if summary := contextSummary(ctx.Context); summary != "" {
		text += "\n\n" + summary
	}
	return state.Delta{
		MessagesAppend:   []state.Message{{Role: "assistant", Content: text}},
		CurrentStepIndex: state.Set(ctx.State.Planning.CurrentStepIndex + 1),
	}, nil
}

func clarifyExecute(ctx *capability.ExecutionContext) (state.Delta, error) {
	question := ctx.Step.TaskObjective
	if question == "" {
		question = "Could you clarify what you'd like me to do?"
	}
	return state.Delta{
		MessagesAppend:   []state.Message{{Role: "assistant", Content: question}},
		CurrentStepIndex: state.Set(ctx.State.Planning.CurrentStepIndex + 1),
	}, nil
}

// contextSummary renders every value a plan's steps wrote to the shared
// context store so respond's reply reflects whatever the turn actually
// gathered rather than only the acknowledgement line.
func contextSummary(store *contextstore.Store) string {
	if store == nil {
		return ""
	}
	var out string
	for t, byKey := range store.Export() {
		for key, v := range byKey {
			if v.Summary == "" {
				continue
			}
			out += string(t) + "/" + key + ": " + v.Summary + "\n"
		}
	}
	return out
}
