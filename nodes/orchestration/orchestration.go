// Package orchestration implements the orchestrator infrastructure node
// (spec §4.7): turns the task and active capability set into a validated
// execution Plan.
package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coriolis-labs/conductor/contextstore"
	"github.com/coriolis-labs/conductor/errkind"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
)

// DefaultMaxPlanningAttempts matches spec §4.7's named default.
const DefaultMaxPlanningAttempts = 2

const planSchemaHint = `Respond with a JSON object: {"steps": [{"context_key": "...",
"capability": "...", "task_objective": "...", "success_criteria": "...",
"expected_output": "CTX_TYPE" | null, "parameters": {...} | null,
"inputs": [{"CTX_TYPE": "prior_context_key"}, ...]}, ...]}`

// Result is Run's output: the delta to merge plus whether the freshly
// validated plan must be held for approval before execution proceeds (spec
// §4.7 step 5). When NeedsApproval is set, Delta also carries the
// plan-approval PendingInterrupt payload; the graph driver checkpoints and
// returns to the caller instead of continuing.
type Result struct {
	Delta          state.Delta
	NeedsApproval bool
}

// Run builds the orchestrator prompt, requests a structured Plan, validates
// it (with the one-pass respond self-repair), and returns the delta that
// installs it (spec §4.7 algorithm steps 1-4).
func Run(ctx context.Context, reg *registry.Registry, svc llm.Service, cfg llm.ModelConfig, s state.State) (Result, error) {
	task := ""
	if s.Task.CurrentTask != nil {
		task = *s.Task.CurrentTask
	}

	active := make([]registry.CapabilityDescriptor, 0, len(s.Planning.ActiveCapabilities))
	for _, d := range reg.GetAllCapabilities() {
		if s.Planning.ActiveCapabilities[d.Name] {
			active = append(active, d)
		}
	}

	prompt := buildPrompt(task, active, reg)
	raw, err := svc.CompleteStructured(ctx, prompt, cfg, planSchemaHint)
	if err != nil {
		if llm.IsTimeout(err) {
			return Result{}, errkind.Wrap(errkind.Transport, "orchestrator call timed out", err)
		}
		return Result{}, errkind.Wrap(errkind.Transport, "orchestrator call failed", err)
	}

	p, err := decodePlan(task, raw)
	if err != nil {
		return Result{}, errkind.Wrap(errkind.Validation, "orchestrator returned an unparseable plan", err)
	}

	if verr := plan.Validate(p, s.Planning.ActiveCapabilities); verr != nil {
		if plan.MissingRespond(p, s.Planning.ActiveCapabilities) {
			p = plan.AppendRespond(p)
		} else {
			return Result{}, errkind.Wrap(errkind.ContextMissing, "orchestrator produced an invalid plan", verr)
		}
	}
	if verr := plan.Validate(p, s.Planning.ActiveCapabilities); verr != nil {
		return Result{}, errkind.Wrap(errkind.ContextMissing, "orchestrator produced an invalid plan after repair", verr)
	}

	needsApproval := s.AgentControl.ApprovalMode == state.ApprovalAll || s.AgentControl.PlanningMode

	delta := state.Delta{
		ExecutionPlan:    state.Set(p),
		PlansCreated:     state.Set(s.Planning.PlansCreated + 1),
		CurrentStepIndex: state.Set(0),
	}
	if needsApproval {
		delta.PendingInterrupt = state.Set(&interrupt.Payload{
			Kind:     interrupt.PlanApproval,
			NodeName: "orchestration",
			Plan:     p,
			Prompt:   fmt.Sprintf("Approve this %d-step plan for %q?", len(p.Steps), task),
		})
	}

	return Result{Delta: delta, NeedsApproval: needsApproval}, nil
}

func buildPrompt(task string, active []registry.CapabilityDescriptor, reg *registry.Registry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nAvailable capabilities (in presentation order):\n", task)
	for _, d := range active {
		fmt.Fprintf(&b, "- %s: %s\n  guide: %s\n  provides: %v requires: %v\n",
			d.Name, d.Description, d.OrchestratorGuide.Instructions, d.Provides, d.Requires)
		for _, t := range d.Provides {
			if cc, ok := reg.GetContextClass(t); ok {
				fmt.Fprintf(&b, "  context type %s: %s\n", t, cc.Description)
			}
		}
	}
	b.WriteString("\nThe final step's capability must be respond or clarify.\n")
	return b.String()
}

func decodePlan(task string, raw map[string]any) (*plan.Plan, error) {
	stepsRaw, ok := raw["steps"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing steps array")
	}

	steps := make([]plan.Step, 0, len(stepsRaw))
	for _, sRaw := range stepsRaw {
		m, ok := sRaw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step is not an object")
		}
		step := plan.Step{
			ContextKey:      stringField(m, "context_key"),
			Capability:      stringField(m, "capability"),
			TaskObjective:   stringField(m, "task_objective"),
			SuccessCriteria: stringField(m, "success_criteria"),
		}
		if eo, ok := m["expected_output"].(string); ok && eo != "" {
			step.ExpectedOutput = contextstore.Type(eo)
		}
		if params, ok := m["parameters"].(map[string]any); ok {
			step.Parameters = params
		}
		if inputsRaw, ok := m["inputs"].([]any); ok {
			for _, inRaw := range inputsRaw {
				inMap, ok := inRaw.(map[string]any)
				if !ok {
					continue
				}
				entry := make(map[contextstore.Type]string, len(inMap))
				for k, v := range inMap {
					if vs, ok := v.(string); ok {
						entry[contextstore.Type(k)] = vs
					}
				}
				step.Inputs = append(step.Inputs, entry)
			}
		}
		steps = append(steps, step)
	}

	return &plan.Plan{
		OriginalTask: task,
		CreatedAt:    time.Now(),
		Version:      "1.0",
		Steps:        steps,
	}, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
