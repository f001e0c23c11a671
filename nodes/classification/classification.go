// Package classification implements the classification infrastructure node
// (spec §4.6): decides which registered capabilities are relevant to the
// current task.
package classification

import (
	"context"
	"fmt"
	"sync"

	"github.com/coriolis-labs/conductor/errkind"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/plan"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
)

const classifierSchemaHint = `Respond with a JSON object: {"relevant": <bool>, "reason": "<short reason>"}`

// Run classifies every non-always-active capability against the current
// task, in parallel, and returns active_capabilities = always_active ∪
// {relevant capabilities} (spec §4.6 algorithm). The result order (when
// later rendered as a list) follows reg's declared order regardless of
// which goroutine finishes first, because the result is a set (map), not a
// list — only GetAllCapabilities imposes an order, and that order is the
// registry's.
func Run(ctx context.Context, reg *registry.Registry, svc llm.Service, cfg llm.ModelConfig, s state.State) (state.Delta, error) {
	active := reg.GetAlwaysActiveCapabilityNames()

	candidates := make([]registry.CapabilityDescriptor, 0)
	for _, d := range reg.GetAllCapabilities() {
		if !d.AlwaysActive {
			candidates = append(candidates, d)
		}
	}

	task := ""
	if s.Task.CurrentTask != nil {
		task = *s.Task.CurrentTask
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make([]error, len(candidates))
	for i, d := range candidates {
		i, d := i, d
		wg.Add(1)
		go func() {
			defer wg.Done()
			relevant, err := classifyOne(ctx, svc, cfg, task, d)
			if err != nil {
				errs[i] = err
				return
			}
			if relevant {
				mu.Lock()
				active[d.Name] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return state.Delta{}, err
		}
	}

	return state.Delta{
		ActiveCapabilities: state.Set(active),
		ExecutionPlan:      state.Set[*plan.Plan](nil),
		CurrentStepIndex:   state.Set(0),
	}, nil
}

func classifyOne(ctx context.Context, svc llm.Service, cfg llm.ModelConfig, task string, d registry.CapabilityDescriptor) (bool, error) {
	prompt := buildPrompt(task, d)
	result, err := svc.CompleteStructured(ctx, prompt, cfg, classifierSchemaHint)
	if err != nil {
		if llm.IsTimeout(err) {
			return false, errkind.Wrap(errkind.Transport, "classification call timed out for "+d.Name, err)
		}
		return false, errkind.Wrap(errkind.Transport, "classification call failed for "+d.Name, err)
	}
	relevant, _ := result["relevant"].(bool)
	return relevant, nil
}

func buildPrompt(task string, d registry.CapabilityDescriptor) string {
	return fmt.Sprintf("Task: %s\n\nCapability %q: %s\n\n%s", task, d.Name, d.ClassifierGuide.Instructions, examplesBlock(d.ClassifierGuide.Examples))
}

func examplesBlock(examples []registry.ClassifierExample) string {
	if len(examples) == 0 {
		return ""
	}
	out := "Examples:\n"
	for _, ex := range examples {
		out += fmt.Sprintf("- query=%q expected_match=%v reason=%q\n", ex.Query, ex.ExpectedMatch, ex.Reason)
	}
	return out
}
