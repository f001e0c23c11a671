package plan

import "fmt"

// ValidationError reports every defect a single validation pass found in a
// Plan. The orchestrator treats a non-empty ValidationError as the trigger
// for its one-pass self-repair (spec §4.7 step 4) and, failing that, a
// REPLANNING error (spec §7).
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan: %d validation problem(s): %v", len(e.Problems), e.Problems)
}

// Validate checks a Plan against the invariants in spec §3 and the
// orchestrator's hard validation pass (§4.7 step 3):
//
//   - every step.capability is in activeCapabilities
//   - every step.context_key is unique in the plan
//   - every input reference resolves to an earlier step producing the
//     referenced expected_output type
//   - the final step's capability is respond or clarify
//
// It does not check that a capability's requires are satisfiable from
// inputs; that is a property of the registry's descriptor for the
// capability and is checked by package capability at dispatch time, because
// only the registry knows a capability's requires set.
func Validate(p *Plan, activeCapabilities map[string]bool) error {
	var problems []string

	if len(p.Steps) == 0 {
		return &ValidationError{Problems: []string{"plan has no steps"}}
	}

	seenKeys := make(map[string]bool, len(p.Steps))
	// producedKeyType maps a context_key already produced by an earlier step
	// to the context type it was declared to produce.
	producedKeyType := make(map[string]string, len(p.Steps))

	for i, step := range p.Steps {
		if !activeCapabilities[step.Capability] {
			problems = append(problems, fmt.Sprintf(
				"step %d (%s): capability %q is not in active_capabilities", i, step.ContextKey, step.Capability))
		}

		if step.ContextKey == "" {
			problems = append(problems, fmt.Sprintf("step %d: missing context_key", i))
		} else if seenKeys[step.ContextKey] {
			problems = append(problems, fmt.Sprintf("step %d: duplicate context_key %q", i, step.ContextKey))
		}
		seenKeys[step.ContextKey] = true

		for _, ref := range step.Inputs {
			for t, key := range ref {
				producedType, ok := producedKeyType[key]
				if !ok {
					problems = append(problems, fmt.Sprintf(
						"step %d (%s): input references context_key %q which no earlier step produces", i, step.ContextKey, key))
					continue
				}
				if producedType != string(t) {
					problems = append(problems, fmt.Sprintf(
						"step %d (%s): input expects type %q for key %q but it was produced as %q",
						i, step.ContextKey, t, key, producedType))
				}
			}
		}

		if step.ExpectedOutput != "" {
			producedKeyType[step.ContextKey] = string(step.ExpectedOutput)
		}
	}

	last := p.Steps[len(p.Steps)-1]
	if last.Capability != RespondCapability && last.Capability != ClarifyCapability {
		problems = append(problems, fmt.Sprintf(
			"final step capability %q is neither %q nor %q", last.Capability, RespondCapability, ClarifyCapability))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// MissingRespond reports whether p's self-repair need only append a respond
// step: true iff every other validation problem is the final-step-capability
// problem and no other structural defect exists. The orchestrator's
// self-repair (spec §4.7 step 4, §9) is permitted to synthesize exactly this
// case; any other validation failure must trigger REPLANNING instead.
func MissingRespond(p *Plan, activeCapabilities map[string]bool) bool {
	if len(p.Steps) == 0 {
		return false
	}
	last := p.Steps[len(p.Steps)-1]
	if last.Capability == RespondCapability || last.Capability == ClarifyCapability {
		return false
	}
	withRespond := append(append([]Step{}, p.Steps...), Step{
		ContextKey: syntheticRespondKey(p),
		Capability: RespondCapability,
	})
	clone := &Plan{OriginalTask: p.OriginalTask, CreatedAt: p.CreatedAt, Version: p.Version, Steps: withRespond}
	return Validate(clone, activeCapabilities) == nil
}

// AppendRespond returns a copy of p with a synthesized respond step
// appended, the one self-repair the orchestrator is permitted to perform
// automatically (spec §9).
func AppendRespond(p *Plan) *Plan {
	steps := append(append([]Step{}, p.Steps...), Step{
		ContextKey: syntheticRespondKey(p),
		Capability: RespondCapability,
	})
	return &Plan{OriginalTask: p.OriginalTask, CreatedAt: p.CreatedAt, Version: p.Version, Steps: steps}
}

func syntheticRespondKey(p *Plan) string {
	base := "respond"
	key := base
	taken := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		taken[s.ContextKey] = true
	}
	for n := 1; taken[key]; n++ {
		key = fmt.Sprintf("%s_%d", base, n)
	}
	return key
}
