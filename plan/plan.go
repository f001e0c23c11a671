// Package plan defines the execution plan data model produced by the
// orchestrator node (spec §3, §4.7) and the persistence format used to
// checkpoint and review it (spec §6).
package plan

import (
	"time"

	"github.com/coriolis-labs/conductor/contextstore"
)

type (
	// Plan is an ordered, dependency-consistent sequence of steps produced
	// once per orchestration attempt. Immutable once validated, except via a
	// fresh re-planning cycle that produces a new Plan (spec §3).
	Plan struct {
		OriginalTask string    `json:"original_task" yaml:"original_task"`
		CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
		Version      string    `json:"version" yaml:"version"`
		Steps        []Step    `json:"steps" yaml:"steps"`
	}

	// Step is one plan entry: the capability to invoke, its inputs (by prior
	// context_keys), and the output context_key it must produce.
	Step struct {
		ContextKey       string               `json:"context_key" yaml:"context_key"`
		Capability       string               `json:"capability" yaml:"capability"`
		TaskObjective    string               `json:"task_objective" yaml:"task_objective"`
		SuccessCriteria  string               `json:"success_criteria" yaml:"success_criteria"`
		ExpectedOutput   contextstore.Type    `json:"expected_output,omitempty" yaml:"expected_output,omitempty"`
		Parameters       map[string]any       `json:"parameters,omitempty" yaml:"parameters,omitempty"`
		Inputs           contextstore.StepInputs `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	}
)

// RespondCapability and ClarifyCapability are the two always-active
// capability names a plan's final step may target (spec §3 Step invariant,
// §4.7 validation pass).
const (
	RespondCapability = "respond"
	ClarifyCapability  = "clarify"
)
