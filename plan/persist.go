package plan

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// metadata is the __metadata__ envelope required by the JSON persistence
// format in spec §6.
type metadata struct {
	Version            string    `json:"version"`
	OriginalTask       string    `json:"original_task"`
	CreatedAt          time.Time `json:"created_at"`
	SerializationType  string    `json:"serialization_type"`
}

type document struct {
	Metadata metadata `json:"__metadata__"`
	Steps    []Step   `json:"steps"`
}

const serializationType = "pending_execution_plan"

// MarshalJSON serializes p into the wire format from spec §6: a
// __metadata__ envelope (version, original_task, created_at,
// serialization_type) alongside the steps array.
func (p *Plan) MarshalJSON() ([]byte, error) {
	doc := document{
		Metadata: metadata{
			Version:           p.Version,
			OriginalTask:      p.OriginalTask,
			CreatedAt:         p.CreatedAt,
			SerializationType: serializationType,
		},
		Steps: p.Steps,
	}
	return json.Marshal(doc)
}

// UnmarshalJSON parses the spec §6 wire format back into a Plan, preserving
// step order, dependencies, and metadata bit-identically (spec P10).
func (p *Plan) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Metadata.SerializationType != "" && doc.Metadata.SerializationType != serializationType {
		return fmt.Errorf("plan: unexpected serialization_type %q", doc.Metadata.SerializationType)
	}
	p.Version = doc.Metadata.Version
	p.OriginalTask = doc.Metadata.OriginalTask
	p.CreatedAt = doc.Metadata.CreatedAt
	p.Steps = doc.Steps
	return nil
}

// yamlDocument mirrors document for the supplementary YAML export (SPEC_FULL
// §12.3), keeping the same __metadata__ shape so either format round-trips
// through the same mental model for reviewers reading a plan during
// SELECTIVE/ALL approval.
type yamlDocument struct {
	Metadata metadata `yaml:"__metadata__"`
	Steps    []Step   `yaml:"steps"`
}

// MarshalYAML renders p using the same metadata envelope as the JSON format,
// for human review during plan approval (SPEC_FULL §12.3).
func (p *Plan) MarshalYAML() ([]byte, error) {
	doc := yamlDocument{
		Metadata: metadata{
			Version:           p.Version,
			OriginalTask:      p.OriginalTask,
			CreatedAt:         p.CreatedAt,
			SerializationType: serializationType,
		},
		Steps: p.Steps,
	}
	return yaml.Marshal(doc)
}

// UnmarshalPlanYAML parses the YAML export format back into a Plan.
func UnmarshalPlanYAML(data []byte) (*Plan, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &Plan{
		Version:      doc.Metadata.Version,
		OriginalTask: doc.Metadata.OriginalTask,
		CreatedAt:    doc.Metadata.CreatedAt,
		Steps:        doc.Steps,
	}, nil
}
