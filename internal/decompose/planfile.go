package decompose

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/waverunner-ai/waverunner/pkg/models"
)

// planYAML is the on-disk plan format.
type planYAML struct {
	Units []*models.WorkUnit `yaml:"units"`
	Waves []struct {
		Units []string `yaml:"units"`
	} `yaml:"waves"`
}

// FromFile loads and validates a plan from a YAML file. Runs driven by a
// hand-written plan skip the model-backed decomposer entirely.
func FromFile(path string) (*models.Decomposition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML plan.
func Parse(data []byte) (*models.Decomposition, error) {
	var plan planYAML
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, &Error{Messages: []string{fmt.Sprintf("malformed plan YAML: %v", err)}}
	}

	d := &models.Decomposition{Units: plan.Units}
	for _, w := range plan.Waves {
		d.Waves = append(d.Waves, models.Wave{UnitIDs: w.Units})
	}

	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

// WriteFile saves a plan as YAML, for editing and replay.
func WriteFile(path string, d *models.Decomposition) error {
	plan := planYAML{Units: d.Units}
	for _, w := range d.Waves {
		plan.Waves = append(plan.Waves, struct {
			Units []string `yaml:"units"`
		}{Units: w.UnitIDs})
	}

	data, err := yaml.Marshal(&plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write plan file: %w", err)
	}
	return nil
}
