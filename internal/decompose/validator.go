package decompose

import (
	"fmt"

	"github.com/waverunner-ai/waverunner/pkg/models"
)

// Validate checks the wave-partition invariants: unit IDs are unique,
// every wave member references a declared unit, every unit is placed in
// exactly one wave, and no wave is empty. Wave placement is the
// dependency encoding, so a dangling reference or a double placement is
// the plan-level equivalent of a broken dependency graph.
// Returns nil or an *Error listing every finding.
func Validate(d *models.Decomposition) error {
	var findings []string

	if d == nil || len(d.Units) == 0 {
		return &Error{Messages: []string{"plan contains no work units"}}
	}
	if len(d.Waves) == 0 {
		findings = append(findings, "plan contains no waves")
	}

	declared := make(map[string]bool, len(d.Units))
	for _, u := range d.Units {
		if u.ID == "" {
			findings = append(findings, fmt.Sprintf("unit %q has no id", u.Name))
			continue
		}
		if declared[u.ID] {
			findings = append(findings, fmt.Sprintf("duplicate unit id %q", u.ID))
		}
		declared[u.ID] = true
	}

	placed := make(map[string]int)
	for i, wave := range d.Waves {
		if len(wave.UnitIDs) == 0 {
			findings = append(findings, fmt.Sprintf("wave %d is empty", i))
		}
		for _, id := range wave.UnitIDs {
			if !declared[id] {
				findings = append(findings, fmt.Sprintf("wave %d references undeclared unit %q", i, id))
				continue
			}
			placed[id]++
			if placed[id] == 2 {
				findings = append(findings, fmt.Sprintf("unit %q appears in more than one wave", id))
			}
		}
	}

	for _, u := range d.Units {
		if u.ID != "" && placed[u.ID] == 0 {
			findings = append(findings, fmt.Sprintf("unit %q is not placed in any wave", u.ID))
		}
	}

	if len(findings) > 0 {
		return &Error{Messages: findings}
	}
	return nil
}
