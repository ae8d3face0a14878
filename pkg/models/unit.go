// Package models defines the shared data types for waverunner builds.
package models

// WorkUnit is one schedulable piece of work produced by decomposition.
// Units are immutable once the decomposition is complete.
type WorkUnit struct {
	// ID is the unique identifier for this unit within its decomposition.
	ID string `json:"id" yaml:"id"`
	// Name is a short human-readable description of the unit.
	Name string `json:"name" yaml:"name"`
	// Role is the execution role assigned to the unit (e.g., "implementer").
	Role string `json:"role,omitempty" yaml:"role,omitempty"`
	// Instructions is the full instruction payload handed to the worker.
	Instructions string `json:"instructions" yaml:"instructions"`
	// EstimatedMinutes is the decomposer's duration estimate.
	EstimatedMinutes int `json:"estimated_minutes,omitempty" yaml:"estimated_minutes,omitempty"`
	// Paths lists the path prefixes this unit is permitted to modify.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`
}

// OwnsPath reports whether the given repository-relative path falls under
// one of the unit's permitted path prefixes. A unit with no declared paths
// owns nothing.
func (u *WorkUnit) OwnsPath(path string) bool {
	for _, prefix := range u.Paths {
		if path == prefix {
			return true
		}
		p := prefix
		if p != "" && p[len(p)-1] != '/' {
			p += "/"
		}
		if len(path) > len(p) && path[:len(p)] == p {
			return true
		}
	}
	return false
}

// Wave is a batch of unit IDs with no dependencies among themselves,
// safe to execute fully in parallel.
type Wave struct {
	// UnitIDs are the units that run concurrently in this wave.
	UnitIDs []string `json:"unit_ids" yaml:"units"`
}

// Decomposition is the complete execution plan: all units plus their
// wave placement. Dependencies are encoded by placement: every unit a
// wave member depends on sits in a strictly earlier wave. Produced once
// by the decomposer and read-only afterwards.
type Decomposition struct {
	// Units is the ordered list of all work units in the plan.
	Units []*WorkUnit `json:"units" yaml:"units"`
	// Waves is the ordered list of execution waves.
	Waves []Wave `json:"waves" yaml:"waves"`
}

// Unit returns the unit with the given ID, or nil if it is not part of
// the decomposition.
func (d *Decomposition) Unit(id string) *WorkUnit {
	for _, u := range d.Units {
		if u.ID == id {
			return u
		}
	}
	return nil
}
