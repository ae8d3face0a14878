package orchestrator

import (
	"time"

	"github.com/waverunner-ai/waverunner/pkg/models"
)

// DurationEstimate compares sequential and wave-parallel execution time for
// a decomposition, based on each unit's estimated minutes.
type DurationEstimate struct {
	// Sequential is the sum of every unit's estimate.
	Sequential time.Duration
	// Parallel is the sum of each wave's longest unit estimate.
	Parallel time.Duration
}

// Speedup returns the sequential/parallel ratio, or 1 when parallel is zero.
func (e DurationEstimate) Speedup() float64 {
	if e.Parallel == 0 {
		return 1
	}
	return float64(e.Sequential) / float64(e.Parallel)
}

// EstimateDurations computes the duration estimate for a decomposition.
// Units missing from the decomposition's unit list contribute zero.
func EstimateDurations(d *models.Decomposition) DurationEstimate {
	var est DurationEstimate
	for _, wave := range d.Waves {
		var longest time.Duration
		for _, id := range wave.UnitIDs {
			unit := d.Unit(id)
			if unit == nil {
				continue
			}
			minutes := time.Duration(unit.EstimatedMinutes) * time.Minute
			est.Sequential += minutes
			if minutes > longest {
				longest = minutes
			}
		}
		est.Parallel += longest
	}
	return est
}
