package orchestrator

import (
	"fmt"
	"strings"
)

// WaveError reports a wave whose units did not all complete. It is raised
// only after every unit in the wave reached a terminal result.
type WaveError struct {
	// Wave is the zero-based index of the failed wave.
	Wave int
	// FailedUnits lists the IDs of the units that failed.
	FailedUnits []string
}

// Error implements the error interface.
func (e *WaveError) Error() string {
	return fmt.Sprintf("wave %d failed: units %s", e.Wave, strings.Join(e.FailedUnits, ", "))
}
