// Package orchestrator drives decompositions through waves of parallel work
// units and into a merged result branch.
package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventDecompositionStarted indicates decomposition of the spec has begun.
	EventDecompositionStarted EventType = "decomposition_started"
	// EventDecompositionCompleted indicates a valid decomposition was produced.
	EventDecompositionCompleted EventType = "decomposition_completed"
	// EventWaveStarted indicates a wave of units has started executing.
	EventWaveStarted EventType = "wave_started"
	// EventWaveCompleted indicates every unit in a wave reached a terminal outcome.
	EventWaveCompleted EventType = "wave_completed"
	// EventUnitStarted indicates a work unit has started execution.
	EventUnitStarted EventType = "unit_started"
	// EventUnitProgress carries free-text progress from a running unit.
	EventUnitProgress EventType = "unit_progress"
	// EventUnitInterrupt indicates a unit is blocked on a human question.
	EventUnitInterrupt EventType = "unit_interrupt"
	// EventUnitCompleted indicates a work unit completed successfully.
	EventUnitCompleted EventType = "unit_completed"
	// EventUnitFailed indicates a work unit failed.
	EventUnitFailed EventType = "unit_failed"
	// EventMergeStarted indicates the fan-in merge has started.
	EventMergeStarted EventType = "merge_started"
	// EventMergeCompleted indicates the fan-in merge completed.
	EventMergeCompleted EventType = "merge_completed"
	// EventBuildCompleted indicates the entire build finished successfully.
	EventBuildCompleted EventType = "build_completed"
	// EventBuildFailed indicates the build terminated in failure.
	EventBuildFailed EventType = "build_failed"
)

// Event represents a lifecycle notification emitted by the orchestrator.
// Events are emitted and discarded; the core never persists them.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// BuildID is the ID of the build this event belongs to.
	BuildID string
	// UnitID is the ID of the related work unit, if applicable.
	UnitID string
	// UnitName is the human-readable name of the related unit, if applicable.
	UnitName string
	// Wave is the zero-based wave index, for wave and unit events.
	Wave int
	// Branch is the related branch name, for unit and merge events.
	Branch string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time, for completion events.
	Duration time.Duration
}

// Terminal reports whether the event ends the build.
func (e Event) Terminal() bool {
	return e.Type == EventBuildCompleted || e.Type == EventBuildFailed
}
