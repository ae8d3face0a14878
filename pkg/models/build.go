package models

import "time"

// ResultStatus represents the terminal outcome of one work unit.
type ResultStatus string

const (
	// ResultCompleted indicates the unit finished successfully.
	ResultCompleted ResultStatus = "completed"
	// ResultFailed indicates the unit finished with an error.
	ResultFailed ResultStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s ResultStatus) Valid() bool {
	return s == ResultCompleted || s == ResultFailed
}

// WorkResult is the outcome of one WorkUnit. It is created once when the
// unit reaches a terminal state and never mutated afterwards.
type WorkResult struct {
	// UnitID is the ID of the unit this result belongs to.
	UnitID string `json:"unit_id"`
	// Role is the execution role the unit ran under.
	Role string `json:"role,omitempty"`
	// Status is the terminal outcome.
	Status ResultStatus `json:"status"`
	// Branch is the isolated branch the unit's work was committed to.
	Branch string `json:"branch,omitempty"`
	// FilesCreated lists paths the unit created.
	FilesCreated []string `json:"files_created,omitempty"`
	// FilesModified lists paths the unit modified.
	FilesModified []string `json:"files_modified,omitempty"`
	// Summary is the worker's free-text output summary.
	Summary string `json:"summary,omitempty"`
	// Error contains the failure message when Status is failed.
	Error string `json:"error,omitempty"`
	// Duration is how long the unit ran.
	Duration time.Duration `json:"duration"`
}

// BuildStatus represents the lifecycle phase of a build.
type BuildStatus string

const (
	// BuildDecomposing indicates the spec is being decomposed into a plan.
	BuildDecomposing BuildStatus = "decomposing"
	// BuildExecuting indicates waves are running.
	BuildExecuting BuildStatus = "executing"
	// BuildMerging indicates unit branches are being merged.
	BuildMerging BuildStatus = "merging"
	// BuildCompleted indicates the build finished with a merged branch.
	BuildCompleted BuildStatus = "completed"
	// BuildFailed indicates the build stopped in any non-completed state.
	BuildFailed BuildStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s BuildStatus) Valid() bool {
	switch s {
	case BuildDecomposing, BuildExecuting, BuildMerging, BuildCompleted, BuildFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is an end state.
func (s BuildStatus) Terminal() bool {
	return s == BuildCompleted || s == BuildFailed
}

// BuildState is the mutable record of one orchestration run. It is owned
// exclusively by the orchestrator and mutated only from its own control
// flow, never from worker callbacks.
type BuildState struct {
	// ID is the unique identifier for this build.
	ID string `json:"id"`
	// Spec is the originating specification text.
	Spec string `json:"spec"`
	// WaveIndex is the index of the wave currently (or last) executing.
	WaveIndex int `json:"wave_index"`
	// Results accumulates one WorkResult per finished unit.
	Results []*WorkResult `json:"results"`
	// Status is the current lifecycle phase.
	Status BuildStatus `json:"status"`
	// MergedBranch is set after a successful merge.
	MergedBranch string `json:"merged_branch,omitempty"`
	// StartedAt is when the build began.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the build reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// FailedUnits returns the IDs of units whose results are failed.
func (b *BuildState) FailedUnits() []string {
	var ids []string
	for _, r := range b.Results {
		if r.Status == ResultFailed {
			ids = append(ids, r.UnitID)
		}
	}
	return ids
}

// Branches returns the unit branch names accumulated across all waves,
// in result order, skipping results without a branch.
func (b *BuildState) Branches() []string {
	var branches []string
	for _, r := range b.Results {
		if r.Branch != "" {
			branches = append(branches, r.Branch)
		}
	}
	return branches
}
