package orchestrator

import (
	"github.com/waverunner-ai/waverunner/internal/decompose"
	"github.com/waverunner-ai/waverunner/internal/merge"
	"github.com/waverunner-ai/waverunner/internal/worker"
	"github.com/waverunner-ai/waverunner/internal/workspace"
)

// RequiredConfig contains the minimal required configuration for an
// Orchestrator. All fields are required and have no defaults.
type RequiredConfig struct {
	// RepoPath is the path to the git repository.
	RepoPath string
	// Decomposer turns spec text into a validated decomposition.
	Decomposer decompose.Decomposer
	// Spawner launches workers for individual units.
	Spawner worker.Spawner
	// Workspaces isolates each unit in a branch-backed working directory.
	Workspaces workspace.Manager
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	maxWorkers  int
	eventBuffer int
	logger      *DebugLogger
	merger      merge.Merger
}

// WithMaxWorkers caps how many units run concurrently within a wave.
// Zero means unbounded; every unit in a wave runs at once.
func WithMaxWorkers(n int) Option {
	return func(o *orchestratorOptions) { o.maxWorkers = n }
}

// WithEventBuffer sets the event channel buffer size.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) { o.eventBuffer = n }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithMerger sets the branch merger.
// Defaults to a git merger targeting a fresh result branch.
func WithMerger(m merge.Merger) Option {
	return func(o *orchestratorOptions) { o.merger = m }
}
