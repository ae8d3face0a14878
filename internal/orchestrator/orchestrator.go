package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/waverunner-ai/waverunner/internal/decompose"
	"github.com/waverunner-ai/waverunner/internal/merge"
	"github.com/waverunner-ai/waverunner/internal/worker"
	"github.com/waverunner-ai/waverunner/internal/workspace"
	"github.com/waverunner-ai/waverunner/pkg/models"
)

// Orchestrator drives one build from spec text to a merged result branch.
// It wires together: decomposer -> wave loop -> workers -> merger.
//
// BuildState is owned by the orchestrator's own control flow; worker
// goroutines report back through returned results and emitted events,
// never by mutating shared state directly.
type Orchestrator struct {
	decomposer decompose.Decomposer
	spawner    worker.Spawner
	workspaces workspace.Manager
	merger     merge.Merger
	maxWorkers int
	logger     *DebugLogger

	emitter  *EventEmitter
	hub      *ListenerHub
	registry *HandleRegistry

	aborted atomic.Bool
}

// New creates an Orchestrator from required configuration and options.
func New(req RequiredConfig, opts ...Option) *Orchestrator {
	o := &orchestratorOptions{
		eventBuffer: 100,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = NopLogger()
	}
	if o.merger == nil {
		o.merger = merge.NewGitMerger(merge.GitConfig{RepoPath: req.RepoPath})
	}

	emitter := NewEventEmitter(o.eventBuffer)

	return &Orchestrator{
		decomposer: req.Decomposer,
		spawner:    req.Spawner,
		workspaces: req.Workspaces,
		merger:     o.merger,
		maxWorkers: o.maxWorkers,
		logger:     o.logger,
		emitter:    emitter,
		hub:        NewListenerHub(emitter),
		registry:   NewHandleRegistry(),
	}
}

// Subscribe registers an event listener. Listeners receive every event the
// build emits, in emission order.
func (o *Orchestrator) Subscribe(l Listener) Subscription {
	return o.hub.Subscribe(l)
}

// Unsubscribe removes a previously registered listener.
func (o *Orchestrator) Unsubscribe(s Subscription) {
	o.hub.Unsubscribe(s)
}

// DroppedEventCount returns how many events were dropped due to a full
// event channel.
func (o *Orchestrator) DroppedEventCount() uint64 {
	return o.emitter.DroppedCount()
}

// Abort requests cancellation of the build. The wave loop stops before the
// next wave, and every currently live handle receives a cancellation
// attempt. Attempts are independent; one failure does not prevent the rest.
func (o *Orchestrator) Abort() {
	o.aborted.Store(true)

	for unitID, h := range o.registry.Live() {
		if err := h.Cancel(); err != nil {
			o.logger.Log("abort: cancel %s: %v", unitID, err)
		}
	}
}

// Answer forwards a human-provided answer to the named unit's pending
// question. A no-op if the unit is not currently live.
func (o *Orchestrator) Answer(unitID, text string) error {
	h := o.registry.Get(unitID)
	if h == nil {
		return nil
	}
	return h.SendInput(text)
}

// StartBuild runs one build to completion: decompose the spec, execute
// every wave, merge the per-unit branches, and return the final state.
// The returned BuildState is always terminal; on failure the error
// explains why. Events stop flowing once StartBuild returns.
func (o *Orchestrator) StartBuild(ctx context.Context, specText string) (*models.BuildState, error) {
	defer func() {
		o.emitter.Close()
		o.hub.Wait()
	}()

	state := &models.BuildState{
		ID:        uuid.New().String()[:8],
		Spec:      specText,
		Status:    models.BuildDecomposing,
		StartedAt: time.Now(),
	}

	o.logger.Log("build %s: decomposing spec (%d bytes)", state.ID, len(specText))
	o.emitter.Emit(Event{Type: EventDecompositionStarted, BuildID: state.ID})

	decomp, err := o.decomposer.Decompose(ctx, specText)
	if err != nil {
		return state, o.fail(state, fmt.Errorf("decompose: %w", err))
	}

	o.emitter.Emit(Event{
		Type:    EventDecompositionCompleted,
		BuildID: state.ID,
		Message: fmt.Sprintf("%d units in %d waves", len(decomp.Units), len(decomp.Waves)),
	})

	state.Status = models.BuildExecuting

	for i := range decomp.Waves {
		if o.aborted.Load() {
			return state, o.fail(state, fmt.Errorf("build aborted before wave %d", i))
		}
		if err := ctx.Err(); err != nil {
			return state, o.fail(state, err)
		}

		state.WaveIndex = i
		o.logger.Log("build %s: wave %d starting with %d units", state.ID, i, len(decomp.Waves[i].UnitIDs))
		o.emitter.Emit(Event{
			Type:    EventWaveStarted,
			BuildID: state.ID,
			Wave:    i,
			Message: strings.Join(decomp.Waves[i].UnitIDs, ", "),
		})

		results := o.runWave(ctx, state.ID, decomp, i)
		state.Results = append(state.Results, results...)

		o.emitter.Emit(Event{Type: EventWaveCompleted, BuildID: state.ID, Wave: i})

		if failed := failedUnits(results); len(failed) > 0 {
			return state, o.fail(state, &WaveError{Wave: i, FailedUnits: failed})
		}
	}

	if o.aborted.Load() {
		return state, o.fail(state, fmt.Errorf("build aborted before merge"))
	}

	state.Status = models.BuildMerging
	branches := state.Branches()
	o.logger.Log("build %s: merging %d branches", state.ID, len(branches))
	o.emitter.Emit(Event{
		Type:    EventMergeStarted,
		BuildID: state.ID,
		Message: strings.Join(branches, ", "),
	})

	if aware, ok := o.merger.(merge.OwnershipAware); ok {
		aware.SetOwnership(branchOwners(decomp, o.workspaces))
	}

	merged, err := o.merger.Merge(ctx, branches)
	if err != nil {
		return state, o.fail(state, fmt.Errorf("merge: %w", err))
	}

	state.MergedBranch = merged
	o.emitter.Emit(Event{Type: EventMergeCompleted, BuildID: state.ID, Branch: merged})

	state.Status = models.BuildCompleted
	now := time.Now()
	state.CompletedAt = &now

	o.logger.Log("build %s: completed, merged branch %s", state.ID, merged)
	o.emitter.Emit(Event{
		Type:     EventBuildCompleted,
		BuildID:  state.ID,
		Branch:   merged,
		Duration: now.Sub(state.StartedAt),
	})

	return state, nil
}

// runWave spawns every unit in wave i concurrently and waits for all of
// them to reach a terminal outcome. A failing unit never preempts its
// siblings; the whole wave always resolves before failure is acted upon.
func (o *Orchestrator) runWave(ctx context.Context, buildID string, decomp *models.Decomposition, i int) []*models.WorkResult {
	p := pool.NewWithResults[*models.WorkResult]()
	if o.maxWorkers > 0 {
		p = p.WithMaxGoroutines(o.maxWorkers)
	}

	for _, unitID := range decomp.Waves[i].UnitIDs {
		unit := decomp.Unit(unitID)
		if unit == nil {
			// Validation rejects dangling references; guard anyway.
			id := unitID
			p.Go(func() *models.WorkResult {
				return &models.WorkResult{
					UnitID: id,
					Status: models.ResultFailed,
					Error:  "unit not found in decomposition",
				}
			})
			continue
		}

		u := unit
		p.Go(func() *models.WorkResult {
			return o.runUnit(ctx, buildID, u, i)
		})
	}

	return p.Wait()
}

// runUnit executes one work unit in its isolated workspace and converts
// every outcome, including spawn and workspace errors, into a terminal
// WorkResult. Unit-level errors are never allowed to propagate.
func (o *Orchestrator) runUnit(ctx context.Context, buildID string, unit *models.WorkUnit, wave int) *models.WorkResult {
	start := time.Now()
	result := &models.WorkResult{
		UnitID: unit.ID,
		Role:   unit.Role,
		Status: models.ResultFailed,
	}

	finish := func() *models.WorkResult {
		result.Duration = time.Since(start)
		eventType := EventUnitCompleted
		if result.Status == models.ResultFailed {
			eventType = EventUnitFailed
		}
		o.emitter.Emit(Event{
			Type:     eventType,
			BuildID:  buildID,
			UnitID:   unit.ID,
			UnitName: unit.Name,
			Wave:     wave,
			Branch:   result.Branch,
			Message:  result.Summary,
			Error:    errorOrNil(result.Error),
			Duration: result.Duration,
		})
		return result
	}

	dir, err := o.workspaces.Allocate(unit.ID)
	if err != nil {
		result.Error = fmt.Sprintf("allocate workspace: %v", err)
		return finish()
	}
	result.Branch = o.workspaces.Branch(unit.ID)

	o.logger.Log("unit %s: started in %s on branch %s", unit.ID, dir, result.Branch)
	o.emitter.Emit(Event{
		Type:     EventUnitStarted,
		BuildID:  buildID,
		UnitID:   unit.ID,
		UnitName: unit.Name,
		Wave:     wave,
		Branch:   result.Branch,
	})

	msgs := make(chan worker.Message, 16)
	handle, err := o.spawner.Spawn(ctx, unit, dir, msgs)
	if err != nil {
		o.releaseQuietly(unit.ID)
		result.Error = fmt.Sprintf("spawn worker: %v", err)
		return finish()
	}

	o.registry.Register(unit.ID, handle)
	defer o.registry.Remove(unit.ID)

	// Drain the message stream until the spawner closes it at the unit's
	// terminal state, so every progress event precedes the terminal event.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for msg := range msgs {
			eventType := EventUnitProgress
			if msg.Kind == worker.MessageQuestion {
				eventType = EventUnitInterrupt
			}
			o.emitter.Emit(Event{
				Type:     eventType,
				BuildID:  buildID,
				UnitID:   unit.ID,
				UnitName: unit.Name,
				Wave:     wave,
				Message:  msg.Text,
			})
		}
	}()

	outcome, err := handle.Wait(ctx)
	<-drained

	if err != nil {
		o.releaseQuietly(unit.ID)
		result.Error = fmt.Sprintf("wait: %v", err)
		return finish()
	}

	result.Summary = outcome.Summary
	if !outcome.Success {
		o.releaseQuietly(unit.ID)
		result.Error = outcome.Error
		return finish()
	}

	info, err := o.workspaces.Commit(unit.ID, fmt.Sprintf("waverunner: %s", unit.Name))
	if err != nil {
		o.releaseQuietly(unit.ID)
		result.Error = fmt.Sprintf("commit: %v", err)
		return finish()
	}
	if info != nil {
		result.FilesCreated = info.Created
		result.FilesModified = info.Modified
	}

	// The worktree goes away; the branch stays behind for the merge.
	o.releaseQuietly(unit.ID)

	result.Status = models.ResultCompleted
	return finish()
}

func (o *Orchestrator) releaseQuietly(unitID string) {
	if err := o.workspaces.Release(unitID); err != nil {
		o.logger.Log("unit %s: release workspace: %v", unitID, err)
	}
}

// fail forces the build into its terminal failed state and emits the single
// terminal failure event.
func (o *Orchestrator) fail(state *models.BuildState, err error) error {
	state.Status = models.BuildFailed
	now := time.Now()
	state.CompletedAt = &now

	o.logger.Log("build %s: failed: %v", state.ID, err)
	o.emitter.Emit(Event{
		Type:     EventBuildFailed,
		BuildID:  state.ID,
		Error:    err,
		Message:  err.Error(),
		Duration: now.Sub(state.StartedAt),
	})
	return err
}

// branchOwners maps each unit's branch name to the unit itself, so an
// ownership-aware merger can resolve conflicts by permitted paths.
func branchOwners(decomp *models.Decomposition, workspaces workspace.Manager) map[string]*models.WorkUnit {
	owners := make(map[string]*models.WorkUnit, len(decomp.Units))
	for _, unit := range decomp.Units {
		owners[workspaces.Branch(unit.ID)] = unit
	}
	return owners
}

func failedUnits(results []*models.WorkResult) []string {
	var failed []string
	for _, r := range results {
		if r.Status == models.ResultFailed {
			failed = append(failed, r.UnitID)
		}
	}
	return failed
}

func errorOrNil(msg string) error {
	if msg == "" {
		return nil
	}
	return fmt.Errorf("%s", msg)
}
