package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/waverunner-ai/waverunner/internal/decompose"
	"github.com/waverunner-ai/waverunner/internal/worker"
	"github.com/waverunner-ai/waverunner/internal/workspace"
	"github.com/waverunner-ai/waverunner/pkg/models"
)

// unitScript configures how the fake spawner behaves for one unit.
type unitScript struct {
	fail     bool
	errMsg   string
	progress []string
	question string
	// block makes the unit run until cancelled.
	block bool
}

type fakeHandle struct {
	msgs    chan<- worker.Message
	done    chan struct{}
	outcome *worker.Outcome
	cancels atomic.Int32
	once    sync.Once
	answers []string
	mu      sync.Mutex
}

func (h *fakeHandle) Wait(ctx context.Context) (*worker.Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *fakeHandle) Cancel() error {
	h.cancels.Add(1)
	h.once.Do(func() {
		h.outcome = &worker.Outcome{Success: false, Error: "cancelled"}
		close(h.msgs)
		close(h.done)
	})
	return nil
}

func (h *fakeHandle) SendInput(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.answers = append(h.answers, text)
	return nil
}

type fakeSpawner struct {
	mu      sync.Mutex
	scripts map[string]unitScript
	spawned []string
	handles map[string]*fakeHandle
}

func newFakeSpawner(scripts map[string]unitScript) *fakeSpawner {
	if scripts == nil {
		scripts = make(map[string]unitScript)
	}
	return &fakeSpawner{
		scripts: scripts,
		handles: make(map[string]*fakeHandle),
	}
}

func (s *fakeSpawner) Spawn(ctx context.Context, unit *models.WorkUnit, dir string, msgs chan<- worker.Message) (worker.Handle, error) {
	s.mu.Lock()
	s.spawned = append(s.spawned, unit.ID)
	script := s.scripts[unit.ID]
	s.mu.Unlock()

	h := &fakeHandle{msgs: msgs, done: make(chan struct{})}
	s.mu.Lock()
	s.handles[unit.ID] = h
	s.mu.Unlock()

	if script.block {
		return h, nil
	}

	for _, p := range script.progress {
		msgs <- worker.Message{Kind: worker.MessageProgress, Text: p}
	}
	if script.question != "" {
		msgs <- worker.Message{Kind: worker.MessageQuestion, Text: script.question}
	}
	close(msgs)

	if script.fail {
		errMsg := script.errMsg
		if errMsg == "" {
			errMsg = "unit failed"
		}
		h.outcome = &worker.Outcome{Success: false, Error: errMsg}
	} else {
		h.outcome = &worker.Outcome{Success: true, Summary: "done: " + unit.ID}
	}
	close(h.done)
	return h, nil
}

func (s *fakeSpawner) spawnedUnits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spawned...)
}

func (s *fakeSpawner) totalCancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, h := range s.handles {
		total += int(h.cancels.Load())
	}
	return total
}

type fakeMerger struct {
	mu     sync.Mutex
	calls  [][]string
	result string
	err    error
	owners map[string]*models.WorkUnit
}

func (m *fakeMerger) Merge(ctx context.Context, branches []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string(nil), branches...))
	if m.err != nil {
		return "", m.err
	}
	return m.result, nil
}

func (m *fakeMerger) SetOwnership(owners map[string]*models.WorkUnit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners = owners
}

func (m *fakeMerger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// plan builds a decomposition with one unit per ID across the given waves.
func plan(waves ...[]string) *models.Decomposition {
	d := &models.Decomposition{}
	for _, wave := range waves {
		d.Waves = append(d.Waves, models.Wave{UnitIDs: wave})
		for _, id := range wave {
			d.Units = append(d.Units, &models.WorkUnit{
				ID:   id,
				Name: "unit " + id,
				Role: "builder",
			})
		}
	}
	return d
}

func fixedDecomposer(d *models.Decomposition) decompose.Decomposer {
	return decompose.Func(func(ctx context.Context, specText string) (*models.Decomposition, error) {
		return d, nil
	})
}

func newTestOrchestrator(d *models.Decomposition, spawner worker.Spawner, merger *fakeMerger) *Orchestrator {
	return New(
		RequiredConfig{
			RepoPath:   "/repo",
			Decomposer: fixedDecomposer(d),
			Spawner:    spawner,
			Workspaces: workspace.NewMemoryManager(),
		},
		WithMerger(merger),
	)
}

func TestHappyPathTwoWaves(t *testing.T) {
	spawner := newFakeSpawner(nil)
	merger := &fakeMerger{result: "waverunner-result"}
	orch := newTestOrchestrator(plan([]string{"a"}, []string{"b", "c"}), spawner, merger)

	var events []Event
	var eventsMu sync.Mutex
	orch.Subscribe(func(e Event) {
		eventsMu.Lock()
		events = append(events, e)
		eventsMu.Unlock()
	})

	state, err := orch.StartBuild(context.Background(), "build the thing")
	if err != nil {
		t.Fatalf("StartBuild() error = %v", err)
	}
	if state.Status != models.BuildCompleted {
		t.Errorf("status = %s, want completed", state.Status)
	}
	if state.MergedBranch != "waverunner-result" {
		t.Errorf("MergedBranch = %q", state.MergedBranch)
	}
	if len(state.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(state.Results))
	}
	for _, r := range state.Results {
		if r.Status != models.ResultCompleted {
			t.Errorf("unit %s status = %s, want completed", r.UnitID, r.Status)
		}
		if r.Branch == "" {
			t.Errorf("unit %s has no branch", r.UnitID)
		}
	}
	if state.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	if merger.callCount() != 1 {
		t.Fatalf("merger called %d times, want 1", merger.callCount())
	}
	if len(merger.calls[0]) != 3 {
		t.Errorf("merger received %d branches, want 3", len(merger.calls[0]))
	}
	if merger.owners == nil {
		t.Error("ownership was not forwarded to the merger")
	}

	// StartBuild drains the hub before returning, so events are final here.
	eventsMu.Lock()
	defer eventsMu.Unlock()
	if len(events) == 0 {
		t.Fatal("no events received")
	}
	last := events[len(events)-1]
	if last.Type != EventBuildCompleted {
		t.Errorf("last event = %s, want build_completed", last.Type)
	}
	counts := make(map[EventType]int)
	for _, e := range events {
		counts[e.Type]++
	}
	if counts[EventWaveStarted] != 2 || counts[EventWaveCompleted] != 2 {
		t.Errorf("wave events = %d started / %d completed, want 2/2", counts[EventWaveStarted], counts[EventWaveCompleted])
	}
	if counts[EventUnitCompleted] != 3 {
		t.Errorf("unit_completed events = %d, want 3", counts[EventUnitCompleted])
	}
}

func TestFailFastAcrossWaves(t *testing.T) {
	spawner := newFakeSpawner(map[string]unitScript{
		"a": {fail: true, errMsg: "boom"},
	})
	merger := &fakeMerger{result: "never"}
	orch := newTestOrchestrator(plan([]string{"a"}, []string{"b", "c"}), spawner, merger)

	state, err := orch.StartBuild(context.Background(), "spec")
	if err == nil {
		t.Fatal("StartBuild() should fail when wave 0 fails")
	}
	var werr *WaveError
	if !errors.As(err, &werr) {
		t.Errorf("error %v is not a WaveError", err)
	} else if werr.Wave != 0 || len(werr.FailedUnits) != 1 || werr.FailedUnits[0] != "a" {
		t.Errorf("WaveError = %+v, want wave 0 with unit a", werr)
	}
	if state.Status != models.BuildFailed {
		t.Errorf("status = %s, want failed", state.Status)
	}
	if len(state.Results) != 1 {
		t.Errorf("got %d results, want 1", len(state.Results))
	}
	if spawned := spawner.spawnedUnits(); len(spawned) != 1 || spawned[0] != "a" {
		t.Errorf("spawned = %v, want only unit a", spawned)
	}
	if merger.callCount() != 0 {
		t.Errorf("merger called %d times, want 0", merger.callCount())
	}
	if state.Results[0].Error != "boom" {
		t.Errorf("result error = %q, want boom", state.Results[0].Error)
	}
}

func TestBestEffortWaveCompletion(t *testing.T) {
	spawner := newFakeSpawner(map[string]unitScript{
		"b": {fail: true},
	})
	merger := &fakeMerger{}
	orch := newTestOrchestrator(plan([]string{"b", "c"}), spawner, merger)

	state, err := orch.StartBuild(context.Background(), "spec")
	if err == nil {
		t.Fatal("StartBuild() should fail")
	}
	if len(state.Results) != 2 {
		t.Fatalf("got %d results, want both siblings", len(state.Results))
	}

	byUnit := make(map[string]models.ResultStatus)
	for _, r := range state.Results {
		byUnit[r.UnitID] = r.Status
	}
	if byUnit["b"] != models.ResultFailed {
		t.Errorf("unit b status = %s, want failed", byUnit["b"])
	}
	if byUnit["c"] != models.ResultCompleted {
		t.Errorf("unit c status = %s, want completed", byUnit["c"])
	}
}

func TestAbortCancelsEveryLiveHandle(t *testing.T) {
	spawner := newFakeSpawner(map[string]unitScript{
		"a": {block: true},
		"b": {block: true},
		"c": {block: true},
	})
	merger := &fakeMerger{}
	orch := newTestOrchestrator(plan([]string{"a", "b", "c"}), spawner, merger)

	done := make(chan *models.BuildState, 1)
	go func() {
		state, _ := orch.StartBuild(context.Background(), "spec")
		done <- state
	}()

	// Wait until all three handles are live before aborting.
	deadline := time.Now().Add(2 * time.Second)
	for orch.registry.Count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d handles became live", orch.registry.Count())
		}
		time.Sleep(time.Millisecond)
	}

	orch.Abort()

	select {
	case state := <-done:
		if state.Status != models.BuildFailed {
			t.Errorf("status = %s, want failed", state.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("build did not finish after abort")
	}

	if n := spawner.totalCancels(); n != 3 {
		t.Errorf("cancellation attempts = %d, want exactly 3", n)
	}
	if merger.callCount() != 0 {
		t.Errorf("merger called %d times after abort, want 0", merger.callCount())
	}
}

func TestAnswerForwardsToLiveUnit(t *testing.T) {
	spawner := newFakeSpawner(map[string]unitScript{
		"a": {block: true},
	})
	orch := newTestOrchestrator(plan([]string{"a"}), spawner, &fakeMerger{})

	done := make(chan struct{})
	go func() {
		orch.StartBuild(context.Background(), "spec")
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for orch.registry.Count() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("unit never became live")
		}
		time.Sleep(time.Millisecond)
	}

	if err := orch.Answer("a", "yes, proceed"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	spawner.mu.Lock()
	h := spawner.handles["a"]
	spawner.mu.Unlock()
	h.mu.Lock()
	got := append([]string(nil), h.answers...)
	h.mu.Unlock()
	if len(got) != 1 || got[0] != "yes, proceed" {
		t.Errorf("forwarded answers = %v", got)
	}

	orch.Abort()
	<-done
}

func TestAnswerIsNoOpForUnknownUnit(t *testing.T) {
	orch := newTestOrchestrator(plan([]string{"a"}), newFakeSpawner(nil), &fakeMerger{result: "r"})
	if err := orch.Answer("ghost", "hello"); err != nil {
		t.Errorf("Answer() for unknown unit = %v, want nil", err)
	}
}

func TestDecompositionErrorFailsBuild(t *testing.T) {
	decomposer := decompose.Func(func(ctx context.Context, specText string) (*models.Decomposition, error) {
		return nil, &decompose.Error{Messages: []string{"unit x referenced but not declared"}}
	})
	orch := New(RequiredConfig{
		RepoPath:   "/repo",
		Decomposer: decomposer,
		Spawner:    newFakeSpawner(nil),
		Workspaces: workspace.NewMemoryManager(),
	}, WithMerger(&fakeMerger{}))

	state, err := orch.StartBuild(context.Background(), "spec")
	if err == nil {
		t.Fatal("StartBuild() should surface the decomposition error")
	}
	var derr *decompose.Error
	if !errors.As(err, &derr) {
		t.Errorf("error %v does not wrap decompose.Error", err)
	}
	if state.Status != models.BuildFailed {
		t.Errorf("status = %s, want failed", state.Status)
	}
	if len(state.Results) != 0 {
		t.Errorf("got %d results before executing, want 0", len(state.Results))
	}
}

func TestMergeFailureFailsBuild(t *testing.T) {
	merger := &fakeMerger{err: errors.New("conflict in shared file")}
	orch := newTestOrchestrator(plan([]string{"a"}), newFakeSpawner(nil), merger)

	state, err := orch.StartBuild(context.Background(), "spec")
	if err == nil {
		t.Fatal("StartBuild() should fail when merge fails")
	}
	if state.Status != models.BuildFailed {
		t.Errorf("status = %s, want failed", state.Status)
	}
	if state.MergedBranch != "" {
		t.Errorf("MergedBranch = %q, want empty", state.MergedBranch)
	}
}

func TestProgressAndInterruptEvents(t *testing.T) {
	spawner := newFakeSpawner(map[string]unitScript{
		"a": {progress: []string{"reading files", "writing handler"}, question: "which port?"},
	})
	orch := newTestOrchestrator(plan([]string{"a"}), spawner, &fakeMerger{result: "r"})

	var progress, interrupts int32
	orch.Subscribe(func(e Event) {
		switch e.Type {
		case EventUnitProgress:
			atomic.AddInt32(&progress, 1)
		case EventUnitInterrupt:
			atomic.AddInt32(&interrupts, 1)
		}
	})

	if _, err := orch.StartBuild(context.Background(), "spec"); err != nil {
		t.Fatalf("StartBuild() error = %v", err)
	}
	if n := atomic.LoadInt32(&progress); n != 2 {
		t.Errorf("progress events = %d, want 2", n)
	}
	if n := atomic.LoadInt32(&interrupts); n != 1 {
		t.Errorf("interrupt events = %d, want 1", n)
	}
}

func TestPanickingListenerDoesNotDisruptBuild(t *testing.T) {
	orch := newTestOrchestrator(plan([]string{"a"}), newFakeSpawner(nil), &fakeMerger{result: "r"})

	orch.Subscribe(func(e Event) {
		panic("listener bug")
	})
	var seen int32
	orch.Subscribe(func(e Event) {
		atomic.AddInt32(&seen, 1)
	})

	state, err := orch.StartBuild(context.Background(), "spec")
	if err != nil {
		t.Fatalf("StartBuild() error = %v", err)
	}
	if state.Status != models.BuildCompleted {
		t.Errorf("status = %s, want completed", state.Status)
	}
	if atomic.LoadInt32(&seen) == 0 {
		t.Error("healthy listener received no events")
	}
}

func TestEstimateDurations(t *testing.T) {
	d := &models.Decomposition{
		Units: []*models.WorkUnit{
			{ID: "a", EstimatedMinutes: 5},
			{ID: "b", EstimatedMinutes: 3},
			{ID: "c", EstimatedMinutes: 8},
			{ID: "d", EstimatedMinutes: 2},
		},
		Waves: []models.Wave{
			{UnitIDs: []string{"a"}},
			{UnitIDs: []string{"b", "c"}},
			{UnitIDs: []string{"d"}},
		},
	}

	est := EstimateDurations(d)
	if est.Sequential != 18*time.Minute {
		t.Errorf("Sequential = %v, want 18m", est.Sequential)
	}
	if est.Parallel != 15*time.Minute {
		t.Errorf("Parallel = %v, want 15m", est.Parallel)
	}
	if est.Speedup() <= 1 {
		t.Errorf("Speedup() = %v, want > 1", est.Speedup())
	}
}

func TestWorkerCapStillCompletesWave(t *testing.T) {
	spawner := newFakeSpawner(nil)
	orch := New(
		RequiredConfig{
			RepoPath:   "/repo",
			Decomposer: fixedDecomposer(plan([]string{"a", "b", "c", "d"})),
			Spawner:    spawner,
			Workspaces: workspace.NewMemoryManager(),
		},
		WithMerger(&fakeMerger{result: "r"}),
		WithMaxWorkers(2),
	)

	state, err := orch.StartBuild(context.Background(), "spec")
	if err != nil {
		t.Fatalf("StartBuild() error = %v", err)
	}
	if len(state.Results) != 4 {
		t.Errorf("got %d results, want 4", len(state.Results))
	}
	if state.Status != models.BuildCompleted {
		t.Errorf("status = %s, want completed", state.Status)
	}
}
