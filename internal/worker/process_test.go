package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/waverunner-ai/waverunner/internal/exec"
	"github.com/waverunner-ai/waverunner/pkg/models"
)

// fakeProcess lets tests script a child process's behavior.
type fakeProcess struct {
	mu      sync.Mutex
	waitErr error
	exit    chan struct{}
	killed  bool
	inputs  []string
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{exit: make(chan struct{})}
}

func (p *fakeProcess) finish(err error) {
	p.mu.Lock()
	p.waitErr = err
	p.mu.Unlock()
	close(p.exit)
}

func (p *fakeProcess) Wait() error {
	<-p.exit
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	return nil
}

func (p *fakeProcess) WriteInput(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, text)
	return nil
}

func (p *fakeProcess) PID() int { return 4242 }

// fakeRunner hands out a scripted process and captures the line sink.
type fakeRunner struct {
	mu       sync.Mutex
	proc     *fakeProcess
	onLine   func(string)
	lastCmd  exec.Command
	startErr error
}

func (r *fakeRunner) Run(ctx context.Context, cmd exec.Command) ([]byte, error) {
	return nil, nil
}

func (r *fakeRunner) Start(ctx context.Context, cmd exec.Command, onLine func(string)) (exec.Process, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLine = onLine
	r.lastCmd = cmd
	return r.proc, nil
}

func (r *fakeRunner) LookPath(name string) bool { return true }

func (r *fakeRunner) emit(line string) {
	r.mu.Lock()
	onLine := r.onLine
	r.mu.Unlock()
	onLine(line)
}

var _ exec.CommandRunner = (*fakeRunner)(nil)

func collect(msgs <-chan Message) (<-chan []Message, func() []Message) {
	out := make(chan []Message, 1)
	go func() {
		var all []Message
		for m := range msgs {
			all = append(all, m)
		}
		out <- all
	}()
	return out, func() []Message { return <-out }
}

func TestProcessSpawnerStreamsProgress(t *testing.T) {
	proc := newFakeProcess()
	runner := &fakeRunner{proc: proc}
	spawner := NewProcessSpawner(ProcessConfig{Runner: runner})

	msgs := make(chan Message, 16)
	unit := &models.WorkUnit{ID: "u1", Instructions: "do the thing"}

	h, err := spawner.Spawn(context.Background(), unit, "/tmp/wt", msgs)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	_, wait := collect(msgs)

	runner.emit("compiling")
	runner.emit("QUESTION: which database should I target?")
	proc.finish(nil)

	outcome, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !outcome.Success {
		t.Errorf("outcome.Success = false, want true")
	}

	all := wait()
	if len(all) != 2 {
		t.Fatalf("got %d messages, want 2: %v", len(all), all)
	}
	if all[0].Kind != MessageProgress || all[0].Text != "compiling" {
		t.Errorf("msgs[0] = %+v", all[0])
	}
	if all[1].Kind != MessageQuestion || all[1].Text != "which database should I target?" {
		t.Errorf("msgs[1] = %+v", all[1])
	}
}

func TestProcessSpawnerFailureBecomesOutcome(t *testing.T) {
	proc := newFakeProcess()
	runner := &fakeRunner{proc: proc}
	spawner := NewProcessSpawner(ProcessConfig{Runner: runner})

	msgs := make(chan Message, 4)
	h, err := spawner.Spawn(context.Background(), &models.WorkUnit{ID: "u1"}, "", msgs)
	if err != nil {
		t.Fatal(err)
	}
	_, wait := collect(msgs)

	proc.finish(errors.New("exit status 1"))
	outcome, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v, want nil (failures are outcomes)", err)
	}
	if outcome.Success {
		t.Error("outcome.Success = true, want false")
	}
	if outcome.Error == "" {
		t.Error("outcome.Error is empty, want the process error")
	}
	wait()
}

func TestProcessSpawnerCancel(t *testing.T) {
	proc := newFakeProcess()
	runner := &fakeRunner{proc: proc}
	spawner := NewProcessSpawner(ProcessConfig{Runner: runner})

	msgs := make(chan Message, 4)
	h, err := spawner.Spawn(context.Background(), &models.WorkUnit{ID: "u1"}, "", msgs)
	if err != nil {
		t.Fatal(err)
	}
	_, wait := collect(msgs)

	if err := h.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !proc.killed {
		t.Error("Cancel() did not kill the process")
	}

	proc.finish(errors.New("signal: killed"))
	outcome, _ := h.Wait(context.Background())
	if outcome.Success {
		t.Error("canceled unit must not be successful")
	}
	wait()
}

func TestProcessSpawnerSendInput(t *testing.T) {
	proc := newFakeProcess()
	runner := &fakeRunner{proc: proc}
	spawner := NewProcessSpawner(ProcessConfig{Runner: runner})

	msgs := make(chan Message, 4)
	h, err := spawner.Spawn(context.Background(), &models.WorkUnit{ID: "u1"}, "", msgs)
	if err != nil {
		t.Fatal(err)
	}
	_, wait := collect(msgs)

	if err := h.SendInput("use postgres"); err != nil {
		t.Fatalf("SendInput() error = %v", err)
	}
	if len(proc.inputs) != 1 || proc.inputs[0] != "use postgres" {
		t.Errorf("inputs = %v", proc.inputs)
	}

	proc.finish(nil)
	wait()
}

func TestProcessSpawnerWaitRespectsContext(t *testing.T) {
	proc := newFakeProcess()
	runner := &fakeRunner{proc: proc}
	spawner := NewProcessSpawner(ProcessConfig{Runner: runner})

	msgs := make(chan Message, 4)
	h, err := spawner.Spawn(context.Background(), &models.WorkUnit{ID: "u1"}, "", msgs)
	if err != nil {
		t.Fatal(err)
	}
	_, wait := collect(msgs)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); err == nil {
		t.Error("Wait() with expired context should return an error")
	}

	proc.finish(nil)
	wait()
}

func TestInstructionPrompt(t *testing.T) {
	unit := &models.WorkUnit{
		ID:           "u1",
		Role:         "backend engineer",
		Instructions: "add the handler",
		Paths:        []string{"internal/api", "docs"},
	}
	prompt := instructionPrompt(unit)
	for _, want := range []string{"backend engineer", "add the handler", "internal/api, docs"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
