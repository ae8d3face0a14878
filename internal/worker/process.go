package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/waverunner-ai/waverunner/internal/exec"
	"github.com/waverunner-ai/waverunner/internal/workspace"
	"github.com/waverunner-ai/waverunner/pkg/models"
)

// DefaultQuestionPrefix is the output marker a CLI agent uses to signal
// a blocking question.
const DefaultQuestionPrefix = "QUESTION:"

// summaryLines is how many trailing output lines make up the summary.
const summaryLines = 20

// ProcessConfig configures a ProcessSpawner.
type ProcessConfig struct {
	// Command is the agent executable. Defaults to "claude".
	Command string
	// Args are passed before the unit's instruction payload. Defaults to
	// ["-p"] so the default command receives the instructions as a prompt.
	Args []string
	// Env is appended to the process environment.
	Env []string
	// QuestionPrefix marks output lines that are blocking questions.
	QuestionPrefix string
	// Runner executes the command. Defaults to the os/exec runner.
	Runner exec.CommandRunner
	// WatchFiles reports file touches in the workspace as progress
	// messages, so observers see activity from agents that stay quiet
	// on stdout.
	WatchFiles bool
}

// ProcessSpawner runs each work unit as a child process inside its
// isolated workspace, streaming output lines as progress messages and
// forwarding answers over stdin.
type ProcessSpawner struct {
	cfg ProcessConfig
}

// NewProcessSpawner creates a ProcessSpawner, applying defaults.
func NewProcessSpawner(cfg ProcessConfig) *ProcessSpawner {
	if cfg.Command == "" {
		cfg.Command = "claude"
	}
	if cfg.Args == nil {
		cfg.Args = []string{"-p"}
	}
	if cfg.QuestionPrefix == "" {
		cfg.QuestionPrefix = DefaultQuestionPrefix
	}
	if cfg.Runner == nil {
		cfg.Runner = exec.NewRunner()
	}
	return &ProcessSpawner{cfg: cfg}
}

// Spawn launches the agent process for the unit in dir.
func (s *ProcessSpawner) Spawn(ctx context.Context, unit *models.WorkUnit, dir string, msgs chan<- Message) (Handle, error) {
	args := make([]string, 0, len(s.cfg.Args)+1)
	args = append(args, s.cfg.Args...)
	args = append(args, instructionPrompt(unit))

	h := &processHandle{
		msgs:           msgs,
		questionPrefix: s.cfg.QuestionPrefix,
		done:           make(chan struct{}),
	}

	proc, err := s.cfg.Runner.Start(ctx, exec.Command{
		Name: s.cfg.Command,
		Args: args,
		Dir:  dir,
		Env:  s.cfg.Env,
	}, h.handleLine)
	if err != nil {
		return nil, fmt.Errorf("spawn %s for unit %s: %w", s.cfg.Command, unit.ID, err)
	}
	h.proc = proc

	if s.cfg.WatchFiles {
		h.watcher = workspace.WatchActivity(dir, func(relPath string) {
			h.msgs <- Message{Kind: MessageProgress, Text: "edited " + relPath}
		})
	}

	go h.run()
	return h, nil
}

// instructionPrompt renders the unit's payload for the agent command.
func instructionPrompt(unit *models.WorkUnit) string {
	var b strings.Builder
	if unit.Role != "" {
		fmt.Fprintf(&b, "You are acting as: %s.\n\n", unit.Role)
	}
	b.WriteString(unit.Instructions)
	if len(unit.Paths) > 0 {
		fmt.Fprintf(&b, "\n\nOnly modify files under: %s.", strings.Join(unit.Paths, ", "))
	}
	return b.String()
}

// processHandle implements Handle for a child process.
type processHandle struct {
	proc           exec.Process
	msgs           chan<- Message
	questionPrefix string
	watcher        *workspace.ActivityWatcher

	mu       sync.Mutex
	tail     []string
	canceled bool

	done    chan struct{}
	outcome *Outcome
}

// handleLine classifies one output line and forwards it as a message.
func (h *processHandle) handleLine(line string) {
	h.mu.Lock()
	h.tail = append(h.tail, line)
	if len(h.tail) > summaryLines {
		h.tail = h.tail[1:]
	}
	h.mu.Unlock()

	msg := Message{Kind: MessageProgress, Text: line}
	if strings.HasPrefix(line, h.questionPrefix) {
		msg = Message{
			Kind: MessageQuestion,
			Text: strings.TrimSpace(strings.TrimPrefix(line, h.questionPrefix)),
		}
	}
	h.msgs <- msg
}

// run waits for the process and records the outcome.
func (h *processHandle) run() {
	err := h.proc.Wait()

	// The watcher sends on msgs; it must be fully stopped before the close.
	h.watcher.Stop()

	h.mu.Lock()
	summary := strings.Join(h.tail, "\n")
	canceled := h.canceled
	h.mu.Unlock()

	outcome := &Outcome{Success: err == nil, Summary: summary}
	if err != nil {
		outcome.Error = err.Error()
		if canceled {
			outcome.Error = "canceled: " + err.Error()
		}
	}

	h.outcome = outcome
	close(h.msgs)
	close(h.done)
}

// Wait blocks until the process exits or ctx is done.
func (h *processHandle) Wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel kills the process.
func (h *processHandle) Cancel() error {
	h.mu.Lock()
	h.canceled = true
	h.mu.Unlock()
	return h.proc.Kill()
}

// SendInput writes an answer line to the process's stdin.
func (h *processHandle) SendInput(text string) error {
	return h.proc.WriteInput(text)
}

// Verify interfaces at compile time.
var (
	_ Spawner = (*ProcessSpawner)(nil)
	_ Handle  = (*processHandle)(nil)
)
