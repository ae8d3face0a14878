package exec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"sync"
)

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

// NewRunner creates a new ExecRunner.
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and returns combined stdout/stderr output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	c := osexec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}
	return c.CombinedOutput()
}

// Start launches the command and streams output lines to onLine.
func (r *ExecRunner) Start(ctx context.Context, cmd Command, onLine func(line string)) (Process, error) {
	c := osexec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	c.Stderr = c.Stdout
	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Name, err)
	}

	p := &execProcess{cmd: c, stdin: stdin}
	p.scanDone = make(chan struct{})
	go func() {
		defer close(p.scanDone)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
	}()

	return p, nil
}

// LookPath reports whether the named executable is on PATH.
func (r *ExecRunner) LookPath(name string) bool {
	_, err := osexec.LookPath(name)
	return err == nil
}

// execProcess wraps a started os/exec command.
type execProcess struct {
	cmd      *osexec.Cmd
	stdin    io.WriteCloser
	scanDone chan struct{}

	mu      sync.Mutex
	waited  bool
	waitErr error
}

// Wait blocks until the process exits. Safe to call more than once.
func (p *execProcess) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.waited {
		<-p.scanDone
		p.waitErr = p.cmd.Wait()
		p.waited = true
	}
	return p.waitErr
}

// Kill terminates the process.
func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// WriteInput writes a line to the process's standard input.
func (p *execProcess) WriteInput(text string) error {
	_, err := io.WriteString(p.stdin, text+"\n")
	return err
}

// PID returns the process ID, or 0 if the process never started.
func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Verify ExecRunner implements CommandRunner at compile time.
var _ CommandRunner = (*ExecRunner)(nil)
