// Package exec provides an interface for command execution.
package exec

import (
	"context"
	"io"
)

// Command describes one external command invocation.
type Command struct {
	// Name is the executable to run.
	Name string
	// Args are the command arguments.
	Args []string
	// Dir is the working directory; empty means the caller's directory.
	Dir string
	// Env is appended to the parent environment.
	Env []string
	// Stdin, when non-nil, is connected to the process's standard input.
	Stdin io.Reader
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes the command and returns combined stdout/stderr output.
	Run(ctx context.Context, cmd Command) (output []byte, err error)

	// Start launches the command without waiting for it and returns a
	// Process handle. Output lines are delivered to onLine as they arrive.
	Start(ctx context.Context, cmd Command, onLine func(line string)) (Process, error)

	// LookPath reports whether the named executable is on PATH.
	LookPath(name string) bool
}

// Process is a handle to a started command.
type Process interface {
	// Wait blocks until the process exits and returns its error, if any.
	Wait() error
	// Kill terminates the process.
	Kill() error
	// WriteInput writes a line to the process's standard input.
	WriteInput(text string) error
	// PID returns the process ID, or 0 if unknown.
	PID() int
}
