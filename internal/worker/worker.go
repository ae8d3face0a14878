// Package worker defines the spawner boundary: how the orchestrator
// launches opaque execution units and interacts with them while they run.
package worker

import (
	"context"

	"github.com/waverunner-ai/waverunner/pkg/models"
)

// MessageKind tags a worker message.
type MessageKind string

const (
	// MessageProgress carries free-text progress from the worker.
	MessageProgress MessageKind = "progress"
	// MessageQuestion carries a question the worker is blocked on. At most
	// one question is pending at a time; the worker resumes when an answer
	// arrives via Handle.SendInput.
	MessageQuestion MessageKind = "question"
)

// Message is one typed notification from a running worker. Workers send
// messages on the channel passed to Spawn; the channel is closed by the
// spawner when the worker reaches a terminal state.
type Message struct {
	Kind MessageKind
	Text string
}

// Outcome is the terminal result reported by a worker.
type Outcome struct {
	// Success indicates whether the worker considers its work done.
	Success bool
	// Summary is the worker's closing output.
	Summary string
	// Error is the failure message when Success is false.
	Error string
}

// Handle is the live handle to one running worker.
type Handle interface {
	// Wait blocks until the worker reaches a terminal outcome. A non-nil
	// error means the worker's fate could not be determined; callers must
	// treat that as a failure, never as a fault to propagate.
	Wait(ctx context.Context) (*Outcome, error)
	// Cancel asks the worker to stop. Best-effort; the worker may take
	// time to die or ignore the request entirely.
	Cancel() error
	// SendInput forwards a human-provided answer to the worker.
	SendInput(text string) error
}

// Spawner launches the execution unit for one work unit inside its
// isolated workspace. Implementations are opaque to the orchestrator;
// only this contract matters.
type Spawner interface {
	Spawn(ctx context.Context, unit *models.WorkUnit, dir string, msgs chan<- Message) (Handle, error)
}
