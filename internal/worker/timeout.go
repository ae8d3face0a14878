package worker

import (
	"context"
	"time"

	"github.com/waverunner-ai/waverunner/pkg/models"
)

// TimeoutSpawner wraps another Spawner and cancels any unit that runs
// longer than the configured limit. The cancelled unit resolves through
// its own handle as a failure, like any other cancellation.
type TimeoutSpawner struct {
	inner Spawner
	limit time.Duration
}

// WithTimeout wraps a spawner with a per-unit wall-clock limit.
// A non-positive limit returns the spawner unchanged.
func WithTimeout(s Spawner, limit time.Duration) Spawner {
	if limit <= 0 {
		return s
	}
	return &TimeoutSpawner{inner: s, limit: limit}
}

// Spawn launches the unit and arms the timeout.
func (s *TimeoutSpawner) Spawn(ctx context.Context, unit *models.WorkUnit, dir string, msgs chan<- Message) (Handle, error) {
	h, err := s.inner.Spawn(ctx, unit, dir, msgs)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	timer := time.AfterFunc(s.limit, func() {
		select {
		case <-done:
		default:
			h.Cancel()
		}
	})

	return &timeoutHandle{Handle: h, timer: timer, done: done}, nil
}

type timeoutHandle struct {
	Handle
	timer *time.Timer
	done  chan struct{}
}

func (h *timeoutHandle) Wait(ctx context.Context) (*Outcome, error) {
	outcome, err := h.Handle.Wait(ctx)
	h.timer.Stop()
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	return outcome, err
}
