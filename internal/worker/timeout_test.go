package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/waverunner-ai/waverunner/pkg/models"
)

// slowHandle finishes only when released or cancelled.
type slowHandle struct {
	mu       sync.Mutex
	cancels  int
	done     chan struct{}
	finishes sync.Once
}

func newSlowHandle() *slowHandle {
	return &slowHandle{done: make(chan struct{})}
}

func (h *slowHandle) finish() {
	h.finishes.Do(func() { close(h.done) })
}

func (h *slowHandle) Wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.cancels > 0 {
			return &Outcome{Success: false, Error: "canceled"}, nil
		}
		return &Outcome{Success: true, Summary: "done"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *slowHandle) Cancel() error {
	h.mu.Lock()
	h.cancels++
	h.mu.Unlock()
	h.finish()
	return nil
}

func (h *slowHandle) SendInput(string) error { return nil }

func (h *slowHandle) cancelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancels
}

type slowSpawner struct {
	handle *slowHandle
}

func (s *slowSpawner) Spawn(ctx context.Context, unit *models.WorkUnit, dir string, msgs chan<- Message) (Handle, error) {
	close(msgs)
	return s.handle, nil
}

func TestWithTimeoutZeroReturnsSpawnerUnchanged(t *testing.T) {
	inner := &slowSpawner{handle: newSlowHandle()}
	if got := WithTimeout(inner, 0); got != Spawner(inner) {
		t.Fatalf("WithTimeout(s, 0) = %T, want the inner spawner", got)
	}
	if got := WithTimeout(inner, -time.Second); got != Spawner(inner) {
		t.Fatalf("WithTimeout(s, -1s) = %T, want the inner spawner", got)
	}
}

func TestTimeoutCancelsOverrunningUnit(t *testing.T) {
	handle := newSlowHandle()
	spawner := WithTimeout(&slowSpawner{handle: handle}, 10*time.Millisecond)

	msgs := make(chan Message, 1)
	h, err := spawner.Spawn(context.Background(), &models.WorkUnit{ID: "slow"}, t.TempDir(), msgs)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	outcome, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if outcome.Success {
		t.Fatal("expected the overrunning unit to fail")
	}
	if handle.cancelCount() != 1 {
		t.Fatalf("cancel count = %d, want 1", handle.cancelCount())
	}
}

func TestTimeoutDoesNotCancelFinishedUnit(t *testing.T) {
	handle := newSlowHandle()
	spawner := WithTimeout(&slowSpawner{handle: handle}, 50*time.Millisecond)

	msgs := make(chan Message, 1)
	h, err := spawner.Spawn(context.Background(), &models.WorkUnit{ID: "fast"}, t.TempDir(), msgs)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	handle.finish()
	outcome, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success, got error %q", outcome.Error)
	}

	// Outlive the timer to catch a late cancellation.
	time.Sleep(80 * time.Millisecond)
	if handle.cancelCount() != 0 {
		t.Fatalf("cancel count = %d, want 0", handle.cancelCount())
	}
}
