package orchestrator

import (
	"sync"

	"github.com/waverunner-ai/waverunner/internal/worker"
)

// HandleRegistry tracks live worker handles by unit ID.
// It provides thread-safe storage so cancellation and answer forwarding
// go through accessor methods instead of direct map access.
type HandleRegistry struct {
	// handles maps unit IDs to live worker handles.
	handles map[string]worker.Handle
	// mu protects handles.
	mu sync.RWMutex
}

// NewHandleRegistry creates a new HandleRegistry.
func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{
		handles: make(map[string]worker.Handle),
	}
}

// Register adds a live handle for a unit.
func (r *HandleRegistry) Register(unitID string, h worker.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[unitID] = h
}

// Remove deletes the handle for a unit. Called exactly once when the unit
// reaches a terminal outcome or is cancelled.
func (r *HandleRegistry) Remove(unitID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, unitID)
}

// Get retrieves the live handle for a unit.
// Returns nil if the unit is not currently live.
func (r *HandleRegistry) Get(unitID string) worker.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[unitID]
}

// Live returns a snapshot of all live handles keyed by unit ID.
func (r *HandleRegistry) Live() map[string]worker.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make(map[string]worker.Handle, len(r.handles))
	for id, h := range r.handles {
		live[id] = h
	}
	return live
}

// Count returns the number of live handles.
func (r *HandleRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
