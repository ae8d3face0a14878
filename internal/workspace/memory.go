package workspace

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// MemoryManager is an in-memory Manager used by orchestrator tests and
// dry runs. It tracks allocations and hands out fake paths without
// touching version control.
type MemoryManager struct {
	// Root is the fake base directory paths are derived from.
	Root string
	// CommitResults, when set, overrides the info returned by Commit for
	// a unit ID. A nil entry means "nothing to commit".
	CommitResults map[string]*CommitInfo

	mu        sync.Mutex
	allocated map[string]string
	released  map[string]int
	allocs    map[string]int
}

// NewMemoryManager creates an empty MemoryManager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		Root:          "/waverunner/worktrees",
		CommitResults: make(map[string]*CommitInfo),
		allocated:     make(map[string]string),
		released:      make(map[string]int),
		allocs:        make(map[string]int),
	}
}

// Branch returns the isolation branch name for a unit ID.
func (m *MemoryManager) Branch(unitID string) string {
	return BranchName(unitID)
}

// Allocate returns a deterministic fake path for the unit.
func (m *MemoryManager) Allocate(unitID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := filepath.Join(m.Root, BranchName(unitID))
	m.allocated[unitID] = path
	m.allocs[unitID]++
	return path, nil
}

// Release forgets the unit's allocation.
func (m *MemoryManager) Release(unitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.allocated[unitID]; !ok {
		return fmt.Errorf("unit %s has no allocated workspace", unitID)
	}
	delete(m.allocated, unitID)
	m.released[unitID]++
	return nil
}

// Commit returns the configured CommitInfo for the unit, or a default
// single-commit result when none is configured.
func (m *MemoryManager) Commit(unitID, message string) (*CommitInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.allocated[unitID]; !ok {
		return nil, fmt.Errorf("unit %s has no allocated workspace", unitID)
	}
	if info, ok := m.CommitResults[unitID]; ok {
		return info, nil
	}
	return &CommitInfo{Hash: "fake-" + unitID}, nil
}

// List returns the currently allocated workspaces.
func (m *MemoryManager) List() ([]*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Workspace
	for id, path := range m.allocated {
		out = append(out, &Workspace{
			Path:      path,
			Branch:    BranchName(id),
			UnitID:    id,
			CreatedAt: time.Time{},
		})
	}
	return out, nil
}

// CleanupAll drops every allocation.
func (m *MemoryManager) CleanupAll() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.allocated)
	m.allocated = make(map[string]string)
	return n, nil
}

// AllocCount returns how many times Allocate was called for the unit.
func (m *MemoryManager) AllocCount(unitID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocs[unitID]
}

// ReleaseCount returns how many times Release was called for the unit.
func (m *MemoryManager) ReleaseCount(unitID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released[unitID]
}

// Verify MemoryManager implements Manager at compile time.
var _ Manager = (*MemoryManager)(nil)
