// Package workspace manages isolated, branch-backed working directories
// for work units inside a shared git repository.
package workspace

import (
	"strings"
	"time"
)

// BranchPrefix is the prefix for unit isolation branches.
const BranchPrefix = "unit-"

// Workspace describes one registered worktree.
type Workspace struct {
	// Path is the absolute path to the worktree directory.
	Path string
	// Branch is the branch checked out in the worktree.
	Branch string
	// Head is the commit the worktree is at.
	Head string
	// UnitID is the owning unit's ID, if the branch follows the unit
	// naming scheme.
	UnitID string
	// CreatedAt is when the workspace was allocated, if known.
	CreatedAt time.Time
}

// CommitInfo describes the commit produced by Commit.
type CommitInfo struct {
	// Hash is the commit hash.
	Hash string
	// Created lists paths added by the unit.
	Created []string
	// Modified lists paths changed or deleted by the unit.
	Modified []string
}

// Manager allocates and reclaims isolated workspaces. The orchestrator
// depends on this interface only; the git-backed implementation is the
// single place that talks to real version control.
type Manager interface {
	// Allocate ensures a dedicated branch and worktree exist for the unit
	// and returns the worktree's absolute path. Allocation is idempotent:
	// a stale worktree left over from a prior run is torn down and
	// recreated, never reused.
	Allocate(unitID string) (string, error)
	// Release removes the unit's worktree but keeps its branch, so the
	// branch history survives for merge and inspection.
	Release(unitID string) error
	// Branch returns the isolation branch name for a unit ID.
	Branch(unitID string) string
	// Commit stages everything in the unit's worktree and commits if and
	// only if something is staged. Returns nil info when there is nothing
	// to commit; that is not an error.
	Commit(unitID, message string) (*CommitInfo, error)
	// List enumerates currently registered worktrees.
	List() ([]*Workspace, error)
	// CleanupAll tears down every worktree this manager's naming scheme
	// owns, best-effort, and returns the number removed. Individual
	// removal failures do not abort the sweep.
	CleanupAll() (int, error)
}

// BranchName returns the deterministic isolation branch for a unit ID.
func BranchName(unitID string) string {
	return BranchPrefix + sanitize(unitID)
}

// sanitize maps a unit ID onto characters safe in a git ref name.
func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
