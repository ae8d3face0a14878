package workspace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/waverunner-ai/waverunner/internal/git"
)

// GitManager implements Manager using git worktrees under a base
// directory shared by all units of a repository.
type GitManager struct {
	baseDir  string // where worktrees are created
	repoPath string // path to the primary checkout
	repo     git.Runner
	factory  git.RunnerFactory

	mu sync.Mutex
	// owned maps unit IDs to their worktree paths.
	owned map[string]string
	// baseCommit maps unit IDs to the repo HEAD captured at allocation,
	// used to compute the unit's changed-file sets.
	baseCommit map[string]string
	// allocatedAt maps unit IDs to allocation time.
	allocatedAt map[string]time.Time
}

// NewGitManager creates a GitManager rooted at repoPath. baseDir is where
// worktrees are created; when empty it defaults to
// ~/.cache/waverunner/worktrees/<repo-name>.
func NewGitManager(baseDir, repoPath string) (*GitManager, error) {
	return newGitManager(baseDir, repoPath, git.Factory)
}

// NewGitManagerWithFactory creates a GitManager with a custom runner
// factory (for testing).
func NewGitManagerWithFactory(baseDir, repoPath string, factory git.RunnerFactory) (*GitManager, error) {
	return newGitManager(baseDir, repoPath, factory)
}

func newGitManager(baseDir, repoPath string, factory git.RunnerFactory) (*GitManager, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".cache", "waverunner", "worktrees", filepath.Base(repoPath))
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}

	return &GitManager{
		baseDir:     baseDir,
		repoPath:    repoPath,
		repo:        factory(repoPath),
		factory:     factory,
		owned:       make(map[string]string),
		baseCommit:  make(map[string]string),
		allocatedAt: make(map[string]time.Time),
	}, nil
}

// BaseDir returns the directory worktrees are created under.
func (m *GitManager) BaseDir() string {
	return m.baseDir
}

// Branch returns the isolation branch name for a unit ID.
func (m *GitManager) Branch(unitID string) string {
	return BranchName(unitID)
}

// Allocate ensures a dedicated branch and a clean worktree for the unit.
func (m *GitManager) Allocate(unitID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	branch := BranchName(unitID)
	path := filepath.Join(m.baseDir, branch)

	// A stale worktree from a prior run is torn down, not reused.
	if _, err := os.Stat(path); err == nil {
		m.teardown(path)
	}

	exists, err := m.repo.BranchExists(branch)
	if err != nil {
		return "", fmt.Errorf("check branch %s: %w", branch, err)
	}

	if exists {
		if err := m.repo.WorktreeAdd(path, branch); err != nil {
			return "", fmt.Errorf("add worktree for %s: %w", branch, err)
		}
	} else {
		if err := m.repo.WorktreeAddNewBranch(path, branch); err != nil {
			return "", fmt.Errorf("create worktree for %s: %w", branch, err)
		}
	}

	head, err := m.repo.HeadCommit()
	if err != nil {
		return "", fmt.Errorf("resolve base commit: %w", err)
	}

	m.owned[unitID] = path
	m.baseCommit[unitID] = head
	m.allocatedAt[unitID] = time.Now()
	return path, nil
}

// Release removes the unit's worktree, keeping its branch.
func (m *GitManager) Release(unitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, ok := m.owned[unitID]
	if !ok {
		path = filepath.Join(m.baseDir, BranchName(unitID))
	}
	m.teardown(path)
	delete(m.owned, unitID)
	delete(m.baseCommit, unitID)
	delete(m.allocatedAt, unitID)
	return nil
}

// teardown removes a worktree directory. Worktree metadata can be
// inconsistent after abnormal termination, so structured removal falls
// back to direct filesystem removal plus a prune. Caller holds the lock.
func (m *GitManager) teardown(path string) {
	_ = m.repo.WorktreeUnlock(path) // may not be locked
	if err := m.repo.WorktreeRemove(path, true); err != nil {
		_ = os.RemoveAll(path)
		_ = m.repo.WorktreePrune()
	}
}

// Commit stages all changes in the unit's worktree and commits them if
// anything is staged. A worktree with no pending changes yields nil info.
func (m *GitManager) Commit(unitID, message string) (*CommitInfo, error) {
	m.mu.Lock()
	path, ok := m.owned[unitID]
	base := m.baseCommit[unitID]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unit %s has no allocated workspace", unitID)
	}

	wt := m.factory(path)
	if err := wt.AddAll(); err != nil {
		return nil, fmt.Errorf("stage changes: %w", err)
	}
	staged, err := wt.HasStagedChanges()
	if err != nil {
		return nil, fmt.Errorf("inspect staged changes: %w", err)
	}
	if !staged {
		return nil, nil
	}
	if err := wt.Commit(message); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	hash, err := wt.HeadCommit()
	if err != nil {
		return nil, fmt.Errorf("resolve commit: %w", err)
	}

	info := &CommitInfo{Hash: hash}
	if base != "" {
		diff, err := wt.DiffNameStatus(base, "HEAD")
		if err != nil {
			return nil, fmt.Errorf("diff against base: %w", err)
		}
		info.Created, info.Modified = parseNameStatus(diff)
	}
	return info, nil
}

// parseNameStatus splits `git diff --name-status` output into created
// and modified path lists. Renames and deletes count as modifications.
func parseNameStatus(out string) (created, modified []string) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		status, path := fields[0], fields[len(fields)-1]
		if strings.HasPrefix(status, "A") {
			created = append(created, path)
		} else {
			modified = append(modified, path)
		}
	}
	return created, modified
}

// List enumerates currently registered worktrees with branch and head.
func (m *GitManager) List() ([]*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := m.repo.WorktreeListPorcelain()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	return m.parsePorcelain(out), nil
}

// parsePorcelain parses `git worktree list --porcelain` output.
func (m *GitManager) parsePorcelain(out string) []*Workspace {
	var workspaces []*Workspace
	var current *Workspace

	flush := func() {
		if current != nil {
			workspaces = append(workspaces, current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			current = &Workspace{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD ") && current != nil:
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch ") && current != nil:
			ref := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
			if strings.HasPrefix(current.Branch, BranchPrefix) {
				current.UnitID = strings.TrimPrefix(current.Branch, BranchPrefix)
			}
		}
	}
	flush()
	return workspaces
}

// CleanupAll removes every worktree under the base directory that follows
// the unit naming scheme. Failures on individual entries are swallowed so
// one bad worktree cannot abort crash recovery.
func (m *GitManager) CleanupAll() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := m.repo.WorktreeListPorcelain()
	if err != nil {
		return 0, fmt.Errorf("list worktrees: %w", err)
	}

	removed := 0
	for _, ws := range m.parsePorcelain(out) {
		if ws.UnitID == "" || ws.Path == m.repoPath {
			continue
		}
		if !strings.HasPrefix(ws.Path, m.baseDir+string(filepath.Separator)) {
			continue
		}
		m.teardown(ws.Path)
		removed++
	}

	// Directories git lost track of entirely.
	entries, err := os.ReadDir(m.baseDir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() || !strings.HasPrefix(entry.Name(), BranchPrefix) {
				continue
			}
			path := filepath.Join(m.baseDir, entry.Name())
			if _, err := os.Stat(path); err == nil {
				if os.RemoveAll(path) == nil {
					removed++
				}
			}
		}
	}

	_ = m.repo.WorktreePrune()
	m.owned = make(map[string]string)
	m.baseCommit = make(map[string]string)
	m.allocatedAt = make(map[string]time.Time)
	return removed, nil
}

// Verify GitManager implements Manager at compile time.
var _ Manager = (*GitManager)(nil)
