// Package merge reconciles per-unit branches into one result branch.
package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/waverunner-ai/waverunner/pkg/models"

	"github.com/waverunner-ai/waverunner/internal/git"
)

// Merger is the fan-in boundary: called exactly once per build, after
// every wave finished with zero failures, with the ordered unit branches
// accumulated across all waves. Returns the merged branch name.
type Merger interface {
	Merge(ctx context.Context, branches []string) (string, error)
}

// OwnershipAware is implemented by mergers that can use per-branch path
// ownership to resolve conflicts. The orchestrator hands the ownership
// map over before invoking Merge.
type OwnershipAware interface {
	SetOwnership(owners map[string]*models.WorkUnit)
}

// GitConfig configures a GitMerger.
type GitConfig struct {
	// RepoPath is the path to the primary checkout.
	RepoPath string
	// ResultBranch is the branch the merge lands on. Empty means a
	// timestamped waverunner-merge branch.
	ResultBranch string
	// Factory builds git runners. Defaults to the exec-backed runner.
	Factory git.RunnerFactory
}

// GitMerger merges each unit branch into a fresh integration branch
// sequentially with --no-ff, inside a scratch worktree so the primary
// checkout is never touched. Conflicted files owned by the incoming
// unit's permitted paths take the incoming side; any other conflict
// aborts the merge.
type GitMerger struct {
	cfg    GitConfig
	repo   git.Runner
	owners map[string]*models.WorkUnit
}

// NewGitMerger creates a GitMerger.
func NewGitMerger(cfg GitConfig) *GitMerger {
	if cfg.Factory == nil {
		cfg.Factory = git.Factory
	}
	return &GitMerger{
		cfg:  cfg,
		repo: cfg.Factory(cfg.RepoPath),
	}
}

// SetOwnership records which unit owns each branch, for conflict
// resolution.
func (m *GitMerger) SetOwnership(owners map[string]*models.WorkUnit) {
	m.owners = owners
}

// Merge reconciles the branches into the result branch.
func (m *GitMerger) Merge(ctx context.Context, branches []string) (string, error) {
	result := m.cfg.ResultBranch
	if result == "" {
		result = fmt.Sprintf("waverunner-merge-%s", time.Now().Format("20060102-150405"))
	}

	scratch := filepath.Join(os.TempDir(), result)
	if err := m.repo.WorktreeAddNewBranch(scratch, result); err != nil {
		return "", fmt.Errorf("create integration worktree: %w", err)
	}
	defer func() {
		if err := m.repo.WorktreeRemove(scratch, true); err != nil {
			_ = os.RemoveAll(scratch)
			_ = m.repo.WorktreePrune()
		}
	}()

	wt := m.cfg.Factory(scratch)
	for _, branch := range branches {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := m.mergeBranch(wt, branch); err != nil {
			return "", err
		}
	}

	return result, nil
}

// mergeBranch merges one unit branch, resolving owned conflicts.
func (m *GitMerger) mergeBranch(wt git.Runner, branch string) error {
	message := fmt.Sprintf("Merge %s", branch)
	if err := wt.MergeNoFF(branch, message); err == nil {
		return nil
	}

	conflicts, cErr := wt.ConflictedFiles()
	if cErr != nil || len(conflicts) == 0 {
		_ = wt.MergeAbort()
		return fmt.Errorf("merge %s failed with no resolvable conflicts", branch)
	}

	owner := m.owners[branch]
	for _, path := range conflicts {
		if owner == nil || !owner.OwnsPath(path) {
			_ = wt.MergeAbort()
			return fmt.Errorf("merge %s: conflict on %s outside the unit's permitted paths", branch, path)
		}
		if err := wt.CheckoutTheirs(path); err != nil {
			_ = wt.MergeAbort()
			return fmt.Errorf("merge %s: take incoming %s: %w", branch, path, err)
		}
		if err := wt.Add(path); err != nil {
			_ = wt.MergeAbort()
			return fmt.Errorf("merge %s: stage %s: %w", branch, path, err)
		}
	}

	if err := wt.Commit(fmt.Sprintf("%s (conflicts resolved by path ownership)", message)); err != nil {
		_ = wt.MergeAbort()
		return fmt.Errorf("merge %s: conclude merge: %w", branch, err)
	}
	return nil
}

// Verify interfaces at compile time.
var (
	_ Merger         = (*GitMerger)(nil)
	_ OwnershipAware = (*GitMerger)(nil)
)
