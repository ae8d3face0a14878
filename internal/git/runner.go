// Package git provides an interface for git operations.
package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// ExecRunner implements Runner by shelling out to the git binary.
type ExecRunner struct {
	dir string
}

// NewRunner creates a git runner bound to the given working directory.
func NewRunner(dir string) *ExecRunner {
	return &ExecRunner{dir: dir}
}

// Factory is a RunnerFactory producing ExecRunners.
func Factory(dir string) Runner {
	return NewRunner(dir)
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and discards output on success.
func (r *ExecRunner) runSilent(args ...string) error {
	_, err := r.run(args...)
	return err
}

// Run executes an arbitrary git command with the given arguments.
func (r *ExecRunner) Run(args ...string) (string, error) {
	return r.run(args...)
}

// CurrentBranch returns the name of the current branch.
func (r *ExecRunner) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// HeadCommit returns the full hash of the current HEAD commit.
func (r *ExecRunner) HeadCommit() (string, error) {
	return r.run("rev-parse", "HEAD")
}

// BranchExists returns true if the local branch exists.
func (r *ExecRunner) BranchExists(name string) (bool, error) {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = r.dir
	err := cmd.Run()
	if err != nil {
		// Exit code 1 means the branch doesn't exist, not a failure.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check branch exists: %w", err)
	}
	return true, nil
}

// CreateBranch creates a new branch at HEAD without switching to it.
func (r *ExecRunner) CreateBranch(name string) error {
	return r.runSilent("branch", name)
}

// CreateBranchAt creates a new branch pointing at the given ref.
func (r *ExecRunner) CreateBranchAt(name, ref string) error {
	return r.runSilent("branch", name, ref)
}

// DeleteBranch force-deletes the specified branch.
func (r *ExecRunner) DeleteBranch(name string) error {
	return r.runSilent("branch", "-D", name)
}

// WorktreeAdd creates a worktree at the given path for an existing branch.
func (r *ExecRunner) WorktreeAdd(path, branch string) error {
	return r.runSilent("worktree", "add", path, branch)
}

// WorktreeAddNewBranch creates a worktree with a new branch.
func (r *ExecRunner) WorktreeAddNewBranch(path, branch string) error {
	return r.runSilent("worktree", "add", path, "-b", branch)
}

// WorktreeRemove removes the worktree at the given path.
func (r *ExecRunner) WorktreeRemove(path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	return r.runSilent(args...)
}

// WorktreeUnlock unlocks a locked worktree.
func (r *ExecRunner) WorktreeUnlock(path string) error {
	return r.runSilent("worktree", "unlock", path)
}

// WorktreeListPorcelain returns the raw porcelain output for parsing.
func (r *ExecRunner) WorktreeListPorcelain() (string, error) {
	return r.run("worktree", "list", "--porcelain")
}

// WorktreePrune prunes stale worktree metadata with --expire now.
func (r *ExecRunner) WorktreePrune() error {
	return r.runSilent("worktree", "prune", "--expire", "now")
}

// Add stages the given paths.
func (r *ExecRunner) Add(paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	return r.runSilent(args...)
}

// AddAll stages every change in the working tree.
func (r *ExecRunner) AddAll() error {
	return r.runSilent("add", "-A")
}

// HasStagedChanges returns true if anything is staged for commit.
func (r *ExecRunner) HasStagedChanges() (bool, error) {
	cmd := exec.Command("git", "diff", "--cached", "--quiet")
	cmd.Dir = r.dir
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("check staged changes: %w", err)
}

// Commit records the staged changes with the given message.
func (r *ExecRunner) Commit(message string) error {
	return r.runSilent("commit", "-m", message)
}

// Status returns the output of git status --porcelain.
func (r *ExecRunner) Status() (string, error) {
	return r.run("status", "--porcelain")
}

// DiffNameStatus returns `git diff --name-status ref1 ref2` output.
func (r *ExecRunner) DiffNameStatus(ref1, ref2 string) (string, error) {
	return r.run("diff", "--name-status", ref1, ref2)
}

// MergeNoFF merges the branch into the current branch with --no-ff.
func (r *ExecRunner) MergeNoFF(branch, message string) error {
	return r.runSilent("merge", "--no-ff", "-m", message, branch)
}

// MergeAbort aborts an in-progress merge.
func (r *ExecRunner) MergeAbort() error {
	return r.runSilent("merge", "--abort")
}

// ConflictedFiles lists paths with unmerged changes.
func (r *ExecRunner) ConflictedFiles() ([]string, error) {
	out, err := r.run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CheckoutTheirs takes the incoming side of a conflicted file.
func (r *ExecRunner) CheckoutTheirs(path string) error {
	return r.runSilent("checkout", "--theirs", "--", path)
}

// CheckoutOurs takes the current side of a conflicted file.
func (r *ExecRunner) CheckoutOurs(path string) error {
	return r.runSilent("checkout", "--ours", "--", path)
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
