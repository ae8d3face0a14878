// Package git provides an interface for git operations.
package git

// RefOperations defines the interface for branch and ref queries.
type RefOperations interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// HeadCommit returns the full hash of the current HEAD commit.
	HeadCommit() (string, error)
	// BranchExists returns true if the local branch exists.
	BranchExists(name string) (bool, error)
	// CreateBranch creates a new branch at HEAD without switching to it.
	CreateBranch(name string) error
	// CreateBranchAt creates a new branch pointing at the given ref.
	CreateBranchAt(name, ref string) error
	// DeleteBranch force-deletes the specified branch.
	DeleteBranch(name string) error
}

// WorktreeOperations defines the interface for git worktree operations.
type WorktreeOperations interface {
	// WorktreeAdd creates a worktree at the given path for an existing branch.
	WorktreeAdd(path, branch string) error
	// WorktreeAddNewBranch creates a worktree with a new branch (git worktree add -b).
	WorktreeAddNewBranch(path, branch string) error
	// WorktreeRemove removes the worktree at the given path, optionally forced.
	WorktreeRemove(path string, force bool) error
	// WorktreeUnlock unlocks a locked worktree.
	WorktreeUnlock(path string) error
	// WorktreeListPorcelain returns raw `git worktree list --porcelain` output.
	WorktreeListPorcelain() (string, error)
	// WorktreePrune prunes stale worktree metadata with --expire now.
	WorktreePrune() error
}

// CommitOperations defines the interface for staging and committing.
type CommitOperations interface {
	// Add stages the given paths.
	Add(paths ...string) error
	// AddAll stages every change in the working tree (git add -A).
	AddAll() error
	// HasStagedChanges returns true if anything is staged for commit.
	HasStagedChanges() (bool, error)
	// Commit records the staged changes with the given message.
	Commit(message string) error
	// Status returns the output of git status --porcelain.
	Status() (string, error)
}

// DiffOperations defines the interface for diff queries.
type DiffOperations interface {
	// DiffNameStatus returns `git diff --name-status ref1 ref2` output.
	DiffNameStatus(ref1, ref2 string) (string, error)
}

// MergeOperations defines the interface for merge operations.
type MergeOperations interface {
	// MergeNoFF merges the branch into the current branch with --no-ff
	// and the given commit message.
	MergeNoFF(branch, message string) error
	// MergeAbort aborts an in-progress merge.
	MergeAbort() error
	// ConflictedFiles lists paths with unmerged changes.
	ConflictedFiles() ([]string, error)
	// CheckoutTheirs takes the incoming side of a conflicted file.
	CheckoutTheirs(path string) error
	// CheckoutOurs takes the current side of a conflicted file.
	CheckoutOurs(path string) error
}

// Runner is the complete interface for git operations against one
// working directory. Consumers should prefer the focused interfaces
// where possible.
type Runner interface {
	RefOperations
	WorktreeOperations
	CommitOperations
	DiffOperations
	MergeOperations
	// Run executes an arbitrary git command and returns its output.
	Run(args ...string) (string, error)
}

// RunnerFactory builds a Runner bound to the given working directory.
// Worktree-local operations (commit, merge) need a runner rooted in the
// worktree rather than the primary checkout.
type RunnerFactory func(dir string) Runner
