package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "waverunner",
	Short: "Wave-based parallel agent build orchestrator",
	Long: `Waverunner decomposes a specification into waves of independent work
units, runs every unit in a wave in parallel inside its own git worktree,
and merges the per-unit branches into a single result branch.

Core capabilities:
- Decomposes specs into dependency-ordered waves of work units
- Isolates each unit on its own branch-backed worktree
- Runs whole waves in parallel, collecting every result before acting
- Forwards human answers into units blocked on a question
- Merges unit branches into one result branch once all waves succeed`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}

// checkAgentCLI verifies that the agent binary is available in PATH.
func checkAgentCLI(command string) error {
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("agent command %q not found in PATH\n\n"+
			"Waverunner launches a CLI agent for every work unit. Install the\n"+
			"agent binary or point defaults.agent_command at one in your config", command)
	}
	return nil
}

// findGitRoot finds the root of the git repository starting from the given directory.
func findGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		gitDir := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a git repository")
		}
		dir = parent
	}
}

// resolveRepo returns the repo root from the --repo flag or the working directory.
func resolveRepo(flagValue string) (string, error) {
	if flagValue != "" {
		abs, err := filepath.Abs(flagValue)
		if err != nil {
			return "", err
		}
		return findGitRoot(abs)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return findGitRoot(cwd)
}
