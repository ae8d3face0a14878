package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/waverunner-ai/waverunner/internal/config"
	"github.com/waverunner-ai/waverunner/internal/workspace"
)

var (
	cleanupForce  bool
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftover unit worktrees",
	Long: `Tear down every unit worktree left behind by crashed or interrupted
builds and prune the repository's worktree metadata. Unit branches are
kept; only the working directories go away.

Examples:
  waverunner cleanup            # interactive cleanup with confirmation
  waverunner cleanup --force    # skip confirmation prompt
  waverunner cleanup --dry-run  # show what would be removed`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	repoPath, err := findGitRoot(cwd)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	manager, err := workspace.NewGitManager(cfg.Worktrees.BaseDir, repoPath)
	if err != nil {
		return fmt.Errorf("create workspace manager: %w", err)
	}

	worktrees, err := manager.List()
	if err != nil {
		return fmt.Errorf("list worktrees: %w", err)
	}

	var units []*workspace.Workspace
	for _, wt := range worktrees {
		if wt.UnitID != "" {
			units = append(units, wt)
		}
	}

	if len(units) == 0 {
		fmt.Println("No unit worktrees found.")
		return nil
	}

	fmt.Printf("Found %d unit worktree(s):\n", len(units))
	for _, wt := range units {
		fmt.Printf("  - %s (branch: %s)\n", wt.Path, wt.Branch)
	}

	if cleanupDryRun {
		fmt.Println("\nDry run: nothing removed.")
		return nil
	}

	if !cleanupForce {
		fmt.Print("\nRemove these worktrees? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	removed, err := manager.CleanupAll()
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	fmt.Printf("%s removed %d worktree(s); branches kept for inspection\n", color.GreenString("✓"), removed)
	return nil
}
