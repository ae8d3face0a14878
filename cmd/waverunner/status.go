package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/waverunner-ai/waverunner/internal/state"
	"github.com/waverunner-ai/waverunner/pkg/models"
)

var (
	statusBuildID string
	statusAll     bool
	statusLimit   int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorded build history",
	Long: `Show the latest build, a specific build, or recent build history
from the project-local database.

Examples:
  waverunner status                # latest build with unit results
  waverunner status --build 1a2b   # one specific build
  waverunner status --all          # recent builds, newest first`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusBuildID, "build", "", "Show one build by ID")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "List recent builds")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Max builds to list with --all")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	repoPath, err := findGitRoot(cwd)
	if err != nil {
		return err
	}

	db, err := state.OpenProject(repoPath)
	if err != nil {
		return fmt.Errorf("open build history: %w", err)
	}
	defer db.Close()

	if statusAll {
		builds, err := db.ListBuilds(statusLimit)
		if err != nil {
			return err
		}
		if len(builds) == 0 {
			fmt.Println("No builds recorded yet.")
			return nil
		}
		for _, b := range builds {
			fmt.Printf("%s  %s  %s  %s\n",
				b.ID,
				b.StartedAt.Local().Format("2006-01-02 15:04"),
				statusString(b),
				firstLine(b.Spec))
		}
		return nil
	}

	var b *models.BuildState
	if statusBuildID != "" {
		b, err = db.GetBuild(statusBuildID)
	} else {
		b, err = db.LatestBuild()
	}
	if err != nil {
		return err
	}
	if b == nil {
		fmt.Println("No builds recorded yet.")
		return nil
	}

	fmt.Printf("Build %s: %s\n", b.ID, statusString(b))
	fmt.Printf("Started: %s\n", b.StartedAt.Local().Format(time.RFC1123))
	if b.CompletedAt != nil {
		fmt.Printf("Finished: %s (%s)\n",
			b.CompletedAt.Local().Format(time.RFC1123),
			b.CompletedAt.Sub(b.StartedAt).Round(time.Second))
	}
	if b.MergedBranch != "" {
		fmt.Printf("Result branch: %s\n", b.MergedBranch)
	}
	fmt.Printf("Spec: %s\n", firstLine(b.Spec))

	if len(b.Results) > 0 {
		fmt.Println("\nUnits:")
		for _, r := range b.Results {
			mark := color.GreenString("✓")
			if r.Status == models.ResultFailed {
				mark = color.RedString("✗")
			}
			line := fmt.Sprintf("  %s %-16s %-10s %s", mark, r.UnitID, r.Role, r.Branch)
			if r.Error != "" {
				line += "  " + color.RedString(r.Error)
			}
			fmt.Println(line)
		}
	}

	if n, err := db.EventCount(b.ID); err == nil {
		fmt.Printf("\n%d events recorded\n", n)
	}

	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
		if i > 72 {
			return s[:i] + "..."
		}
	}
	return s
}
