package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/waverunner-ai/waverunner/internal/config"
	"github.com/waverunner-ai/waverunner/internal/decompose"
	"github.com/waverunner-ai/waverunner/internal/orchestrator"
	"github.com/waverunner-ai/waverunner/pkg/models"
)

var (
	planOutput string
	planCheck  string
	planModel  string
)

var planCmd = &cobra.Command{
	Use:   "plan [spec file]",
	Short: "Decompose a spec into a wave plan without running it",
	Long: `Decompose a spec into work units and waves, show the plan with its
duration estimate, and optionally write it to a YAML file for later use
with 'waverunner run --plan'.

With --check, validates an existing plan file instead of decomposing.

Examples:
  waverunner plan spec.md                   # print the plan
  waverunner plan spec.md -o plan.yaml      # write it for later runs
  waverunner plan --check plan.yaml         # validate a hand-written plan`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "Write the plan to a YAML file")
	planCmd.Flags().StringVar(&planCheck, "check", "", "Validate an existing plan file and exit")
	planCmd.Flags().StringVar(&planModel, "model", "", "Model override for decomposition")
}

func runPlan(cmd *cobra.Command, args []string) error {
	if planCheck != "" {
		d, err := decompose.FromFile(planCheck)
		if err != nil {
			return fmt.Errorf("plan invalid: %w", err)
		}
		fmt.Printf("%s %s: %d units in %d waves\n", color.GreenString("✓"), planCheck, len(d.Units), len(d.Waves))
		printPlan(d)
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("a spec file is required (or --check)")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read spec file: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	apiKey, err := config.GetAPIKey(cfg)
	if err != nil {
		return err
	}

	model := planModel
	if model == "" {
		model = cfg.Anthropic.Model
	}

	decomposer, err := decompose.NewClaudeDecomposer(decompose.ClaudeConfig{
		Model:  model,
		APIKey: apiKey,
	})
	if err != nil {
		return err
	}

	fmt.Println(color.CyanString("◆ decomposing spec..."))
	d, err := decomposer.Decompose(context.Background(), string(data))
	if err != nil {
		return fmt.Errorf("decompose: %w", err)
	}

	printPlan(d)

	if planOutput != "" {
		if err := decompose.WriteFile(planOutput, d); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
		fmt.Printf("\n%s plan written to %s\n", color.GreenString("✓"), planOutput)
	}

	return nil
}

func printPlan(d *models.Decomposition) {
	for i, wave := range d.Waves {
		fmt.Printf("\n%s\n", color.CyanString("wave %d", i+1))
		for _, id := range wave.UnitIDs {
			unit := d.Unit(id)
			if unit == nil {
				continue
			}
			fmt.Printf("  %-16s %-10s ~%dm  %s\n", unit.ID, unit.Role, unit.EstimatedMinutes, unit.Name)
		}
	}

	est := orchestrator.EstimateDurations(d)
	fmt.Printf("\nestimate: %s sequential, %s with waves (%.1fx)\n",
		est.Sequential.Round(time.Minute), est.Parallel.Round(time.Minute), est.Speedup())
}
