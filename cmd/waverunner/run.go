package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/waverunner-ai/waverunner/internal/config"
	"github.com/waverunner-ai/waverunner/internal/decompose"
	"github.com/waverunner-ai/waverunner/internal/merge"
	"github.com/waverunner-ai/waverunner/internal/orchestrator"
	"github.com/waverunner-ai/waverunner/internal/state"
	"github.com/waverunner-ai/waverunner/internal/worker"
	"github.com/waverunner-ai/waverunner/internal/workspace"
	"github.com/waverunner-ai/waverunner/pkg/models"
)

var (
	runPlanFile   string
	runRepo       string
	runMaxWorkers int
	runUseAPI     bool
	runModel      string
)

var runCmd = &cobra.Command{
	Use:   "run [spec file or spec text]",
	Short: "Run a build: decompose, execute waves, merge",
	Long: `Run a full build against the current repository.

The spec is either a path to a text file or the spec text itself. With
--plan, decomposition is skipped and the wave plan is loaded from a YAML
file instead of being produced by the model.

Units in the same wave run in parallel, each in its own git worktree on
its own branch. When every wave succeeds, the unit branches are merged
into a single result branch.

When a unit asks a question, the build pauses that unit and prompts on
stdin; the answer is forwarded into the running unit.

Examples:
  waverunner run spec.md                     # model-backed decomposition
  waverunner run spec.md --plan plan.yaml    # pre-written wave plan
  waverunner run "add a /health endpoint"    # inline spec text
  waverunner run spec.md --max-workers 4     # cap intra-wave parallelism
  waverunner run spec.md --api               # API loop instead of CLI agent`,
	RunE: runBuild,
}

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "Load the wave plan from a YAML file instead of decomposing")
	runCmd.Flags().StringVar(&runRepo, "repo", "", "Path to the git repository (default: current directory)")
	runCmd.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "Cap units running concurrently per wave (0 = unbounded)")
	runCmd.Flags().BoolVar(&runUseAPI, "api", false, "Drive units through the Anthropic API instead of a CLI agent")
	runCmd.Flags().StringVar(&runModel, "model", "", "Model override for decomposition and API workers")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repoPath, err := resolveRepo(runRepo)
	if err != nil {
		return err
	}

	specText, err := resolveSpec(args)
	if err != nil {
		return err
	}

	model := runModel
	if model == "" {
		model = cfg.Anthropic.Model
	}

	decomposer, err := buildDecomposer(cfg, model)
	if err != nil {
		return err
	}

	spawner, err := buildSpawner(cfg, model)
	if err != nil {
		return err
	}

	workspaces, err := workspace.NewGitManager(cfg.Worktrees.BaseDir, repoPath)
	if err != nil {
		return fmt.Errorf("create workspace manager: %w", err)
	}

	maxWorkers := runMaxWorkers
	if maxWorkers == 0 {
		maxWorkers = cfg.Defaults.MaxWorkers
	}

	logger := orchestrator.NewDebugLoggerForRepo(repoPath)
	defer logger.Close()

	orch := orchestrator.New(
		orchestrator.RequiredConfig{
			RepoPath:   repoPath,
			Decomposer: decomposer,
			Spawner:    spawner,
			Workspaces: workspaces,
		},
		orchestrator.WithMaxWorkers(maxWorkers),
		orchestrator.WithLogger(logger),
		orchestrator.WithMerger(merge.NewGitMerger(merge.GitConfig{RepoPath: repoPath})),
	)

	// Build history is an observer, never a dependency of the build.
	var db *state.DB
	if db, err = state.OpenProject(repoPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: build history disabled: %v\n", err)
		db = nil
	} else {
		defer db.Close()
		orch.Subscribe(state.NewRecorder(db).Listener())
	}

	orch.Subscribe(renderEvent)

	questions := make(chan question, 8)
	orch.Subscribe(func(e orchestrator.Event) {
		if e.Type == orchestrator.EventUnitInterrupt {
			select {
			case questions <- question{unitID: e.UnitID, text: e.Message}:
			default:
				fmt.Fprintf(os.Stderr, "warning: dropped question from %s (answer queue full)\n", e.UnitID)
			}
		}
	})
	go answerLoop(orch, questions)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, color.YellowString("\nAborting: cancelling running units..."))
		orch.Abort()
	}()

	buildState, buildErr := orch.StartBuild(context.Background(), specText)

	if db != nil {
		if err := db.SaveBuild(buildState); err != nil {
			fmt.Fprintf(os.Stderr, "warning: save build history: %v\n", err)
		}
	}

	printSummary(buildState)
	return buildErr
}

// resolveSpec reads the spec from a file path argument or treats the
// arguments as inline spec text.
func resolveSpec(args []string) (string, error) {
	if len(args) == 0 {
		if runPlanFile == "" {
			return "", fmt.Errorf("a spec file, spec text, or --plan is required")
		}
		return fmt.Sprintf("plan file: %s", runPlanFile), nil
	}

	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return "", fmt.Errorf("read spec file: %w", err)
			}
			return string(data), nil
		}
	}

	return strings.Join(args, " "), nil
}

func buildDecomposer(cfg *config.Config, model string) (decompose.Decomposer, error) {
	if runPlanFile != "" {
		path := runPlanFile
		return decompose.Func(func(ctx context.Context, specText string) (*models.Decomposition, error) {
			return decompose.FromFile(path)
		}), nil
	}

	apiKey, err := config.GetAPIKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w (or pass --plan to skip model decomposition)", err)
	}

	return decompose.NewClaudeDecomposer(decompose.ClaudeConfig{
		Model:  model,
		APIKey: apiKey,
	})
}

func buildSpawner(cfg *config.Config, model string) (worker.Spawner, error) {
	var spawner worker.Spawner

	if runUseAPI {
		apiKey := ""
		if !cfg.AWS.UseBedrock {
			key, err := config.GetAPIKey(cfg)
			if err != nil {
				return nil, err
			}
			apiKey = key
		}

		s, err := worker.NewAPISpawner(worker.APIConfig{
			Model:      model,
			APIKey:     apiKey,
			UseBedrock: cfg.AWS.UseBedrock,
			AWSRegion:  cfg.AWS.Region,
			AWSProfile: cfg.AWS.Profile,
		})
		if err != nil {
			return nil, fmt.Errorf("create API spawner: %w", err)
		}
		spawner = s
	} else {
		if err := checkAgentCLI(cfg.Defaults.AgentCommand); err != nil {
			return nil, err
		}
		spawner = worker.NewProcessSpawner(worker.ProcessConfig{
			Command:    cfg.Defaults.AgentCommand,
			Args:       cfg.Defaults.AgentArgs,
			WatchFiles: true,
		})
	}

	return worker.WithTimeout(spawner, cfg.Timeouts.Unit), nil
}

type question struct {
	unitID string
	text   string
}

// answerLoop prompts on stdin for each pending question and forwards the
// answer into the running unit.
func answerLoop(orch *orchestrator.Orchestrator, questions <-chan question) {
	reader := bufio.NewReader(os.Stdin)
	for q := range questions {
		fmt.Printf("%s %s asks: %s\n", color.MagentaString("?"), q.unitID, q.text)
		fmt.Print("  answer> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		if err := orch.Answer(q.unitID, strings.TrimSpace(line)); err != nil {
			fmt.Fprintf(os.Stderr, "warning: forward answer to %s: %v\n", q.unitID, err)
		}
	}
}

// renderEvent prints one line per lifecycle event.
func renderEvent(e orchestrator.Event) {
	switch e.Type {
	case orchestrator.EventDecompositionStarted:
		fmt.Println(color.CyanString("◆ decomposing spec..."))
	case orchestrator.EventDecompositionCompleted:
		fmt.Printf("%s %s\n", color.CyanString("◆ plan:"), e.Message)
	case orchestrator.EventWaveStarted:
		fmt.Printf("%s wave %d: %s\n", color.CyanString("▶"), e.Wave+1, e.Message)
	case orchestrator.EventUnitStarted:
		fmt.Printf("  %s %s started (branch %s)\n", color.BlueString("•"), e.UnitID, e.Branch)
	case orchestrator.EventUnitProgress:
		fmt.Printf("    %s\n", color.New(color.Faint).Sprintf("%s: %s", e.UnitID, e.Message))
	case orchestrator.EventUnitCompleted:
		fmt.Printf("  %s %s completed in %s\n", color.GreenString("✓"), e.UnitID, e.Duration.Round(time.Second))
	case orchestrator.EventUnitFailed:
		fmt.Printf("  %s %s failed: %v\n", color.RedString("✗"), e.UnitID, e.Error)
	case orchestrator.EventWaveCompleted:
		fmt.Printf("%s wave %d done\n", color.CyanString("■"), e.Wave+1)
	case orchestrator.EventMergeStarted:
		fmt.Println(color.CyanString("⇅ merging unit branches..."))
	case orchestrator.EventMergeCompleted:
		fmt.Printf("%s merged into %s\n", color.GreenString("⇅"), e.Branch)
	case orchestrator.EventBuildCompleted:
		fmt.Printf("%s build completed in %s\n", color.GreenString("✔"), e.Duration.Round(time.Second))
	case orchestrator.EventBuildFailed:
		fmt.Printf("%s build failed: %s\n", color.RedString("✘"), e.Message)
	}
}

func printSummary(b *models.BuildState) {
	if b == nil {
		return
	}

	fmt.Println()
	fmt.Printf("Build %s: %s\n", b.ID, statusString(b))
	if b.MergedBranch != "" {
		fmt.Printf("Result branch: %s\n", b.MergedBranch)
	}
	for _, r := range b.Results {
		mark := color.GreenString("✓")
		if r.Status == models.ResultFailed {
			mark = color.RedString("✗")
		}
		line := fmt.Sprintf("  %s %-16s %s", mark, r.UnitID, r.Branch)
		if r.Error != "" {
			line += "  " + color.RedString(r.Error)
		}
		fmt.Println(line)
	}
}

func statusString(b *models.BuildState) string {
	if b.Status == models.BuildCompleted {
		return color.GreenString(string(b.Status))
	}
	return color.RedString(string(b.Status))
}
