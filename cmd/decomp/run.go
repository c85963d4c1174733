package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/decomp/internal/api"
	"github.com/ShayCichocki/decomp/internal/decompose"
	"github.com/ShayCichocki/decomp/internal/execution"
	"github.com/ShayCichocki/decomp/internal/history"
	"github.com/ShayCichocki/decomp/internal/signal"
	"github.com/ShayCichocki/decomp/pkg/models"
)

var (
	runBudget         int64
	runTimeout        time.Duration
	runPlanFile       string
	runResumeID       string
	runContext        string
	runMaxConcurrency int
	runMaxSubtasks    int
	runNoPatterns     bool
	runNoHistory      bool
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Decompose a task and execute its subtasks",
	Long: `Decompose a task and execute the resulting subtasks stage by stage.

Subtasks within a stage run concurrently. A subtask whose dependencies
failed is skipped, as is every subtask dispatched after the token budget
is exhausted. The run succeeds when at least the configured share of
attempted subtasks complete.

Press Ctrl+C or run 'decomp stop' to cancel a running execution.

Examples:
  decomp run "Write release notes for v2.3"
  decomp run --budget 50000 --timeout 5m "Summarize the design docs"
  decomp run --plan plan.yaml --context "$(cat CONTEXT.md)"
  decomp run --resume 3f2a9c1e-...`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running execution in this project to stop",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		if lock, err := signal.AcquireRunLock(stateDir(root)); err == nil {
			lock.Release()
			fmt.Println("No run in progress.")
			return nil
		}
		if err := signal.SendStop(stateDir(root)); err != nil {
			return fmt.Errorf("send stop signal: %w", err)
		}
		printStatus("✓", "Stop signal sent", color.FgGreen)
		return nil
	},
}

func init() {
	runCmd.Flags().Int64VarP(&runBudget, "budget", "b", -1, "Token budget for execution, 0 for unlimited (default from config)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-subtask timeout (default from config)")
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "Execute a YAML plan instead of decomposing a task")
	runCmd.Flags().StringVar(&runResumeID, "resume", "", "Resume a recorded run, skipping subtasks that already completed")
	runCmd.Flags().StringVar(&runContext, "context", "", "Shared context passed to every subtask")
	runCmd.Flags().IntVar(&runMaxConcurrency, "max-concurrency", -1, "Maximum subtasks running at once, 0 for unlimited (default from config)")
	runCmd.Flags().IntVar(&runMaxSubtasks, "max-subtasks", 0, "Maximum number of subtasks (default from config)")
	runCmd.Flags().BoolVar(&runNoPatterns, "no-patterns", false, "Skip the pattern cache")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Do not record this run")
}

// stateDir is the per-project directory for signals, logs and databases.
func stateDir(root string) string {
	return filepath.Join(root, ".decomp")
}

func runRun(cmd *cobra.Command, args []string) error {
	task := strings.TrimSpace(strings.Join(args, " "))
	sources := 0
	for _, set := range []bool{task != "", runPlanFile != "", runResumeID != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("provide exactly one of a task, --plan or --resume")
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.newClient()
	if err != nil {
		return err
	}

	lock, err := signal.AcquireRunLock(stateDir(a.root))
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, stopSignals := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	watcher, err := signal.NewWatcher(stateDir(a.root))
	if err != nil {
		return fmt.Errorf("start stop watcher: %w", err)
	}
	defer watcher.Close()
	watcher.Clear()
	ctx, cancel := watcher.WithCancel(ctx)
	defer cancel()

	if !runNoHistory {
		a.openHistory()
	}

	tree, runID, err := prepareTree(ctx, a, client, task)
	if err != nil {
		return err
	}

	executor := api.NewSubtaskExecutor(client,
		api.WithExecutorModel(a.cfg.Anthropic.Model),
		api.WithExecutorMaxTokens(a.cfg.Anthropic.MaxTokens),
		api.WithStopCheck(watcher.ShouldStop),
		api.WithExecutorDebugLog(a.log.Func()),
	)

	budget := a.cfg.Execution.TokenBudget
	if runBudget >= 0 {
		budget = runBudget
	}
	timeout := a.cfg.Execution.SubtaskTimeout
	if runTimeout > 0 {
		timeout = runTimeout
	}
	concurrency := a.cfg.Execution.MaxConcurrency
	if runMaxConcurrency >= 0 {
		concurrency = runMaxConcurrency
	}

	coordinator := execution.NewCoordinator(
		execution.WithBudget(budget),
		execution.WithSubtaskTimeout(timeout),
		execution.WithSuccessThreshold(a.cfg.Execution.SuccessThreshold),
		execution.WithMaxConcurrency(concurrency),
		execution.WithDebugLog(a.log.Func()),
	)

	fmt.Println()
	events, results := coordinator.Stream(ctx, tree, executor.Executor(), runContext)
	for event := range events {
		printEvent(event)
	}
	result := <-results

	renderExecution(cmd.OutOrStdout(), result)
	recordOutcome(a, tree, runID, result, budget)

	if !result.Success {
		if result.Cancelled {
			return errors.New("execution cancelled")
		}
		return fmt.Errorf("execution failed: %.0f%% of attempted subtasks completed", result.SuccessRate()*100)
	}
	return nil
}

// prepareTree produces the tree to execute from a task, a plan file or a
// recorded run, and records new trees in history. The returned run ID is
// empty when history is disabled.
func prepareTree(ctx context.Context, a *app, client *api.Client, task string) (*models.DecompositionTree, string, error) {
	if runResumeID != "" {
		if a.history == nil {
			return nil, "", errors.New("--resume needs run history to be enabled")
		}
		run, err := findRun(a.history, runResumeID)
		if err != nil {
			return nil, "", err
		}
		tree, err := run.Tree()
		if err != nil {
			return nil, "", err
		}
		retry := resetIncomplete(tree)
		printStatus("↺", fmt.Sprintf("Resuming %s: %d subtasks to run", shortID(run.ID), retry), color.FgCyan)
		return tree, run.ID, nil
	}

	var result *decompose.DecompositionResult
	if runPlanFile != "" {
		plan, err := LoadPlan(runPlanFile)
		if err != nil {
			return nil, "", err
		}
		if result, err = decomposePlan(ctx, a, plan); err != nil {
			return nil, "", err
		}
	} else {
		emitter, drain := watchEvents()
		engine := a.newEngine(client, runMaxSubtasks, !runNoPatterns, emitter)
		result = engine.Decompose(ctx, task)
		drain()
		if !result.Success {
			return nil, "", fmt.Errorf("decomposition failed: %s", result.Error)
		}
	}
	renderTree(os.Stdout, result)

	if a.history == nil {
		return result.Tree, "", nil
	}
	run, err := a.history.CreateRun(result.Tree)
	if err != nil {
		printStatus("⚠", fmt.Sprintf("Could not record run: %v", err), color.FgYellow)
		return result.Tree, "", nil
	}
	return result.Tree, run.ID, nil
}

// resetIncomplete returns every subtask that did not complete to pending so
// the coordinator runs it again. It returns the number of subtasks to run.
func resetIncomplete(tree *models.DecompositionTree) int {
	n := 0
	for _, st := range tree.Subtasks {
		if st.Status == models.SubtaskStatusComplete {
			continue
		}
		st.Status = models.SubtaskStatusPending
		st.Result = nil
		n++
	}
	return n
}

// recordOutcome stores the result in history and folds it into the pattern
// the tree came from or was saved as.
func recordOutcome(a *app, tree *models.DecompositionTree, runID string, result *execution.ExecutionResult, budget int64) {
	if a.history != nil && runID != "" {
		if err := a.history.FinishRun(runID, tree, result, budget); err != nil {
			printStatus("⚠", fmt.Sprintf("Could not record run outcome: %v", err), color.FgYellow)
		} else {
			fmt.Printf("Recorded run %s\n", runID)
		}
	}

	if result.Cancelled {
		return
	}
	patternID := tree.Metadata.PatternID
	if patternID == "" {
		patternID = tree.Metadata.SavedPatternID
	}
	if patternID == "" {
		return
	}
	a.openPatterns()
	if a.bridge == nil {
		return
	}
	if err := a.bridge.RecordOutcome(context.Background(), patternID, result.Success); err != nil {
		a.log.Log("[run] record pattern outcome %s: %v", patternID, err)
	}
}

// historyStatus describes a recorded run for display.
func historyStatus(status history.RunStatus) string {
	switch status {
	case history.RunStatusSucceeded:
		return color.GreenString(string(status))
	case history.RunStatusFailed:
		return color.RedString(string(status))
	case history.RunStatusCancelled:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}
