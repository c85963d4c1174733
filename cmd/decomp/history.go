package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/decomp/internal/history"
	"github.com/ShayCichocki/decomp/pkg/models"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long: `List decompositions and executions recorded for this project, most
recent first. Use 'decomp history show <id>' for per-subtask outcomes and
'decomp run --resume <id>' to retry what did not complete.`,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

// openHistoryOrFail opens run history for the history commands.
func openHistoryOrFail() (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	if !a.cfg.History.Enabled {
		a.Close()
		return nil, errors.New("run history is disabled (history.enabled: false)")
	}
	a.openHistory()
	if a.history == nil {
		a.Close()
		return nil, errors.New("run history could not be opened")
	}
	return a, nil
}

// findRun looks a run up by full ID or unique prefix.
func findRun(store *history.Store, id string) (*history.Run, error) {
	run, err := store.GetRun(id)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, history.ErrNotFound) {
		return nil, err
	}

	runs, err := store.ListRuns(0)
	if err != nil {
		return nil, err
	}
	var found *history.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			if found != nil {
				return nil, fmt.Errorf("run id %s is ambiguous", id)
			}
			found = r
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", history.ErrNotFound, id)
	}
	return found, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := openHistoryOrFail()
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.history.ListRuns(historyLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet. Run 'decomp run <task>' to start.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSUBTASKS\tDONE\tFAILED\tSKIPPED\tTOKENS\tSTARTED\tTASK")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			shortID(r.ID), historyStatus(r.Status), r.SubtaskCount, r.Completed, r.Failed, r.Skipped,
			r.TokensUsed, r.StartedAt.Local().Format("2006-01-02 15:04"), truncateText(r.Task, 50))
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := openHistoryOrFail()
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := findRun(a.history, args[0])
	if err != nil {
		return err
	}
	tree, err := run.Tree()
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(run.Task))
	fmt.Printf("id: %s\n", run.ID)
	fmt.Printf("status: %s\n", historyStatus(run.Status))
	fmt.Printf("strategy: %s\n", run.Strategy)
	if run.PatternID != "" {
		fmt.Printf("pattern: %s\n", run.PatternID)
	}
	fmt.Printf("started: %s\n", run.StartedAt.Local().Format(time.RFC1123))
	if run.Duration > 0 {
		fmt.Printf("duration: %s\n", run.Duration.Round(time.Millisecond))
	}
	if run.Budget > 0 {
		fmt.Printf("tokens: %d of %d\n", run.TokensUsed, run.Budget)
	} else {
		fmt.Printf("tokens: %d\n", run.TokensUsed)
	}
	fmt.Println()

	for _, st := range tree.SubtaskList() {
		printStatus(statusSymbol(st.Status), fmt.Sprintf("%s %s", idStyle.Render(shortID(st.ID)), st.Title), statusColor(st.Status))
		if st.Result != nil && st.Result.Error != "" {
			fmt.Printf("    %s\n", st.Result.Error)
		}
	}
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	a, err := openHistoryOrFail()
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := findRun(a.history, args[0])
	if err != nil {
		return err
	}
	if err := a.history.DeleteRun(run.ID); err != nil {
		return err
	}
	printStatus("✓", "Deleted run "+run.ID, color.FgGreen)
	return nil
}

func statusSymbol(s models.SubtaskStatus) string {
	switch s {
	case models.SubtaskStatusComplete:
		return "✓"
	case models.SubtaskStatusFailed:
		return "✗"
	case models.SubtaskStatusSkipped:
		return "-"
	default:
		return "·"
	}
}

func statusColor(s models.SubtaskStatus) color.Attribute {
	switch s {
	case models.SubtaskStatusComplete:
		return color.FgGreen
	case models.SubtaskStatusFailed:
		return color.FgRed
	case models.SubtaskStatusSkipped:
		return color.FgYellow
	default:
		return color.FgWhite
	}
}
