package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/decomp/internal/decompose"
	"github.com/ShayCichocki/decomp/internal/execution"
	"github.com/ShayCichocki/decomp/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	stageStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Blue

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244")) // Gray

	criticalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Orange

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// shortID trims UUIDs for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// renderTree writes the stages of a decomposition. Subtasks on the critical
// path are marked with a star.
func renderTree(w io.Writer, result *decompose.DecompositionResult) {
	tree := result.Tree
	fmt.Fprintln(w, titleStyle.Render(tree.Task))
	fmt.Fprintf(w, "strategy: %s", tree.Strategy)
	if tree.Metadata.StrategyRationale != "" {
		fmt.Fprintf(w, " (%s)", tree.Metadata.StrategyRationale)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	critical := make(map[string]bool)
	var stages [][]string
	if tree.Graph != nil {
		stages = tree.Graph.Stages
		for _, id := range tree.Graph.CriticalPath {
			critical[id] = true
		}
	}

	for i, stage := range stages {
		fmt.Fprintln(w, stageStyle.Render(fmt.Sprintf("Stage %d", i+1)))
		for _, id := range stage {
			st, ok := tree.Subtasks[id]
			if !ok {
				continue
			}
			marker := " "
			if critical[id] {
				marker = criticalStyle.Render("*")
			}
			fmt.Fprintf(w, "  %s %s %s [%s, %s, ~%d tokens]\n",
				marker, idStyle.Render(shortID(st.ID)), st.Title, st.Type, st.Complexity, st.EstimatedTokens)
			if len(st.Dependencies) > 0 {
				deps := make([]string, len(st.Dependencies))
				for j, dep := range st.Dependencies {
					deps[j] = shortID(dep)
				}
				fmt.Fprintf(w, "      %s\n", idStyle.Render("after "+strings.Join(deps, ", ")))
			}
		}
	}
	fmt.Fprintln(w)

	summary := fmt.Sprintf("%s\nconfidence %.2f", result.Summary, result.Quality.OverallConfidence)
	fmt.Fprintln(w, summaryStyle.Render(summary))

	for _, warning := range result.Warnings {
		fmt.Fprintln(w, warningStyle.Render("! "+warning))
	}
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// printEvent renders one progress event as a status line. Events that carry
// no user-facing information are skipped.
func printEvent(event models.ProgressEvent) {
	switch event.Type {
	case models.EventStrategySelected:
		printStatus("→", "Strategy "+event.Message, color.FgCyan)
	case models.EventPatternMatched:
		printStatus("↺", "Pattern cache: "+event.Message, color.FgCyan)
	case models.EventDependenciesAnalyzed:
		printStatus("✓", "Dependencies analyzed: "+event.Message, color.FgGreen)
	case models.EventStageStart:
		printStatus("▶", fmt.Sprintf("Stage %d/%d", event.Stage+1, event.TotalStages), color.FgBlue)
	case models.EventSubtaskStart:
		printStatus("…", event.Message, color.FgWhite)
	case models.EventSubtaskComplete:
		printStatus("✓", fmt.Sprintf("%s (%.0f%%)", event.Message, event.Progress*100), color.FgGreen)
	case models.EventSubtaskFailed:
		printStatus("✗", fmt.Sprintf("%s: %s", event.Message, event.Error), color.FgRed)
	case models.EventError:
		printStatus("✗", event.Message, color.FgRed)
	}
}

// renderExecution writes the outcome of a run.
func renderExecution(w io.Writer, result *execution.ExecutionResult) {
	fmt.Fprintln(w)
	verdict := color.GreenString("succeeded")
	switch {
	case result.Cancelled:
		verdict = color.YellowString("cancelled")
	case !result.Success:
		verdict = color.RedString("failed")
	}
	fmt.Fprintf(w, "Execution %s in %s\n", verdict, result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  completed %d, failed %d, skipped %d (success rate %.0f%%)\n",
		len(result.Completed), len(result.Failed), len(result.Skipped), result.SuccessRate()*100)
	if result.RemainingBudget < 0 {
		fmt.Fprintf(w, "  tokens used %d (no budget)\n", result.TokensUsed)
	} else {
		fmt.Fprintf(w, "  tokens used %d, remaining %d (%s)\n", result.TokensUsed, result.RemainingBudget, result.BudgetStatus)
	}
	for _, e := range result.Errors {
		label := color.RedString("error")
		if e.Skipped {
			label = color.YellowString("skipped")
		}
		fmt.Fprintf(w, "  %s %s\n", label, e.Error())
	}
}
