package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/decomp/internal/pattern"
)

var patternsLimit int

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List stored decomposition patterns",
	Long: `List the decomposition patterns cached for this project, most recently
updated first. A pattern is reused for a new task when its similarity and
success rate clear the configured thresholds.`,
	RunE: runPatternsList,
}

var patternsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the subtasks of a stored pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternsShow,
}

func init() {
	patternsCmd.Flags().IntVarP(&patternsLimit, "limit", "n", 20, "Maximum number of patterns to list (0 for all)")
	patternsCmd.AddCommand(patternsShowCmd)
}

// openPatternsOrFail opens the pattern cache for the patterns commands.
func openPatternsOrFail(a *app) error {
	if !a.cfg.Patterns.Enabled {
		return errors.New("the pattern cache is disabled (patterns.enabled: false)")
	}
	a.openPatterns()
	if a.bridge == nil {
		return errors.New("the pattern cache could not be opened")
	}
	return nil
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := openPatternsOrFail(a); err != nil {
		return err
	}

	matches, err := a.bridge.List(context.Background(), patternsLimit)
	if err != nil {
		return fmt.Errorf("list patterns: %w", err)
	}
	if len(matches) == 0 {
		fmt.Println("No patterns stored yet. Run 'decomp decompose <task>' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTRATEGY\tSUBTASKS\tSUCCESS\tUSES\tUPDATED\tTASK")
	for _, m := range matches {
		p := m.Payload
		fmt.Fprintf(w, "%s\t%s\t%d\t%.0f%%\t%d\t%s\t%s\n",
			shortID(m.ID), p.Strategy, len(p.Subtasks), p.SuccessRate*100, p.UsageCount,
			p.UpdatedAt.Local().Format("2006-01-02 15:04"), truncateText(p.Task, 60))
	}
	return w.Flush()
}

func runPatternsShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := openPatternsOrFail(a); err != nil {
		return err
	}

	m, err := findPattern(context.Background(), a, args[0])
	if err != nil {
		return err
	}

	p := m.Payload
	position := make(map[string]int, len(p.Subtasks))
	for i, st := range p.Subtasks {
		position[st.Ref] = i + 1
	}

	fmt.Println(titleStyle.Render(p.Task))
	fmt.Printf("id: %s\nstrategy: %s\nsuccess rate: %.2f over %d uses\n\n", m.ID, p.Strategy, p.SuccessRate, p.UsageCount)
	for i, st := range p.Subtasks {
		fmt.Printf("%2d. %s [%s, %s]\n", i+1, st.Title, st.Type, st.Complexity)
		if len(st.Dependencies) > 0 {
			deps := make([]string, len(st.Dependencies))
			for j, dep := range st.Dependencies {
				deps[j] = fmt.Sprintf("%d", position[dep])
			}
			fmt.Printf("    %s\n", idStyle.Render("after "+strings.Join(deps, ", ")))
		}
	}
	return nil
}

// findPattern looks a pattern up by full ID or unique prefix.
func findPattern(ctx context.Context, a *app, id string) (*pattern.Match, error) {
	m, err := a.store.Get(ctx, id)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pattern.ErrNotFound) {
		return nil, fmt.Errorf("get pattern: %w", err)
	}

	all, err := a.store.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	var found *pattern.Match
	for i := range all {
		if strings.HasPrefix(all[i].ID, id) {
			if found != nil {
				return nil, fmt.Errorf("pattern id %s is ambiguous", id)
			}
			found = &all[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no pattern with id %s", id)
	}
	return found, nil
}

// truncateText shortens s to at most n runes.
func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
