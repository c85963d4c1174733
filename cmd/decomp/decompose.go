package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/decomp/internal/decompose"
	"github.com/ShayCichocki/decomp/internal/progress"
)

var (
	decomposeFormat      string
	decomposeMaxSubtasks int
	decomposeNoPatterns  bool
)

var decomposeCmd = &cobra.Command{
	Use:   "decompose <task>",
	Short: "Break a task into a dependency graph of subtasks",
	Long: `Decompose a free-text task into subtasks, analyze their dependencies,
and print the resulting execution stages.

A stored pattern is reused when a sufficiently similar task decomposed
successfully before. New decompositions are saved as patterns.

Examples:
  decomp decompose "Add OAuth login to the web app"
  decomp decompose --format yaml "Migrate billing to the new schema" > plan.yaml
  decomp decompose --no-patterns --max-subtasks 8 "Write a CLI for the API"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecompose,
}

func init() {
	decomposeCmd.Flags().StringVarP(&decomposeFormat, "format", "f", "text", "Output format: text, json, yaml")
	decomposeCmd.Flags().IntVar(&decomposeMaxSubtasks, "max-subtasks", 0, "Maximum number of subtasks (default from config)")
	decomposeCmd.Flags().BoolVar(&decomposeNoPatterns, "no-patterns", false, "Skip the pattern cache")
}

func runDecompose(cmd *cobra.Command, args []string) error {
	if err := checkFormat(decomposeFormat); err != nil {
		return err
	}
	task := strings.Join(args, " ")

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.newClient()
	if err != nil {
		return err
	}

	var emitter *progress.Emitter
	var drain func()
	if decomposeFormat == "text" && isatty.IsTerminal(os.Stdout.Fd()) {
		emitter, drain = watchEvents()
	}
	engine := a.newEngine(client, decomposeMaxSubtasks, !decomposeNoPatterns, emitter)

	result := engine.Decompose(context.Background(), task)
	if drain != nil {
		drain()
	}
	if !result.Success {
		return fmt.Errorf("decomposition failed: %s", result.Error)
	}
	in, out := client.Tracker().Total()
	a.log.Log("[decompose] tokens used: %d in, %d out", in, out)

	return writeResult(cmd.OutOrStdout(), decomposeFormat, result)
}

// checkFormat rejects output formats writeResult cannot produce.
func checkFormat(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown format %q: expected text, json or yaml", format)
	}
}

// writeResult prints a decomposition in the requested format.
func writeResult(w io.Writer, format string, result *decompose.DecompositionResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		renderTree(w, result)
		return nil
	}
}

// watchEvents starts printing progress events. The returned func closes the
// emitter and waits until every buffered event has been printed.
func watchEvents() (*progress.Emitter, func()) {
	emitter := progress.NewEmitter(progress.DefaultBufferSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range emitter.Events() {
			printEvent(event)
		}
	}()
	return emitter, func() {
		emitter.Close()
		wg.Wait()
	}
}
