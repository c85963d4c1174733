package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootDebug bool

var rootCmd = &cobra.Command{
	Use:   "decomp",
	Short: "Task decomposition and staged execution",
	Long: `decomp breaks a high-level task into a graph of subtasks, orders them into
stages of parallel work, and executes the stages against Claude under a shared
token budget.

Core capabilities:
- Strategy-guided decomposition with dependency validation and cycle repair
- Pattern cache that reuses successful decompositions for similar tasks
- Stage-by-stage execution with dependency gating, timeouts and budgets
- Run history with per-subtask outcomes`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Write a debug log to .decomp/logs/debug.log")

	rootCmd.AddCommand(decomposeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
