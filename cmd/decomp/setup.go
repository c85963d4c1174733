package main

import (
	"fmt"
	"log"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/decomp/internal/api"
	"github.com/ShayCichocki/decomp/internal/config"
	"github.com/ShayCichocki/decomp/internal/decompose"
	"github.com/ShayCichocki/decomp/internal/history"
	"github.com/ShayCichocki/decomp/internal/logger"
	"github.com/ShayCichocki/decomp/internal/pattern"
	"github.com/ShayCichocki/decomp/internal/progress"
	"github.com/ShayCichocki/decomp/internal/strategy"
)

// app holds the components a command needs. Optional components are nil
// when disabled or unavailable.
type app struct {
	root    string
	cfg     *config.Config
	log     *logger.DebugLogger
	store   *pattern.SQLiteStore
	bridge  *pattern.Bridge
	history *history.Store
}

// loadApp reads the config and opens the debug log. Stores are opened on demand.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	a := &app{root: root, cfg: cfg, log: logger.Nop()}
	switch {
	case cfg.Logging.DebugLog != "":
		if l, err := logger.New(cfg.Logging.DebugLog); err == nil {
			a.log = l
		}
	case rootDebug:
		a.log = logger.ForProject(root)
	}
	return a, nil
}

// openPatterns opens the pattern store and bridge. Failures are logged and
// leave the bridge nil so decomposition proceeds without the cache.
func (a *app) openPatterns() {
	if !a.cfg.Patterns.Enabled || a.bridge != nil {
		return
	}
	path := a.cfg.Patterns.DBPath
	if path == "" {
		path = pattern.ProjectDBPath(a.root)
	}
	store, err := pattern.NewSQLiteStore(path)
	if err != nil {
		log.Printf("[patterns] cache unavailable: %v", err)
		return
	}
	a.store = store
	a.bridge = pattern.NewBridge(store, pattern.NewHashEmbedder(a.cfg.Patterns.Dimensions),
		pattern.WithMinSimilarity(a.cfg.Patterns.MinSimilarity),
		pattern.WithMinSuccessRate(a.cfg.Patterns.MinSuccessRate),
		pattern.WithSearchLimit(a.cfg.Patterns.SearchLimit),
		pattern.WithDebugLog(a.log.Func()),
	)
}

// openHistory opens the run history. Failures are logged and leave it nil.
func (a *app) openHistory() {
	if !a.cfg.History.Enabled || a.history != nil {
		return
	}
	path := a.cfg.History.DBPath
	if path == "" {
		path = history.DefaultPath(a.root)
	}
	store, err := history.NewStore(path)
	if err != nil {
		log.Printf("[history] unavailable: %v", err)
		return
	}
	a.history = store
}

// newClient builds the Anthropic client from config.
func (a *app) newClient() (*api.Client, error) {
	if err := config.RequireCredentials(a.cfg); err != nil {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or enable anthropic.use_bedrock", err)
	}
	key, _ := config.GetAPIKey(a.cfg)
	return api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(a.cfg.Anthropic.Model),
		APIKey:        key,
		MaxTokens:     a.cfg.Anthropic.MaxTokens,
		UseAWSBedrock: a.cfg.Anthropic.UseBedrock,
		AWSRegion:     a.cfg.Anthropic.AWSRegion,
		AWSProfile:    a.cfg.Anthropic.AWSProfile,
	})
}

// newEngine builds a decomposition engine. usePatterns=false skips the cache
// even when it is enabled in config.
func (a *app) newEngine(reasoner decompose.Reasoner, maxSubtasks int, usePatterns bool, emitter *progress.Emitter) *decompose.Engine {
	registry := strategy.DefaultRegistry()
	registry.SetMinScore(a.cfg.Decomposition.StrategyMinScore)

	if maxSubtasks <= 0 {
		maxSubtasks = a.cfg.Decomposition.MaxSubtasks
	}

	opts := []decompose.Option{
		decompose.WithRegistry(registry),
		decompose.WithMaxSubtasks(maxSubtasks),
		decompose.WithMaxTokens(a.cfg.Anthropic.MaxTokens),
		decompose.WithMaxRepairPasses(a.cfg.Decomposition.MaxRepairPasses),
		decompose.WithEmitter(emitter),
		decompose.WithDebugLog(a.log.Func()),
	}
	if usePatterns {
		a.openPatterns()
		// Only pass a non-nil bridge; a typed nil would defeat the engine's nil check.
		if a.bridge != nil {
			opts = append(opts, decompose.WithPatternBridge(a.bridge))
		}
	}
	return decompose.New(reasoner, opts...)
}

// Close releases every opened component.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.history != nil {
		a.history.Close()
	}
	a.log.Close()
}
