// Package decompose turns a free-text task into a DecompositionTree.
package decompose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/decomp/internal/graph"
	"github.com/ShayCichocki/decomp/internal/pattern"
	"github.com/ShayCichocki/decomp/internal/progress"
	"github.com/ShayCichocki/decomp/internal/strategy"
	"github.com/ShayCichocki/decomp/pkg/models"
)

// DefaultMaxTokens is the reasoning response budget when none is configured.
const DefaultMaxTokens = 8192

// ReasoningRequest is sent to the reasoning provider.
type ReasoningRequest struct {
	System    string
	Prompt    string
	Model     string
	MaxTokens int64
}

// ReasoningResponse is the provider's raw reply.
type ReasoningResponse struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Reasoner produces a candidate subtask list as free-form text.
type Reasoner interface {
	Complete(ctx context.Context, req ReasoningRequest) (*ReasoningResponse, error)
}

// PatternBridge is the engine's view of the pattern cache.
type PatternBridge interface {
	FindMatch(ctx context.Context, task string) *pattern.Match
	Clone(payload pattern.Payload) []*models.Subtask
	Persist(ctx context.Context, tree *models.DecompositionTree) (string, error)
}

// DecompositionResult is returned by Decompose. On failure Success is false,
// Tree is empty and Error holds the reason.
type DecompositionResult struct {
	Success  bool                      `json:"success" yaml:"success"`
	Tree     *models.DecompositionTree `json:"tree" yaml:"tree"`
	Summary  Summary                   `json:"summary" yaml:"summary"`
	Quality  Quality                   `json:"quality" yaml:"quality"`
	Warnings []string                  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error    string                    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	bridge          PatternBridge
	registry        *strategy.Registry
	maxSubtasks     int
	model           string
	maxTokens       int64
	maxRepairPasses int
	emitter         *progress.Emitter
	debugLog        func(format string, args ...interface{})
	now             func() time.Time
}

// WithPatternBridge enables pattern lookup and persistence.
func WithPatternBridge(b PatternBridge) Option {
	return func(o *engineOptions) {
		o.bridge = b
	}
}

// WithRegistry sets the strategy registry. DefaultRegistry is used otherwise.
func WithRegistry(r *strategy.Registry) Option {
	return func(o *engineOptions) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithMaxSubtasks sets the subtask cap.
func WithMaxSubtasks(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.maxSubtasks = n
		}
	}
}

// WithModel sets the model passed to the reasoning provider.
func WithModel(model string) Option {
	return func(o *engineOptions) {
		o.model = model
	}
}

// WithMaxTokens sets the reasoning response budget.
func WithMaxTokens(n int64) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithMaxRepairPasses bounds cycle repair.
func WithMaxRepairPasses(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.maxRepairPasses = n
		}
	}
}

// WithEmitter sets the progress event emitter.
func WithEmitter(e *progress.Emitter) Option {
	return func(o *engineOptions) {
		o.emitter = e
	}
}

// WithDebugLog sets the debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(o *engineOptions) {
		if fn != nil {
			o.debugLog = fn
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// Engine orchestrates pattern lookup, strategy selection, generation,
// dependency repair and analysis.
type Engine struct {
	reasoner Reasoner
	analyzer *graph.Analyzer
	opts     engineOptions
}

// New creates an Engine. reasoner may be nil if every task is expected to
// match a stored pattern.
func New(reasoner Reasoner, opts ...Option) *Engine {
	o := engineOptions{
		registry:        strategy.DefaultRegistry(),
		maxSubtasks:     DefaultMaxSubtasks,
		maxTokens:       DefaultMaxTokens,
		maxRepairPasses: graph.DefaultMaxRepairPasses,
		debugLog:        func(format string, args ...interface{}) {},
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	analyzer := graph.New()
	analyzer.SetDebugLog(o.debugLog)

	return &Engine{
		reasoner: reasoner,
		analyzer: analyzer,
		opts:     o,
	}
}

// generation is the outcome of steps 1-3: where the subtasks came from.
type generation struct {
	subtasks   []*models.Subtask
	strategy   models.Strategy
	rationale  string
	match      *pattern.Match
	tokensUsed int64
	warnings   []string
}

// Decompose breaks task into a DecompositionTree. It never returns a Go error;
// failures are reported through the result.
func (e *Engine) Decompose(ctx context.Context, task string) (result *DecompositionResult) {
	defer func() {
		if p := recover(); p != nil {
			result = e.fail(task, nil, fmt.Errorf("%w: %v", ErrReasonerPanic, p))
		}
	}()

	start := e.opts.now()
	task = strings.TrimSpace(task)
	e.emit(models.EventDecompositionStart, "decomposition started", 0)
	e.opts.debugLog("[decompose] task: %q", task)

	if task == "" {
		return e.fail(task, nil, errors.New("task is empty"))
	}

	gen, err := e.generate(ctx, task)
	if err != nil {
		return e.fail(task, gen.warnings, err)
	}
	warnings := gen.warnings
	subtasks := gen.subtasks

	// Structural problems are warnings; repair what we can.
	if v := graph.ValidateDependencies(subtasks); !v.Valid {
		warnings = append(warnings, v.Messages()...)
		graph.RemoveInvalidDependencies(subtasks)
	}

	cycles := graph.DetectCycles(subtasks)
	var repair graph.RepairResult
	if len(cycles) > 0 {
		repair, err = graph.RepairCycles(subtasks, e.opts.maxRepairPasses)
		for _, edge := range repair.BrokenEdges {
			warnings = append(warnings, fmt.Sprintf("broke dependency cycle: removed edge %s -> %s", edge.From, edge.To))
		}
		if err != nil {
			return e.fail(task, warnings, err)
		}
	}

	dg := e.analyzer.Analyze(subtasks)
	dg.Cycles = cycles

	tree := e.buildTree(task, gen, subtasks, dg)
	tree.Metadata.RepairPasses = repair.Passes
	for _, id := range tree.ExecutionOrder {
		st := tree.Subtasks[id]
		e.opts.emitter.Emit(models.ProgressEvent{
			Type:        models.EventSubtaskCreated,
			Message:     st.Title,
			SubtaskID:   st.ID,
			Stage:       st.Stage,
			TotalStages: dg.TotalStages,
			Progress:    0.8,
		})
	}
	e.emit(models.EventDependenciesAnalyzed,
		fmt.Sprintf("%d stages, max parallelism %d", dg.TotalStages, dg.MaxParallelism), 0.85)

	if gen.match == nil && e.opts.bridge != nil {
		if patternID, err := e.opts.bridge.Persist(ctx, tree); err != nil {
			e.opts.debugLog("[decompose] pattern persistence failed (ignored): %v", err)
			warnings = append(warnings, fmt.Sprintf("pattern not saved: %v", err))
		} else {
			tree.Metadata.SavedPatternID = patternID
		}
	}

	tree.Metadata.GenerationLatency = e.opts.now().Sub(start)
	summary := Summarize(tree)
	quality := ScoreTree(tree)
	warnings = append(warnings, quality.Warnings...)
	e.opts.debugLog("[decompose] %s, confidence %.2f", summary, quality.OverallConfidence)

	return &DecompositionResult{
		Success:  true,
		Tree:     tree,
		Summary:  summary,
		Quality:  quality,
		Warnings: warnings,
	}
}

// generate obtains subtasks from a matching pattern or the reasoning provider.
func (e *Engine) generate(ctx context.Context, task string) (generation, error) {
	if e.opts.bridge != nil {
		if match := e.opts.bridge.FindMatch(ctx, task); match != nil {
			subtasks := e.opts.bridge.Clone(match.Payload)
			if len(subtasks) > 0 {
				name := match.Payload.Strategy
				if name == "" {
					name = models.StrategyHybrid
				}
				e.emit(models.EventPatternMatched,
					fmt.Sprintf("reusing pattern %s (similarity %.2f)", match.ID, match.Score), 0.2)
				e.emit(models.EventStrategySelected, string(name), 0.3)
				return generation{
					subtasks:  subtasks,
					strategy:  name,
					rationale: fmt.Sprintf("reused pattern %s (similarity %.2f, success rate %.2f)", match.ID, match.Score, match.Payload.SuccessRate),
					match:     match,
				}, nil
			}
		}
	}

	sel := e.opts.registry.Select(task)
	e.emit(models.EventStrategySelected, fmt.Sprintf("%s: %s", sel.Strategy.Name(), sel.Rationale), 0.2)
	gen := generation{strategy: sel.Strategy.Name(), rationale: sel.Rationale}

	if e.reasoner == nil {
		return gen, errors.New("no reasoning provider configured")
	}

	resp, err := e.reasoner.Complete(ctx, ReasoningRequest{
		System:    systemPrompt,
		Prompt:    sel.Strategy.BuildPrompt(task, e.opts.maxSubtasks),
		Model:     e.opts.model,
		MaxTokens: e.opts.maxTokens,
	})
	if err != nil {
		return gen, fmt.Errorf("reasoning call: %w", err)
	}
	if resp == nil {
		return gen, ErrNoResponse
	}
	gen.tokensUsed = resp.InputTokens + resp.OutputTokens

	subtasks, warnings, err := ParseResponse(resp.Text, e.opts.maxSubtasks)
	gen.warnings = warnings
	if err != nil {
		return gen, fmt.Errorf("parse decomposition response: %w", err)
	}
	gen.subtasks = subtasks
	return gen, nil
}

// buildTree assembles the tree aggregate from analyzed subtasks.
func (e *Engine) buildTree(task string, gen generation, subtasks []*models.Subtask, dg *models.DependencyGraph) *models.DecompositionTree {
	tree := &models.DecompositionTree{
		ID:        uuid.New().String(),
		Task:      task,
		Strategy:  gen.strategy,
		Subtasks:  make(map[string]*models.Subtask, len(subtasks)),
		Graph:     dg,
		CreatedAt: e.opts.now(),
		Metadata: models.TreeMetadata{
			StrategyRationale: gen.rationale,
			TokensUsed:        gen.tokensUsed,
		},
	}
	if gen.match != nil {
		tree.Metadata.PatternID = gen.match.ID
		tree.Metadata.PatternSimilarity = gen.match.Score
	}

	for _, st := range subtasks {
		if _, exists := tree.Subtasks[st.ID]; !exists {
			tree.Subtasks[st.ID] = st
		}
	}
	for _, stage := range dg.Stages {
		tree.ExecutionOrder = append(tree.ExecutionOrder, stage...)
	}
	for _, st := range tree.Subtasks {
		tree.TotalEstimatedTokens += st.EstimatedTokens
		tree.TotalEstimatedDuration += st.EstimatedDuration
	}
	tree.MaxDepth = tree.Depth()
	return tree
}

func (e *Engine) fail(task string, warnings []string, err error) *DecompositionResult {
	e.opts.debugLog("[decompose] failed: %v", err)
	e.opts.emitter.Emit(models.ProgressEvent{
		Type:    models.EventError,
		Message: "decomposition failed",
		Error:   err.Error(),
	})
	return &DecompositionResult{
		Success:  false,
		Tree:     models.EmptyTree(task),
		Summary:  Summarize(nil),
		Warnings: warnings,
		Error:    err.Error(),
	}
}

func (e *Engine) emit(t models.EventType, msg string, p float64) {
	e.opts.emitter.Emit(models.ProgressEvent{Type: t, Message: msg, Progress: p})
}
