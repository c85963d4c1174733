// Package execution runs a DecompositionTree stage by stage.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/decomp/internal/graph"
	"github.com/ShayCichocki/decomp/internal/progress"
	"github.com/ShayCichocki/decomp/pkg/models"
)

// DefaultSuccessThreshold is the fraction of executed subtasks that must
// succeed for a run with errors to still count as successful.
const DefaultSuccessThreshold = 0.8

var (
	// ErrDependencyFailed marks a subtask skipped because a dependency did not complete.
	ErrDependencyFailed = errors.New("dependency did not complete")
	// ErrBudgetExhausted marks a subtask skipped because the budget ran out.
	ErrBudgetExhausted = errors.New("budget exhausted")
	// ErrTimeout marks a subtask whose executor exceeded its deadline.
	ErrTimeout = errors.New("subtask timed out")
	// ErrCancelled marks a subtask that was not run or was abandoned after cancellation.
	ErrCancelled = errors.New("execution cancelled")
	// ErrNoResult marks an executor that returned neither a result nor an error.
	ErrNoResult = errors.New("executor returned no result")
	// ErrExecutorPanic marks an executor that panicked.
	ErrExecutorPanic = errors.New("executor panicked")
)

// Executor performs one subtask. Returning an error, or a result with
// Success false, marks the subtask failed.
type Executor func(ctx context.Context, ec ExecutionContext) (*models.SubtaskResult, error)

// ExecutionContext is what an Executor receives.
type ExecutionContext struct {
	// Subtask is a copy of the subtask being executed.
	Subtask *models.Subtask
	// DependencyResults maps each hard dependency ID to its result.
	DependencyResults map[string]*models.SubtaskResult
	// SharedContext is caller-supplied text shared by every subtask.
	SharedContext string
	// RemainingBudget is the budget left at dispatch time; -1 means unlimited.
	RemainingBudget int64
	// Stage is the zero-based stage index.
	Stage int
	// TotalStages is the number of stages.
	TotalStages int
}

// SubtaskError records why a subtask failed or was skipped.
type SubtaskError struct {
	SubtaskID string `json:"subtask_id" yaml:"subtask_id"`
	Title     string `json:"title" yaml:"title"`
	Skipped   bool   `json:"skipped" yaml:"skipped"`
	Message   string `json:"message" yaml:"message"`
	err       error
}

func (e SubtaskError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Title, e.SubtaskID, e.Message)
}

func (e SubtaskError) Unwrap() error {
	return e.err
}

// ExecutionResult summarizes a run. It is returned even when subtasks fail.
type ExecutionResult struct {
	Success         bool                             `json:"success" yaml:"success"`
	Results         map[string]*models.SubtaskResult `json:"results" yaml:"results"`
	Errors          []SubtaskError                   `json:"errors,omitempty" yaml:"errors,omitempty"`
	Completed       []string                         `json:"completed" yaml:"completed"`
	Failed          []string                         `json:"failed,omitempty" yaml:"failed,omitempty"`
	Skipped         []string                         `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	TokensUsed      int64                            `json:"tokens_used" yaml:"tokens_used"`
	RemainingBudget int64                            `json:"remaining_budget" yaml:"remaining_budget"`
	BudgetStatus    string                           `json:"budget_status" yaml:"budget_status"`
	Cancelled       bool                             `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Duration        time.Duration                    `json:"duration" yaml:"duration"`
}

// SuccessRate returns completed / executed, where executed counts subtasks
// whose executor was invoked. With nothing executed it returns 0.
func (r *ExecutionResult) SuccessRate() float64 {
	executed := len(r.Completed) + len(r.Failed)
	if executed == 0 {
		return 0
	}
	return float64(len(r.Completed)) / float64(executed)
}

// Option configures a Coordinator.
type Option func(*coordinatorOptions)

type coordinatorOptions struct {
	budget           int64
	subtaskTimeout   time.Duration
	emitter          *progress.Emitter
	debugLog         func(format string, args ...interface{})
	successThreshold float64
	maxConcurrency   int
	streamBuffer     int
	now              func() time.Time
}

// WithBudget sets the shared cost budget. 0 means unlimited.
func WithBudget(limit int64) Option {
	return func(o *coordinatorOptions) {
		o.budget = limit
	}
}

// WithSubtaskTimeout sets a per-subtask deadline. 0 disables it.
func WithSubtaskTimeout(d time.Duration) Option {
	return func(o *coordinatorOptions) {
		o.subtaskTimeout = d
	}
}

// WithEmitter sets where Execute sends progress events.
func WithEmitter(e *progress.Emitter) Option {
	return func(o *coordinatorOptions) {
		o.emitter = e
	}
}

// WithDebugLog sets the debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(o *coordinatorOptions) {
		if fn != nil {
			o.debugLog = fn
		}
	}
}

// WithSuccessThreshold sets the minimum success fraction.
func WithSuccessThreshold(v float64) Option {
	return func(o *coordinatorOptions) {
		if v > 0 && v <= 1 {
			o.successThreshold = v
		}
	}
}

// WithMaxConcurrency bounds how many subtasks of a stage run at once.
// 0 runs the whole stage at once.
func WithMaxConcurrency(n int) Option {
	return func(o *coordinatorOptions) {
		if n >= 0 {
			o.maxConcurrency = n
		}
	}
}

// WithStreamBuffer sets the event buffer size used by Stream.
func WithStreamBuffer(n int) Option {
	return func(o *coordinatorOptions) {
		if n > 0 {
			o.streamBuffer = n
		}
	}
}

// Coordinator executes decomposition trees.
type Coordinator struct {
	opts coordinatorOptions
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	o := coordinatorOptions{
		successThreshold: DefaultSuccessThreshold,
		streamBuffer:     progress.DefaultBufferSize,
		debugLog:         func(format string, args ...interface{}) {},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Coordinator{opts: o}
}

// Execute runs tree to completion and returns the outcome. Subtasks in a
// stage run concurrently; a stage starts only after every subtask of the
// previous stage has resolved.
func (c *Coordinator) Execute(ctx context.Context, tree *models.DecompositionTree, executor Executor, sharedContext string) *ExecutionResult {
	return c.run(ctx, tree, executor, sharedContext, c.opts.emitter)
}

// Stream runs tree in the background. Events arrive on the first channel,
// which is closed when execution finishes; the final result is then sent on
// the second. A consumer that stops reading does not cancel execution; use
// ctx for that.
func (c *Coordinator) Stream(ctx context.Context, tree *models.DecompositionTree, executor Executor, sharedContext string) (<-chan models.ProgressEvent, <-chan *ExecutionResult) {
	emitter := progress.NewEmitter(c.opts.streamBuffer)
	done := make(chan *ExecutionResult, 1)

	go func() {
		result := c.run(ctx, tree, executor, sharedContext, emitter)
		emitter.Close()
		done <- result
		close(done)
	}()

	return emitter.Events(), done
}

// run holds the per-execution state.
type run struct {
	c        *Coordinator
	tree     *models.DecompositionTree
	executor Executor
	shared   string
	emitter  *progress.Emitter
	budget   *Budget

	stages [][]string
	total  int

	mu       sync.Mutex
	statuses map[string]models.SubtaskStatus
	resolved int
	result   *ExecutionResult
}

func (c *Coordinator) run(ctx context.Context, tree *models.DecompositionTree, executor Executor, shared string, emitter *progress.Emitter) *ExecutionResult {
	start := c.opts.now()
	r := &run{
		c:        c,
		tree:     tree,
		executor: executor,
		shared:   shared,
		emitter:  emitter,
		budget:   NewBudget(c.opts.budget),
		statuses: make(map[string]models.SubtaskStatus),
		result:   &ExecutionResult{Results: make(map[string]*models.SubtaskResult)},
	}

	if tree == nil || len(tree.Subtasks) == 0 {
		r.emit(models.ProgressEvent{Type: models.EventExecutionStart, Message: "nothing to execute"})
		return r.finish(start)
	}
	if executor == nil {
		r.emit(models.ProgressEvent{Type: models.EventError, Message: "no executor", Error: "no executor provided"})
		r.result.Errors = append(r.result.Errors, SubtaskError{Message: "no executor provided"})
		return r.finish(start)
	}

	r.stages = stagesFor(tree)
	for _, ids := range r.stages {
		r.total += len(ids)
	}
	for _, ids := range r.stages {
		for _, id := range ids {
			r.adoptPrior(tree.Subtasks[id])
		}
	}

	c.opts.debugLog("[execution] starting: %d subtasks in %d stages, budget %d", r.total, len(r.stages), c.opts.budget)
	r.emit(models.ProgressEvent{
		Type:        models.EventExecutionStart,
		Message:     fmt.Sprintf("executing %d subtasks in %d stages", r.total, len(r.stages)),
		TotalStages: len(r.stages),
	})

	for stage, ids := range r.stages {
		if err := ctx.Err(); err != nil {
			r.result.Cancelled = true
			for _, later := range r.stages[stage:] {
				for _, id := range later {
					r.skip(tree.Subtasks[id], stage, fmt.Errorf("%w: %v", ErrCancelled, err))
				}
			}
			break
		}

		r.emit(models.ProgressEvent{
			Type:        models.EventStageStart,
			Message:     fmt.Sprintf("stage %d/%d: %d subtasks", stage+1, len(r.stages), len(ids)),
			Stage:       stage,
			TotalStages: len(r.stages),
			Progress:    r.progress(),
		})
		r.runStage(ctx, stage, ids)
		r.emit(models.ProgressEvent{
			Type:        models.EventStageComplete,
			Message:     fmt.Sprintf("stage %d/%d complete", stage+1, len(r.stages)),
			Stage:       stage,
			TotalStages: len(r.stages),
			Progress:    r.progress(),
		})
	}
	if ctx.Err() != nil {
		r.result.Cancelled = true
	}

	return r.finish(start)
}

// stagesFor returns the tree's stages, analyzing the subtasks if the tree
// has no graph yet.
func stagesFor(tree *models.DecompositionTree) [][]string {
	if tree.Graph != nil && len(tree.Graph.Stages) > 0 {
		return tree.Graph.Stages
	}
	ids := make([]string, 0, len(tree.Subtasks))
	for id := range tree.Subtasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	subtasks := make([]*models.Subtask, len(ids))
	for i, id := range ids {
		subtasks[i] = tree.Subtasks[id]
	}
	tree.Graph = graph.Analyze(subtasks)
	return tree.Graph.Stages
}

// adoptPrior keeps the outcome of subtasks that already reached a terminal
// state, so a tree can be resumed without re-running completed work.
func (r *run) adoptPrior(st *models.Subtask) {
	if st == nil || !st.Status.IsTerminal() {
		return
	}
	r.statuses[st.ID] = st.Status
	r.resolved++
	if st.Status == models.SubtaskStatusComplete && st.Result != nil {
		r.result.Results[st.ID] = st.Result
	}
}

func (r *run) runStage(ctx context.Context, stage int, ids []string) {
	limit := r.c.opts.maxConcurrency
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	if limit == 0 {
		return
	}
	semaphore := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for _, id := range ids {
		st := r.tree.Subtasks[id]
		if st == nil {
			continue
		}
		r.mu.Lock()
		_, done := r.statuses[id]
		r.mu.Unlock()
		if done {
			continue
		}

		if depID, ok := r.unsatisfied(st); !ok {
			r.skip(st, stage, fmt.Errorf("%w: %s", ErrDependencyFailed, depID))
			continue
		}
		if r.budget.Exhausted() {
			r.skip(st, stage, fmt.Errorf("%w: %d of %d used", ErrBudgetExhausted, r.budget.Used(), r.budget.Limit()))
			continue
		}
		r.setStatus(st, models.SubtaskStatusReady)

		select {
		case <-ctx.Done():
			r.skip(st, stage, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
			continue
		case semaphore <- struct{}{}:
		}
		if err := ctx.Err(); err != nil {
			<-semaphore
			r.skip(st, stage, fmt.Errorf("%w: %v", ErrCancelled, err))
			continue
		}

		wg.Add(1)
		go func(st *models.Subtask) {
			defer wg.Done()
			defer func() { <-semaphore }()
			r.execute(ctx, stage, st)
		}(st)
	}

	wg.Wait()
}

// unsatisfied returns the first hard dependency that did not complete.
// Dependencies outside the tree are ignored.
func (r *run) unsatisfied(st *models.Subtask) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, depID := range st.Dependencies {
		if _, inTree := r.tree.Subtasks[depID]; !inTree {
			continue
		}
		if r.statuses[depID] != models.SubtaskStatusComplete {
			return depID, false
		}
	}
	return "", true
}

func (r *run) execute(ctx context.Context, stage int, st *models.Subtask) {
	r.setStatus(st, models.SubtaskStatusInProgress)
	r.emit(models.ProgressEvent{
		Type:        models.EventSubtaskStart,
		Message:     st.Title,
		SubtaskID:   st.ID,
		Stage:       stage,
		TotalStages: len(r.stages),
		Progress:    r.progress(),
	})

	ec := ExecutionContext{
		Subtask:           st.Clone(),
		DependencyResults: r.dependencyResults(st),
		SharedContext:     r.shared,
		RemainingBudget:   r.budget.Remaining(),
		Stage:             stage,
		TotalStages:       len(r.stages),
	}

	subCtx := ctx
	if r.c.opts.subtaskTimeout > 0 {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithTimeout(ctx, r.c.opts.subtaskTimeout)
		defer cancel()
	}

	started := r.c.opts.now()
	res, err := invoke(subCtx, r.executor, ec)
	latency := r.c.opts.now().Sub(started)

	if err == nil && res == nil {
		err = ErrNoResult
	}
	if res != nil {
		if res.TokensUsed > 0 {
			remaining := r.budget.Consume(res.TokensUsed)
			r.c.opts.debugLog("[execution] %s consumed %d, remaining %d", st.ID, res.TokensUsed, remaining)
		}
		if res.Latency == 0 {
			res.Latency = latency
		}
		if res.CompletedAt.IsZero() {
			res.CompletedAt = r.c.opts.now()
		}
	}
	if err == nil && !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "executor reported failure"
		}
		err = errors.New(msg)
	}
	if err != nil {
		if res == nil {
			res = &models.SubtaskResult{Latency: latency, CompletedAt: r.c.opts.now()}
		}
		res.Success = false
		res.Error = err.Error()
	}

	r.mu.Lock()
	st.Result = res
	r.result.Results[st.ID] = res
	if err != nil {
		r.transitionLocked(st, models.SubtaskStatusFailed)
		r.result.Failed = append(r.result.Failed, st.ID)
		r.result.Errors = append(r.result.Errors, SubtaskError{SubtaskID: st.ID, Title: st.Title, Message: err.Error(), err: err})
	} else {
		r.transitionLocked(st, models.SubtaskStatusComplete)
		r.result.Completed = append(r.result.Completed, st.ID)
	}
	r.resolved++
	progressNow := progress.Fraction(r.resolved, r.total)
	r.mu.Unlock()

	ev := models.ProgressEvent{
		SubtaskID:   st.ID,
		Stage:       stage,
		TotalStages: len(r.stages),
		Progress:    progressNow,
	}
	if err != nil {
		r.c.opts.debugLog("[execution] %s failed: %v", st.ID, err)
		ev.Type = models.EventSubtaskFailed
		ev.Message = st.Title
		ev.Error = err.Error()
	} else {
		ev.Type = models.EventSubtaskComplete
		ev.Message = st.Title
	}
	r.emit(ev)
}

// invoke calls the executor, converting panics into errors and abandoning
// an executor that outlives ctx.
func invoke(ctx context.Context, executor Executor, ec ExecutionContext) (*models.SubtaskResult, error) {
	type outcome struct {
		res *models.SubtaskResult
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrExecutorPanic, p)}
			}
		}()
		res, err := executor(ctx, ec)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() != nil {
			return o.res, ctxError(ctx)
		}
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctxError(ctx)
	}
}

func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
	return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
}

func (r *run) dependencyResults(st *models.Subtask) map[string]*models.SubtaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	deps := make(map[string]*models.SubtaskResult, len(st.Dependencies))
	for _, depID := range st.Dependencies {
		if res, ok := r.result.Results[depID]; ok {
			deps[depID] = res
		}
	}
	return deps
}

func (r *run) skip(st *models.Subtask, stage int, reason error) {
	if st == nil {
		return
	}
	r.mu.Lock()
	if _, done := r.statuses[st.ID]; done {
		r.mu.Unlock()
		return
	}
	r.transitionLocked(st, models.SubtaskStatusSkipped)
	r.result.Skipped = append(r.result.Skipped, st.ID)
	r.result.Errors = append(r.result.Errors, SubtaskError{
		SubtaskID: st.ID,
		Title:     st.Title,
		Skipped:   true,
		Message:   reason.Error(),
		err:       reason,
	})
	r.resolved++
	progressNow := progress.Fraction(r.resolved, r.total)
	r.mu.Unlock()

	r.c.opts.debugLog("[execution] %s skipped: %v", st.ID, reason)
	r.emit(models.ProgressEvent{
		Type:        models.EventSubtaskFailed,
		Message:     "skipped: " + st.Title,
		SubtaskID:   st.ID,
		Stage:       stage,
		TotalStages: len(r.stages),
		Progress:    progressNow,
		Error:       reason.Error(),
	})
}

func (r *run) setStatus(st *models.Subtask, to models.SubtaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionLocked(st, to)
}

// transitionLocked applies a legal status change; illegal ones are logged
// and ignored. Terminal statuses are recorded for dependency gating even if
// the subtask's own status could not legally move.
func (r *run) transitionLocked(st *models.Subtask, to models.SubtaskStatus) {
	if canTransition(st.Status, to) {
		st.Status = to
		st.UpdatedAt = r.c.opts.now()
	} else {
		r.c.opts.debugLog("[execution] ignored illegal transition %s -> %s for %s", st.Status, to, st.ID)
	}
	if to.IsTerminal() {
		r.statuses[st.ID] = to
	}
}

func (r *run) progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return progress.Fraction(r.resolved, r.total)
}

func (r *run) emit(ev models.ProgressEvent) {
	r.emitter.Emit(ev)
}

func (r *run) finish(start time.Time) *ExecutionResult {
	res := r.result
	res.TokensUsed = r.budget.Used()
	res.RemainingBudget = r.budget.Remaining()
	res.BudgetStatus = r.budget.Status().String()
	res.Duration = r.c.opts.now().Sub(start)
	res.Success = len(res.Errors) == 0 || res.SuccessRate() >= r.c.opts.successThreshold

	r.c.opts.debugLog("[execution] finished: success=%v completed=%d failed=%d skipped=%d tokens=%d",
		res.Success, len(res.Completed), len(res.Failed), len(res.Skipped), res.TokensUsed)
	r.emit(models.ProgressEvent{
		Type:     models.EventExecutionComplete,
		Message:  fmt.Sprintf("%d complete, %d failed, %d skipped", len(res.Completed), len(res.Failed), len(res.Skipped)),
		Progress: 1,
	})
	return res
}
