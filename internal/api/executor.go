package api

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ShayCichocki/decomp/internal/decompose"
	"github.com/ShayCichocki/decomp/internal/execution"
	"github.com/ShayCichocki/decomp/pkg/models"
)

// ErrStopped is returned when a stop signal is present before a subtask starts.
var ErrStopped = errors.New("stop signal received")

// DefaultConfidence is reported when the model does not state one.
const DefaultConfidence = 0.7

// maxDependencyOutput bounds how much of each dependency's output is
// forwarded to a dependent subtask.
const maxDependencyOutput = 4000

const executorSystemPrompt = `You are executing one subtask of a larger task.
Do exactly the work described, using the outputs of completed dependencies where relevant.
Respond with the result of the work. On the final line write "CONFIDENCE: <0.0-1.0>" with your confidence that the subtask is fully done.
If the subtask cannot be completed, start your reply with "FAILED:" followed by the reason.`

var confidencePattern = regexp.MustCompile(`(?im)^\s*confidence:\s*(0(?:\.\d+)?|1(?:\.0+)?)\s*$`)

// SubtaskExecutor runs subtasks as single-turn model requests.
type SubtaskExecutor struct {
	reasoner   decompose.Reasoner
	model      string
	maxTokens  int64
	shouldStop func() bool
	debugLog   func(format string, args ...interface{})
}

// ExecutorOption configures a SubtaskExecutor.
type ExecutorOption func(*SubtaskExecutor)

// WithExecutorModel overrides the model used for execution.
func WithExecutorModel(model string) ExecutorOption {
	return func(e *SubtaskExecutor) {
		e.model = model
	}
}

// WithExecutorMaxTokens caps each execution response.
func WithExecutorMaxTokens(n int64) ExecutorOption {
	return func(e *SubtaskExecutor) {
		e.maxTokens = n
	}
}

// WithStopCheck makes the executor refuse new subtasks once fn reports true.
func WithStopCheck(fn func() bool) ExecutorOption {
	return func(e *SubtaskExecutor) {
		e.shouldStop = fn
	}
}

// WithExecutorDebugLog sets the debug logging function.
func WithExecutorDebugLog(fn func(format string, args ...interface{})) ExecutorOption {
	return func(e *SubtaskExecutor) {
		if fn != nil {
			e.debugLog = fn
		}
	}
}

// NewSubtaskExecutor creates an executor backed by reasoner, usually a *Client.
func NewSubtaskExecutor(reasoner decompose.Reasoner, opts ...ExecutorOption) *SubtaskExecutor {
	e := &SubtaskExecutor{
		reasoner: reasoner,
		debugLog: func(format string, args ...interface{}) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Executor returns e as an execution.Executor.
func (e *SubtaskExecutor) Executor() execution.Executor {
	return e.Execute
}

// Execute runs one subtask. The model's token usage is reported as the
// subtask cost.
func (e *SubtaskExecutor) Execute(ctx context.Context, ec execution.ExecutionContext) (*models.SubtaskResult, error) {
	if e.shouldStop != nil && e.shouldStop() {
		return nil, ErrStopped
	}
	if ec.Subtask == nil {
		return nil, errors.New("no subtask")
	}

	start := time.Now()
	e.debugLog("[executor] running %s: %s", ec.Subtask.ID, ec.Subtask.Title)

	resp, err := e.reasoner.Complete(ctx, decompose.ReasoningRequest{
		System:    executorSystemPrompt,
		Prompt:    BuildSubtaskPrompt(ec),
		Model:     e.model,
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", ec.Subtask.ID, err)
	}

	output, confidence := splitConfidence(resp.Text)
	result := &models.SubtaskResult{
		Success:     true,
		Output:      output,
		Confidence:  confidence,
		TokensUsed:  resp.InputTokens + resp.OutputTokens,
		Latency:     time.Since(start),
		CompletedAt: time.Now(),
	}
	if reason, failed := strings.CutPrefix(strings.TrimSpace(output), "FAILED:"); failed {
		result.Success = false
		result.Error = strings.TrimSpace(reason)
	}
	return result, nil
}

// BuildSubtaskPrompt renders the execution prompt for one subtask.
func BuildSubtaskPrompt(ec execution.ExecutionContext) string {
	st := ec.Subtask
	var b strings.Builder

	fmt.Fprintf(&b, "## Subtask (stage %d of %d)\n\n", ec.Stage+1, ec.TotalStages)
	fmt.Fprintf(&b, "Title: %s\n", st.Title)
	if st.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", st.Type)
	}
	if st.Complexity != "" {
		fmt.Fprintf(&b, "Complexity: %s\n", st.Complexity)
	}
	if st.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", st.Description)
	}

	if len(ec.DependencyResults) > 0 {
		b.WriteString("\n## Completed dependencies\n")
		ids := make([]string, 0, len(ec.DependencyResults))
		for id := range ec.DependencyResults {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			res := ec.DependencyResults[id]
			if res == nil {
				continue
			}
			fmt.Fprintf(&b, "\n### %s\n%s\n", id, truncate(res.Output, maxDependencyOutput))
		}
	}

	if ec.SharedContext != "" {
		fmt.Fprintf(&b, "\n## Shared context\n%s\n", ec.SharedContext)
	}
	if ec.RemainingBudget >= 0 {
		fmt.Fprintf(&b, "\nRemaining token budget: %d. Keep the answer proportionate.\n", ec.RemainingBudget)
	}
	return b.String()
}

// splitConfidence removes the trailing confidence line and parses it.
func splitConfidence(text string) (string, float64) {
	loc := confidencePattern.FindAllStringSubmatchIndex(text, -1)
	if len(loc) == 0 {
		return strings.TrimSpace(text), DefaultConfidence
	}
	last := loc[len(loc)-1]
	value, err := strconv.ParseFloat(text[last[2]:last[3]], 64)
	if err != nil || value < 0 || value > 1 {
		value = DefaultConfidence
	}
	output := text[:last[0]] + text[last[1]:]
	return strings.TrimSpace(output), value
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n[truncated]"
}
