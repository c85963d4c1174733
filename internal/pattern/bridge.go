package pattern

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// Default match thresholds.
const (
	DefaultMinSimilarity  = 0.85
	DefaultMinSuccessRate = 0.7
	DefaultSearchLimit    = 5
)

// Bridge connects the decomposition engine to a pattern Store. Every
// operation is best-effort: store and embedder failures are logged and
// reported as "no match", never as decomposition failures.
type Bridge struct {
	store          Store
	embedder       Embedder
	minSimilarity  float64
	minSuccessRate float64
	searchLimit    int
	debugLog       func(format string, args ...interface{})
	now            func() time.Time
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithMinSimilarity sets the minimum similarity score for a match.
func WithMinSimilarity(v float64) BridgeOption {
	return func(b *Bridge) {
		if v > 0 {
			b.minSimilarity = v
		}
	}
}

// WithMinSuccessRate sets the minimum success rate for a match.
func WithMinSuccessRate(v float64) BridgeOption {
	return func(b *Bridge) {
		if v >= 0 {
			b.minSuccessRate = v
		}
	}
}

// WithSearchLimit sets how many candidates are fetched per lookup.
func WithSearchLimit(n int) BridgeOption {
	return func(b *Bridge) {
		if n > 0 {
			b.searchLimit = n
		}
	}
}

// WithDebugLog sets the debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) BridgeOption {
	return func(b *Bridge) {
		if fn != nil {
			b.debugLog = fn
		}
	}
}

// NewBridge creates a Bridge over store using embedder for task text.
func NewBridge(store Store, embedder Embedder, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		store:          store,
		embedder:       embedder,
		minSimilarity:  DefaultMinSimilarity,
		minSuccessRate: DefaultMinSuccessRate,
		searchLimit:    DefaultSearchLimit,
		debugLog:       func(format string, args ...interface{}) {},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FindMatch returns the most similar stored pattern that meets both the
// similarity and success-rate thresholds, or nil.
func (b *Bridge) FindMatch(ctx context.Context, task string) *Match {
	embedding, err := b.embedder.Embed(ctx, task)
	if err != nil {
		b.debugLog("[pattern] embed failed, pattern matching disabled for this call: %v", err)
		return nil
	}

	matches, err := b.store.Search(ctx, embedding, b.searchLimit)
	if err != nil {
		b.debugLog("[pattern] search failed: %v", err)
		return nil
	}

	for i := range matches {
		m := matches[i]
		if m.Score < b.minSimilarity {
			// Results are ordered by score; nothing further qualifies.
			break
		}
		if m.Payload.SuccessRate < b.minSuccessRate {
			b.debugLog("[pattern] candidate %s similar (%.3f) but success rate %.2f below %.2f",
				m.ID, m.Score, m.Payload.SuccessRate, b.minSuccessRate)
			continue
		}
		if len(m.Payload.Subtasks) == 0 {
			continue
		}
		b.debugLog("[pattern] matched %s (similarity %.3f, success rate %.2f)", m.ID, m.Score, m.Payload.SuccessRate)
		return &m
	}
	return nil
}

// Clone instantiates a payload as fresh subtasks: new IDs, dependencies and
// parents remapped onto the new IDs, status pending, no results. References
// that do not resolve within the payload are dropped. An entry without a Ref
// still gets a subtask but nothing can refer to it.
func (b *Bridge) Clone(payload Payload) []*models.Subtask {
	now := b.now()

	idMap := make(map[string]string, len(payload.Subtasks))
	for _, ps := range payload.Subtasks {
		if ps.Ref == "" {
			continue
		}
		if _, exists := idMap[ps.Ref]; !exists {
			idMap[ps.Ref] = uuid.New().String()
		}
	}

	subtasks := make([]*models.Subtask, 0, len(payload.Subtasks))
	used := make(map[string]bool, len(payload.Subtasks))
	for _, ps := range payload.Subtasks {
		id := uuid.New().String()
		if ps.Ref != "" {
			id = idMap[ps.Ref]
			if used[id] {
				// Duplicate ref; keep the first.
				continue
			}
			used[id] = true
		}

		st := &models.Subtask{
			ID:                id,
			Title:             ps.Title,
			Description:       ps.Description,
			Type:              ps.Type,
			Complexity:        ps.Complexity,
			EstimatedTokens:   ps.EstimatedTokens,
			EstimatedDuration: ps.EstimatedDuration,
			Priority:          ps.Priority,
			Status:            models.SubtaskStatusPending,
			Tags:              append([]string(nil), ps.Tags...),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if ps.ParentRef != "" && ps.ParentRef != ps.Ref {
			st.ParentID = idMap[ps.ParentRef]
		}
		if ps.Parallelizable != nil {
			st.Parallelizable = models.Bool(*ps.Parallelizable)
		}
		for _, ref := range ps.Dependencies {
			if depID, ok := idMap[ref]; ok {
				st.Dependencies = append(st.Dependencies, depID)
			}
		}
		subtasks = append(subtasks, st)
	}
	return subtasks
}

// Persist stores tree as a new pattern with an initial success rate of 1.0
// and returns the pattern ID.
func (b *Bridge) Persist(ctx context.Context, tree *models.DecompositionTree) (string, error) {
	if tree == nil || len(tree.Subtasks) == 0 {
		return "", fmt.Errorf("nothing to persist")
	}

	embedding, err := b.embedder.Embed(ctx, tree.Task)
	if err != nil {
		return "", fmt.Errorf("embed task: %w", err)
	}

	payload := FromTree(tree)
	payload.SuccessRate = 1.0
	payload.CreatedAt = b.now()

	id := uuid.New().String()
	if err := b.store.Upsert(ctx, id, embedding, payload); err != nil {
		return "", fmt.Errorf("upsert pattern: %w", err)
	}
	b.debugLog("[pattern] persisted %s (%d subtasks)", id, len(payload.Subtasks))
	return id, nil
}

// RecordOutcome feeds an execution outcome back into a stored pattern.
func (b *Bridge) RecordOutcome(ctx context.Context, patternID string, success bool) error {
	if patternID == "" {
		return nil
	}
	if err := b.store.RecordOutcome(ctx, patternID, success); err != nil {
		return fmt.Errorf("record outcome for %s: %w", patternID, err)
	}
	return nil
}

// List returns stored patterns, most recently updated first.
func (b *Bridge) List(ctx context.Context, limit int) ([]Match, error) {
	return b.store.List(ctx, limit)
}
