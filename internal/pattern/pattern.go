// Package pattern stores successful decompositions and finds them again by
// similarity of the originating task text.
package pattern

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// ErrNotFound is returned when a pattern ID does not exist.
var ErrNotFound = errors.New("pattern not found")

// PatternSubtask is the reusable skeleton of one subtask. Ref is the subtask's
// ID in the tree it was captured from; Dependencies and ParentRef refer to
// other Refs in the same payload.
type PatternSubtask struct {
	Ref               string             `json:"ref"`
	ParentRef         string             `json:"parent_ref,omitempty"`
	Title             string             `json:"title"`
	Description       string             `json:"description,omitempty"`
	Type              models.SubtaskType `json:"type"`
	Complexity        models.Complexity  `json:"complexity"`
	EstimatedTokens   int64              `json:"estimated_tokens"`
	EstimatedDuration int                `json:"estimated_duration,omitempty"`
	Priority          int                `json:"priority"`
	Parallelizable    *bool              `json:"parallelizable,omitempty"`
	Dependencies      []string           `json:"dependencies,omitempty"`
	Tags              []string           `json:"tags,omitempty"`
}

// Payload is what the store keeps per pattern.
type Payload struct {
	Task        string           `json:"task"`
	Strategy    models.Strategy  `json:"strategy"`
	Subtasks    []PatternSubtask `json:"subtasks"`
	SuccessRate float64          `json:"success_rate"`
	UsageCount  int              `json:"usage_count"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// EdgeCount returns the number of dependency references in the payload.
func (p Payload) EdgeCount() int {
	n := 0
	for _, st := range p.Subtasks {
		n += len(st.Dependencies)
	}
	return n
}

// Match is a search hit.
type Match struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// Store is a similarity store for decomposition patterns.
type Store interface {
	// Search returns up to limit patterns ordered by descending similarity.
	Search(ctx context.Context, embedding []float32, limit int) ([]Match, error)
	// Upsert inserts or replaces the pattern stored under id.
	Upsert(ctx context.Context, id string, embedding []float32, payload Payload) error
	// Get returns a single pattern, or ErrNotFound.
	Get(ctx context.Context, id string) (*Match, error)
	// List returns up to limit patterns, most recently updated first.
	List(ctx context.Context, limit int) ([]Match, error)
	// RecordOutcome folds one execution outcome into the pattern's success rate.
	RecordOutcome(ctx context.Context, id string, success bool) error
}

// FromTree captures the reusable skeleton of a tree, in execution order.
func FromTree(tree *models.DecompositionTree) Payload {
	list := tree.SubtaskList()
	// Subtasks not reachable through ExecutionOrder are still captured.
	if len(list) < len(tree.Subtasks) {
		seen := make(map[string]bool, len(list))
		for _, st := range list {
			seen[st.ID] = true
		}
		for _, st := range tree.Subtasks {
			if !seen[st.ID] {
				list = append(list, st)
			}
		}
	}

	subtasks := make([]PatternSubtask, 0, len(list))
	for _, st := range list {
		ps := PatternSubtask{
			Ref:               st.ID,
			ParentRef:         st.ParentID,
			Title:             st.Title,
			Description:       st.Description,
			Type:              st.Type,
			Complexity:        st.Complexity,
			EstimatedTokens:   st.EstimatedTokens,
			EstimatedDuration: st.EstimatedDuration,
			Priority:          st.Priority,
			Dependencies:      append([]string(nil), st.Dependencies...),
			Tags:              append([]string(nil), st.Tags...),
		}
		if st.Parallelizable != nil {
			ps.Parallelizable = models.Bool(*st.Parallelizable)
		}
		subtasks = append(subtasks, ps)
	}

	return Payload{
		Task:     tree.Task,
		Strategy: tree.Strategy,
		Subtasks: subtasks,
	}
}

// Cosine returns the cosine similarity of a and b, or 0 if their lengths
// differ or either is a zero vector.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// foldOutcome updates a running success rate. The rate a pattern is created
// with counts as one observation.
func foldOutcome(p *Payload, success bool) {
	samples := float64(p.UsageCount + 1)
	v := 0.0
	if success {
		v = 1
	}
	p.SuccessRate = (p.SuccessRate*samples + v) / (samples + 1)
	p.UsageCount++
}
