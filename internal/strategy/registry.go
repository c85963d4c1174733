package strategy

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// DefaultMinScore is the keyword hit count a strategy needs to beat the fallback.
const DefaultMinScore = 2

// Selection is the outcome of scoring a task against the registry.
type Selection struct {
	// Strategy is the chosen strategy.
	Strategy Strategy
	// Score is the number of keyword hits for the chosen strategy.
	Score int
	// Rationale explains why this strategy was selected.
	Rationale string
	// MatchedKeywords lists the keywords found in the task text.
	MatchedKeywords []string
}

// Registry maps strategy names to implementations. Registration order breaks
// score ties.
type Registry struct {
	order    []models.Strategy
	byName   map[models.Strategy]Strategy
	fallback models.Strategy
	minScore int
}

// NewRegistry creates a registry holding the given strategies. The hybrid
// strategy is the fallback if registered.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{
		byName:   make(map[models.Strategy]Strategy, len(strategies)),
		fallback: models.StrategyHybrid,
		minScore: DefaultMinScore,
	}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// DefaultRegistry returns a registry with the five built-in strategies.
func DefaultRegistry() *Registry {
	return NewRegistry(Functional(), DataFlow(), Architectural(), Temporal(), Hybrid())
}

// Register adds or replaces a strategy. Replacing keeps the original position.
func (r *Registry) Register(s Strategy) {
	if s == nil {
		return
	}
	if _, exists := r.byName[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.byName[s.Name()] = s
}

// SetMinScore sets the minimum keyword hit count required to avoid the fallback.
func (r *Registry) SetMinScore(n int) {
	if n > 0 {
		r.minScore = n
	}
}

// SetFallback sets the strategy used when nothing scores high enough.
func (r *Registry) SetFallback(name models.Strategy) error {
	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("unknown strategy %q", name)
	}
	r.fallback = name
	return nil
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name models.Strategy) (Strategy, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names returns registered strategy names in registration order.
func (r *Registry) Names() []models.Strategy {
	return append([]models.Strategy(nil), r.order...)
}

// Select scores every registered strategy by keyword hits in task and returns
// the highest scorer. If no strategy reaches the minimum score, the fallback is
// returned.
func (r *Registry) Select(task string) Selection {
	text := normalize(task)

	var best Selection
	for _, name := range r.order {
		s := r.byName[name]
		var matched []string
		for _, kw := range s.Keywords() {
			if containsWord(text, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > best.Score {
			best = Selection{Strategy: s, Score: len(matched), MatchedKeywords: matched}
		}
	}

	if best.Strategy != nil && best.Score >= r.minScore {
		best.Rationale = fmt.Sprintf("%s: matched %s", best.Strategy.Rationale(), strings.Join(best.MatchedKeywords, ", "))
		return best
	}

	fallback := r.byName[r.fallback]
	if fallback == nil {
		fallback = Hybrid()
	}
	return Selection{
		Strategy:  fallback,
		Score:     best.Score,
		Rationale: fmt.Sprintf("no strategy scored at least %d, defaulting to %s", r.minScore, fallback.Name()),
	}
}

// normalize lower-cases text and collapses every run of non-alphanumeric
// characters into a single space, padded on both ends.
func normalize(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(fields, " ") + " "
}

// containsWord matches kw on word boundaries within normalized text.
func containsWord(normalized, kw string) bool {
	kw = strings.TrimSpace(normalize(kw))
	if kw == "" {
		return false
	}
	return strings.Contains(normalized, " "+kw+" ")
}
