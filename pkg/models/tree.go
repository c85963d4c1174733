package models

import "time"

// Strategy names a decomposition approach.
type Strategy string

const (
	StrategyFunctional    Strategy = "functional"
	StrategyDataFlow      Strategy = "data_flow"
	StrategyArchitectural Strategy = "architectural"
	StrategyTemporal      Strategy = "temporal"
	StrategyHybrid        Strategy = "hybrid"
)

// EdgeKind classifies a dependency edge. Only hard edges constrain scheduling.
type EdgeKind string

const (
	EdgeHard     EdgeKind = "hard"
	EdgeSoft     EdgeKind = "soft"
	EdgeOptional EdgeKind = "optional"
)

// DependencyEdge is a directed pair: From depends on To.
type DependencyEdge struct {
	From string   `json:"from" yaml:"from"`
	To   string   `json:"to" yaml:"to"`
	Kind EdgeKind `json:"kind" yaml:"kind"`
}

// DependencyGraph is the derived scheduling view over a subtask set.
// It is recomputed whenever the subtask set changes and never mutated incrementally.
type DependencyGraph struct {
	// Edges lists every dependency edge.
	Edges []DependencyEdge `json:"edges" yaml:"edges"`
	// Stages are ordered ID lists; stage 0 has no unresolved hard dependencies.
	Stages [][]string `json:"stages" yaml:"stages"`
	// Cycles are the cycles detected before any repair.
	Cycles [][]string `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	// ParallelGroups are within-stage subsets that may run concurrently.
	ParallelGroups [][]string `json:"parallel_groups,omitempty" yaml:"parallel_groups,omitempty"`
	// CriticalPath is the highest cumulative-cost chain from a root to a terminal node.
	CriticalPath []string `json:"critical_path" yaml:"critical_path"`
	// CriticalPathCost is the summed estimated tokens along CriticalPath.
	CriticalPathCost int64 `json:"critical_path_cost" yaml:"critical_path_cost"`
	// MaxParallelism is the size of the widest stage.
	MaxParallelism int `json:"max_parallelism" yaml:"max_parallelism"`
	// TotalStages is len(Stages).
	TotalStages int `json:"total_stages" yaml:"total_stages"`
}

// HasCycles reports whether cycles were detected.
func (g *DependencyGraph) HasCycles() bool {
	return g != nil && len(g.Cycles) > 0
}

// TreeMetadata records provenance for a decomposition.
type TreeMetadata struct {
	// PatternID is the matched pattern, if the tree was cloned.
	PatternID string `json:"pattern_id,omitempty" yaml:"pattern_id,omitempty"`
	// SavedPatternID is the pattern this tree was persisted as, if any.
	SavedPatternID string `json:"saved_pattern_id,omitempty" yaml:"saved_pattern_id,omitempty"`
	// PatternSimilarity is the similarity score of the matched pattern.
	PatternSimilarity float64 `json:"pattern_similarity,omitempty" yaml:"pattern_similarity,omitempty"`
	// GenerationLatency is how long decomposition took.
	GenerationLatency time.Duration `json:"generation_latency" yaml:"generation_latency"`
	// StrategyRationale explains the strategy choice.
	StrategyRationale string `json:"strategy_rationale,omitempty" yaml:"strategy_rationale,omitempty"`
	// RepairPasses is the number of cycle repair passes applied.
	RepairPasses int `json:"repair_passes,omitempty" yaml:"repair_passes,omitempty"`
	// TokensUsed is the reasoning cost spent producing the tree.
	TokensUsed int64 `json:"tokens_used,omitempty" yaml:"tokens_used,omitempty"`
}

// DecompositionTree is the root aggregate of a decomposition.
type DecompositionTree struct {
	ID                     string              `json:"id" yaml:"id"`
	Task                   string              `json:"task" yaml:"task"`
	Strategy               Strategy            `json:"strategy" yaml:"strategy"`
	Subtasks               map[string]*Subtask `json:"subtasks" yaml:"subtasks"`
	Graph                  *DependencyGraph    `json:"graph" yaml:"graph"`
	ExecutionOrder         []string            `json:"execution_order" yaml:"execution_order"`
	TotalEstimatedTokens   int64               `json:"total_estimated_tokens" yaml:"total_estimated_tokens"`
	TotalEstimatedDuration int                 `json:"total_estimated_duration" yaml:"total_estimated_duration"`
	MaxDepth               int                 `json:"max_depth" yaml:"max_depth"`
	Metadata               TreeMetadata        `json:"metadata" yaml:"metadata"`
	CreatedAt              time.Time           `json:"created_at" yaml:"created_at"`
}

// SubtaskList returns the subtasks in execution order.
// Subtasks missing from ExecutionOrder are omitted.
func (t *DecompositionTree) SubtaskList() []*Subtask {
	if t == nil {
		return nil
	}
	list := make([]*Subtask, 0, len(t.ExecutionOrder))
	for _, id := range t.ExecutionOrder {
		if st, ok := t.Subtasks[id]; ok {
			list = append(list, st)
		}
	}
	return list
}

// Depth computes the longest ParentID chain. A subtask without a resolvable
// parent has depth 1. Parent cycles are cut at the first repeated node.
func (t *DecompositionTree) Depth() int {
	if t == nil || len(t.Subtasks) == 0 {
		return 0
	}
	maxDepth := 0
	for id := range t.Subtasks {
		depth := 0
		seen := make(map[string]bool)
		for cur := id; cur != "" && !seen[cur]; {
			st, ok := t.Subtasks[cur]
			if !ok {
				break
			}
			seen[cur] = true
			depth++
			cur = st.ParentID
		}
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	return maxDepth
}

// EmptyTree returns a tree with no subtasks, used for failed decompositions.
func EmptyTree(task string) *DecompositionTree {
	return &DecompositionTree{
		Task:     task,
		Subtasks: map[string]*Subtask{},
		Graph:    &DependencyGraph{},
	}
}
