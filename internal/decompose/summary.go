package decompose

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// Summary holds aggregate statistics for a decomposition tree.
type Summary struct {
	TotalSubtasks          int                        `json:"total_subtasks" yaml:"total_subtasks"`
	ByType                 map[models.SubtaskType]int `json:"by_type" yaml:"by_type"`
	ByComplexity           map[models.Complexity]int  `json:"by_complexity" yaml:"by_complexity"`
	StageCount             int                        `json:"stage_count" yaml:"stage_count"`
	MaxParallelism         int                        `json:"max_parallelism" yaml:"max_parallelism"`
	ParallelGroups         int                        `json:"parallel_groups" yaml:"parallel_groups"`
	CriticalPathLength     int                        `json:"critical_path_length" yaml:"critical_path_length"`
	CriticalPathTokens     int64                      `json:"critical_path_tokens" yaml:"critical_path_tokens"`
	TotalEstimatedTokens   int64                      `json:"total_estimated_tokens" yaml:"total_estimated_tokens"`
	TotalEstimatedDuration int                        `json:"total_estimated_duration" yaml:"total_estimated_duration"`
	MaxDepth               int                        `json:"max_depth" yaml:"max_depth"`
	FromPattern            bool                       `json:"from_pattern" yaml:"from_pattern"`
}

// Summarize computes statistics for tree.
func Summarize(tree *models.DecompositionTree) Summary {
	s := Summary{
		ByType:       make(map[models.SubtaskType]int),
		ByComplexity: make(map[models.Complexity]int),
	}
	if tree == nil {
		return s
	}

	for _, st := range tree.Subtasks {
		s.TotalSubtasks++
		s.ByType[st.Type]++
		s.ByComplexity[st.Complexity]++
	}
	s.TotalEstimatedTokens = tree.TotalEstimatedTokens
	s.TotalEstimatedDuration = tree.TotalEstimatedDuration
	s.MaxDepth = tree.MaxDepth
	s.FromPattern = tree.Metadata.PatternID != ""

	if g := tree.Graph; g != nil {
		s.StageCount = g.TotalStages
		s.MaxParallelism = g.MaxParallelism
		s.ParallelGroups = len(g.ParallelGroups)
		s.CriticalPathLength = len(g.CriticalPath)
		s.CriticalPathTokens = g.CriticalPathCost
	}
	return s
}

// String renders a one-line summary.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d subtasks in %d stages (max parallelism %d)", s.TotalSubtasks, s.StageCount, s.MaxParallelism)
	fmt.Fprintf(&b, ", critical path %d subtasks / %d tokens", s.CriticalPathLength, s.CriticalPathTokens)
	fmt.Fprintf(&b, ", estimated %d tokens / %d min", s.TotalEstimatedTokens, s.TotalEstimatedDuration)
	if s.FromPattern {
		b.WriteString(" (from pattern)")
	}
	return b.String()
}
