package graph

import "github.com/ShayCichocki/decomp/pkg/models"

// CriticalPath returns the chain of subtask IDs with the highest cumulative
// estimated cost from a dependency-free subtask to a terminal one, and that cost.
func CriticalPath(subtasks []*models.Subtask) ([]string, int64) {
	return buildIndex(subtasks).criticalPath()
}

// criticalPath runs a memoized longest-path search along dependency -> dependent
// edges from every root. If every node has a dependency (a fully cyclic graph),
// every node is tried as a start.
func (idx *index) criticalPath() ([]string, int64) {
	if len(idx.order) == 0 {
		return nil, 0
	}

	best := make(map[string]int64, len(idx.order))
	next := make(map[string]string, len(idx.order))
	done := make(map[string]bool, len(idx.order))
	visiting := make(map[string]bool)

	var score func(id string) int64
	score = func(id string) int64 {
		if done[id] {
			return best[id]
		}
		visiting[id] = true

		var bestChild string
		var bestChildScore int64
		for _, child := range idx.dependents[id] {
			if visiting[child] {
				continue
			}
			s := score(child)
			if bestChild == "" || s > bestChildScore {
				bestChild, bestChildScore = child, s
			}
		}

		visiting[id] = false
		done[id] = true
		best[id] = idx.nodes[id].EstimatedTokens + bestChildScore
		next[id] = bestChild
		return best[id]
	}

	var roots []string
	for _, id := range idx.order {
		if len(idx.deps[id]) == 0 {
			roots = append(roots, id)
		}
	}
	if len(roots) == 0 {
		roots = idx.order
	}

	var start string
	var startScore int64
	for _, id := range roots {
		if s := score(id); start == "" || s > startScore {
			start, startScore = id, s
		}
	}

	var path []string
	seen := make(map[string]bool)
	for cur := start; cur != "" && !seen[cur]; cur = next[cur] {
		seen[cur] = true
		path = append(path, cur)
	}
	return path, startScore
}
