// Package graph provides dependency analysis for subtask scheduling.
package graph

import (
	"sort"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// Analyzer computes the scheduling view of a subtask set: stages, cycles,
// parallel groups and the critical path. It never fails; structurally invalid
// references are ignored here and reported by ValidateDependencies.
type Analyzer struct {
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new Analyzer.
func New() *Analyzer {
	return &Analyzer{
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (a *Analyzer) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		a.debugLog = fn
	}
}

// index is an adjacency view over a subtask slice.
type index struct {
	// order preserves input order for deterministic traversal.
	order []string
	nodes map[string]*models.Subtask
	pos   map[string]int
	// deps maps subtask ID to resolved hard dependency IDs (no self or dangling refs).
	deps map[string][]string
	// dependents maps dependency ID to the IDs that depend on it.
	dependents map[string][]string
}

func buildIndex(subtasks []*models.Subtask) *index {
	idx := &index{
		nodes:      make(map[string]*models.Subtask, len(subtasks)),
		pos:        make(map[string]int, len(subtasks)),
		deps:       make(map[string][]string, len(subtasks)),
		dependents: make(map[string][]string, len(subtasks)),
	}

	// First pass: register nodes. The first occurrence of an ID wins.
	for _, st := range subtasks {
		if st == nil {
			continue
		}
		if _, exists := idx.nodes[st.ID]; exists {
			continue
		}
		idx.pos[st.ID] = len(idx.order)
		idx.order = append(idx.order, st.ID)
		idx.nodes[st.ID] = st
	}

	// Second pass: resolve hard edges.
	for _, id := range idx.order {
		seen := make(map[string]bool)
		for _, depID := range idx.nodes[id].Dependencies {
			if depID == id || seen[depID] {
				continue
			}
			if _, exists := idx.nodes[depID]; !exists {
				continue
			}
			seen[depID] = true
			idx.deps[id] = append(idx.deps[id], depID)
			idx.dependents[depID] = append(idx.dependents[depID], id)
		}
	}

	return idx
}

// Analyze builds the DependencyGraph for the given subtasks and writes each
// subtask's Stage field back.
func (a *Analyzer) Analyze(subtasks []*models.Subtask) *models.DependencyGraph {
	idx := buildIndex(subtasks)
	a.debugLog("[graph.Analyze] analyzing %d subtasks", len(idx.order))

	g := &models.DependencyGraph{
		Edges: idx.edges(),
	}

	g.Cycles = idx.detectCycles()
	if len(g.Cycles) > 0 {
		a.debugLog("[graph.Analyze] %d cycle(s) detected, falling back to depth leveling: %v", len(g.Cycles), g.Cycles)
		g.Stages = idx.levelStages()
	} else {
		g.Stages = idx.layerStages()
	}

	for stage, ids := range g.Stages {
		for _, id := range ids {
			idx.nodes[id].Stage = stage
		}
		if len(ids) > g.MaxParallelism {
			g.MaxParallelism = len(ids)
		}
	}
	g.TotalStages = len(g.Stages)
	g.ParallelGroups = idx.parallelGroups(g.Stages)
	g.CriticalPath, g.CriticalPathCost = idx.criticalPath()

	a.debugLog("[graph.Analyze] stages=%v critical_path=%v cost=%d", g.Stages, g.CriticalPath, g.CriticalPathCost)
	return g
}

// Analyze is a convenience wrapper around New().Analyze.
func Analyze(subtasks []*models.Subtask) *models.DependencyGraph {
	return New().Analyze(subtasks)
}

// edges lists hard edges followed by resolvable soft edges.
func (idx *index) edges() []models.DependencyEdge {
	var edges []models.DependencyEdge
	for _, id := range idx.order {
		for _, depID := range idx.deps[id] {
			edges = append(edges, models.DependencyEdge{From: id, To: depID, Kind: models.EdgeHard})
		}
		for _, depID := range idx.nodes[id].SoftDependencies {
			if _, ok := idx.nodes[depID]; ok && depID != id {
				edges = append(edges, models.DependencyEdge{From: id, To: depID, Kind: models.EdgeSoft})
			}
		}
	}
	return edges
}

// sortStage orders IDs by descending priority, then input order.
func (idx *index) sortStage(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		pi, pj := idx.nodes[ids[i]].Priority, idx.nodes[ids[j]].Priority
		if pi != pj {
			return pi > pj
		}
		return idx.pos[ids[i]] < idx.pos[ids[j]]
	})
}

// layerStages extracts stages by repeatedly removing nodes whose unresolved
// dependency count is zero. Only valid for acyclic graphs.
func (idx *index) layerStages() [][]string {
	remaining := make(map[string]int, len(idx.order))
	for _, id := range idx.order {
		remaining[id] = len(idx.deps[id])
	}

	var stages [][]string
	for len(remaining) > 0 {
		var current []string
		for _, id := range idx.order {
			if count, ok := remaining[id]; ok && count == 0 {
				current = append(current, id)
			}
		}
		if len(current) == 0 {
			// Unreachable for acyclic input; avoid spinning forever.
			break
		}
		idx.sortStage(current)
		stages = append(stages, current)

		for _, id := range current {
			delete(remaining, id)
			for _, dependent := range idx.dependents[id] {
				if _, ok := remaining[dependent]; ok {
					remaining[dependent]--
				}
			}
		}
	}
	return stages
}

// levelStages assigns each node level = 1 + max level of its dependencies,
// ignoring dependencies still being visited so cycles terminate.
func (idx *index) levelStages() [][]string {
	levels := make(map[string]int, len(idx.order))
	visiting := make(map[string]bool)

	var level func(id string) int
	level = func(id string) int {
		if l, ok := levels[id]; ok {
			return l
		}
		visiting[id] = true
		l := 0
		for _, depID := range idx.deps[id] {
			if visiting[depID] {
				continue
			}
			if dl := level(depID) + 1; dl > l {
				l = dl
			}
		}
		visiting[id] = false
		levels[id] = l
		return l
	}

	maxLevel := 0
	for _, id := range idx.order {
		if l := level(id); l > maxLevel {
			maxLevel = l
		}
	}

	buckets := make([][]string, maxLevel+1)
	for _, id := range idx.order {
		buckets[levels[id]] = append(buckets[levels[id]], id)
	}

	var stages [][]string
	for _, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		idx.sortStage(bucket)
		stages = append(stages, bucket)
	}
	return stages
}

// parallelGroups returns, per stage, the mutually independent members whose
// parallelizable flag is not explicitly false, when more than one exists.
func (idx *index) parallelGroups(stages [][]string) [][]string {
	var groups [][]string
	for _, stage := range stages {
		var group []string
		for _, id := range stage {
			if !idx.nodes[id].IsParallelizable() {
				continue
			}
			independent := true
			for _, member := range group {
				if idx.linked(id, member) {
					independent = false
					break
				}
			}
			if independent {
				group = append(group, id)
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// linked reports whether a hard edge exists between a and b in either direction.
func (idx *index) linked(a, b string) bool {
	for _, dep := range idx.deps[a] {
		if dep == b {
			return true
		}
	}
	for _, dep := range idx.deps[b] {
		if dep == a {
			return true
		}
	}
	return false
}
