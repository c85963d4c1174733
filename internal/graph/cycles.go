package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// ErrCyclesPersist indicates the graph was still cyclic after the allowed repair passes.
var ErrCyclesPersist = errors.New("dependency cycles persist after repair")

// DefaultMaxRepairPasses bounds RepairCycles when no explicit limit is given.
const DefaultMaxRepairPasses = 5

// CycleBreakResult reports the outcome of a single BreakCycles pass.
type CycleBreakResult struct {
	// Modified is true if any dependency list was changed.
	Modified bool
	// BrokenEdges lists the removed edges (From depended on To).
	BrokenEdges []models.DependencyEdge
}

// RepairResult reports the outcome of RepairCycles.
type RepairResult struct {
	// Passes is the number of BreakCycles passes applied.
	Passes int
	// BrokenEdges lists every removed edge across all passes.
	BrokenEdges []models.DependencyEdge
}

// DetectCycles returns every cycle found by depth-first traversal over the
// dependency -> dependent direction. Each cycle is the recursion stack slice
// from the revisited node, closed by repeating that node.
func DetectCycles(subtasks []*models.Subtask) [][]string {
	return buildIndex(subtasks).detectCycles()
}

func (idx *index) detectCycles() [][]string {
	// Color states: 0 = white (unvisited), 1 = gray (on stack), 2 = black (done).
	colors := make(map[string]int, len(idx.order))
	var stack []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		colors[id] = 1
		stack = append(stack, id)

		for _, next := range idx.dependents[id] {
			switch colors[next] {
			case 1:
				// Back edge: capture the stack from next plus the closing edge.
				start := len(stack) - 1
				for start >= 0 && stack[start] != next {
					start--
				}
				cycle := append([]string(nil), stack[start:]...)
				cycle = append(cycle, next)
				cycles = append(cycles, cycle)
			case 0:
				visit(next)
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
	}

	for _, id := range idx.order {
		if colors[id] == 0 {
			visit(id)
		}
	}
	return cycles
}

// BreakCycles removes exactly one edge per detected cycle: the edge whose
// endpoints have the smallest absolute priority difference. The dependency
// list of the dependent endpoint is mutated in place. A cycle that was already
// broken by an earlier removal in the same pass is left alone.
func BreakCycles(subtasks []*models.Subtask) CycleBreakResult {
	idx := buildIndex(subtasks)
	cycles := idx.detectCycles()

	var result CycleBreakResult
	removed := make(map[[2]string]bool)

	for _, cycle := range cycles {
		alreadyBroken := false
		for i := 0; i+1 < len(cycle); i++ {
			if removed[[2]string{cycle[i+1], cycle[i]}] {
				alreadyBroken = true
				break
			}
		}
		if alreadyBroken {
			continue
		}

		// cycle[i] -> cycle[i+1] means cycle[i+1] depends on cycle[i].
		bestFrom, bestTo := "", ""
		bestDiff := -1
		for i := 0; i+1 < len(cycle); i++ {
			dependency, dependent := cycle[i], cycle[i+1]
			diff := idx.nodes[dependent].Priority - idx.nodes[dependency].Priority
			if diff < 0 {
				diff = -diff
			}
			if bestDiff == -1 || diff < bestDiff {
				bestDiff = diff
				bestFrom, bestTo = dependent, dependency
			}
		}
		if bestFrom == "" {
			continue
		}

		if idx.nodes[bestFrom].RemoveDependency(bestTo) {
			// Drop duplicates of the same reference too.
			for idx.nodes[bestFrom].RemoveDependency(bestTo) {
			}
			removed[[2]string{bestFrom, bestTo}] = true
			result.Modified = true
			result.BrokenEdges = append(result.BrokenEdges, models.DependencyEdge{
				From: bestFrom,
				To:   bestTo,
				Kind: models.EdgeHard,
			})
		}
	}

	return result
}

// RepairCycles applies BreakCycles until the graph is acyclic or maxPasses is
// reached. If cycles remain, the returned error wraps ErrCyclesPersist.
func RepairCycles(subtasks []*models.Subtask, maxPasses int) (RepairResult, error) {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxRepairPasses
	}

	var result RepairResult
	for result.Passes < maxPasses {
		if len(DetectCycles(subtasks)) == 0 {
			return result, nil
		}
		pass := BreakCycles(subtasks)
		result.Passes++
		result.BrokenEdges = append(result.BrokenEdges, pass.BrokenEdges...)
		if !pass.Modified {
			break
		}
	}

	if remaining := DetectCycles(subtasks); len(remaining) > 0 {
		return result, fmt.Errorf("%w: %d pass(es), remaining: %s", ErrCyclesPersist, result.Passes, formatCycles(remaining))
	}
	return result, nil
}

func formatCycles(cycles [][]string) string {
	parts := make([]string, len(cycles))
	for i, cycle := range cycles {
		parts[i] = strings.Join(cycle, " -> ")
	}
	return strings.Join(parts, "; ")
}
