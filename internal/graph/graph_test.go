package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ShayCichocki/decomp/pkg/models"
)

func subtask(id string, cost int64, deps ...string) *models.Subtask {
	return &models.Subtask{
		ID:              id,
		Title:           "Subtask " + id,
		EstimatedTokens: cost,
		Dependencies:    deps,
		Status:          models.SubtaskStatusPending,
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	g := Analyze(nil)
	if g == nil {
		t.Fatal("expected non-nil graph")
	}
	if g.TotalStages != 0 {
		t.Errorf("expected 0 stages, got %d", g.TotalStages)
	}
	if len(g.CriticalPath) != 0 {
		t.Errorf("expected empty critical path, got %v", g.CriticalPath)
	}
}

func TestAnalyzeDiamondStages(t *testing.T) {
	// T1, T2 independent; T3 -> T1; T4 -> T2; T5 -> T3, T4.
	subtasks := []*models.Subtask{
		subtask("T1", 100),
		subtask("T2", 100),
		subtask("T3", 100, "T1"),
		subtask("T4", 100, "T2"),
		subtask("T5", 100, "T3", "T4"),
	}

	g := Analyze(subtasks)

	want := [][]string{{"T1", "T2"}, {"T3", "T4"}, {"T5"}}
	if !reflect.DeepEqual(g.Stages, want) {
		t.Errorf("Stages = %v, want %v", g.Stages, want)
	}
	if g.TotalStages != 3 {
		t.Errorf("TotalStages = %d, want 3", g.TotalStages)
	}
	if g.MaxParallelism != 2 {
		t.Errorf("MaxParallelism = %d, want 2", g.MaxParallelism)
	}
	if len(g.Cycles) != 0 {
		t.Errorf("expected no cycles, got %v", g.Cycles)
	}

	// Stage is written back.
	wantStage := map[string]int{"T1": 0, "T2": 0, "T3": 1, "T4": 1, "T5": 2}
	for _, st := range subtasks {
		if st.Stage != wantStage[st.ID] {
			t.Errorf("subtask %s stage = %d, want %d", st.ID, st.Stage, wantStage[st.ID])
		}
	}
}

func TestAnalyzeDependencyStageOrdering(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("a", 10),
		subtask("b", 10, "a"),
		subtask("c", 10, "a"),
		subtask("d", 10, "b", "c"),
		subtask("e", 10, "a", "d"),
		subtask("f", 10),
		subtask("g", 10, "f", "c"),
	}

	Analyze(subtasks)

	byID := make(map[string]*models.Subtask)
	for _, st := range subtasks {
		byID[st.ID] = st
	}
	for _, st := range subtasks {
		for _, dep := range st.Dependencies {
			if byID[dep].Stage >= st.Stage {
				t.Errorf("dependency %s (stage %d) not before %s (stage %d)", dep, byID[dep].Stage, st.ID, st.Stage)
			}
		}
	}
}

func TestAnalyzePriorityTieBreak(t *testing.T) {
	low := subtask("low", 10)
	low.Priority = 1
	high := subtask("high", 10)
	high.Priority = 5
	mid := subtask("mid", 10)
	mid.Priority = 3

	g := Analyze([]*models.Subtask{low, high, mid})

	want := [][]string{{"high", "mid", "low"}}
	if !reflect.DeepEqual(g.Stages, want) {
		t.Errorf("Stages = %v, want %v", g.Stages, want)
	}
}

func TestAnalyzeIgnoresDanglingAndSelfReferences(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("a", 10, "missing"),
		subtask("b", 10, "b", "a"),
	}

	g := Analyze(subtasks)

	want := [][]string{{"a"}, {"b"}}
	if !reflect.DeepEqual(g.Stages, want) {
		t.Errorf("Stages = %v, want %v", g.Stages, want)
	}
	if len(g.Cycles) != 0 {
		t.Errorf("self reference should not be reported as cycle, got %v", g.Cycles)
	}
}

func TestAnalyzeEdges(t *testing.T) {
	b := subtask("b", 10, "a")
	b.SoftDependencies = []string{"c", "unknown"}
	subtasks := []*models.Subtask{subtask("a", 10), b, subtask("c", 10)}

	g := Analyze(subtasks)

	want := []models.DependencyEdge{
		{From: "b", To: "a", Kind: models.EdgeHard},
		{From: "b", To: "c", Kind: models.EdgeSoft},
	}
	if !reflect.DeepEqual(g.Edges, want) {
		t.Errorf("Edges = %v, want %v", g.Edges, want)
	}
	// Soft edges never constrain scheduling.
	if b.Stage != 1 {
		t.Errorf("b stage = %d, want 1", b.Stage)
	}
}

func TestAnalyzeCriticalPathChain(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("T1", 100),
		subtask("T2", 200, "T1"),
		subtask("T3", 300, "T2"),
	}

	g := Analyze(subtasks)

	want := []string{"T1", "T2", "T3"}
	if !reflect.DeepEqual(g.CriticalPath, want) {
		t.Errorf("CriticalPath = %v, want %v", g.CriticalPath, want)
	}
	if g.CriticalPathCost != 600 {
		t.Errorf("CriticalPathCost = %d, want 600", g.CriticalPathCost)
	}
}

func TestCriticalPathPicksMostExpensiveBranch(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("root", 10),
		subtask("cheap", 5, "root"),
		subtask("pricey", 500, "root"),
		subtask("other-root", 400),
		subtask("leaf", 1, "cheap", "pricey"),
	}

	path, cost := CriticalPath(subtasks)

	want := []string{"root", "pricey", "leaf"}
	if !reflect.DeepEqual(path, want) {
		t.Errorf("path = %v, want %v", path, want)
	}
	if cost != 511 {
		t.Errorf("cost = %d, want 511", cost)
	}
}

func TestCriticalPathReachesTerminalWithZeroCosts(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("a", 0),
		subtask("b", 0, "a"),
		subtask("c", 0, "b"),
	}

	path, cost := CriticalPath(subtasks)
	if len(path) != 3 || path[2] != "c" {
		t.Errorf("path = %v, want chain ending at c", path)
	}
	if cost != 0 {
		t.Errorf("cost = %d, want 0", cost)
	}
}

func TestParallelGroups(t *testing.T) {
	serial := subtask("serial", 10)
	serial.Parallelizable = models.Bool(false)
	subtasks := []*models.Subtask{
		subtask("a", 10),
		subtask("b", 10),
		serial,
		subtask("c", 10, "a"),
	}

	g := Analyze(subtasks)

	want := [][]string{{"a", "b"}}
	if !reflect.DeepEqual(g.ParallelGroups, want) {
		t.Errorf("ParallelGroups = %v, want %v", g.ParallelGroups, want)
	}
}

func TestDetectCyclesDirect(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("A", 10, "B"),
		subtask("B", 10, "A"),
	}

	cycles := DetectCycles(subtasks)
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %v", cycles)
	}
	cycle := cycles[0]
	if cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("cycle should be closed, got %v", cycle)
	}
	if len(cycle) != 3 {
		t.Errorf("expected closed 2-cycle of length 3, got %v", cycle)
	}
}

func TestAnalyzeCyclicFallsBackToLeveling(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("start", 10),
		subtask("A", 10, "start", "C"),
		subtask("B", 10, "A"),
		subtask("C", 10, "B"),
	}

	g := Analyze(subtasks)

	if len(g.Cycles) == 0 {
		t.Fatal("expected cycle to be reported")
	}
	placed := 0
	for _, stage := range g.Stages {
		placed += len(stage)
	}
	if placed != len(subtasks) {
		t.Errorf("expected every subtask staged, got %d of %d", placed, len(subtasks))
	}
	if g.Stages[0][0] != "start" {
		t.Errorf("expected start in stage 0, got %v", g.Stages)
	}
}

func TestValidateDependenciesReportsAll(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("a", 10, "a", "ghost-1"),
		subtask("b", 10, "a", "ghost-2"),
		subtask("c", 10, "c"),
	}

	result := ValidateDependencies(subtasks)

	if result.Valid {
		t.Fatal("expected invalid result")
	}
	want := []DependencyError{
		{SubtaskID: "a", DependencyID: "a", Kind: DependencySelf},
		{SubtaskID: "a", DependencyID: "ghost-1", Kind: DependencyMissing},
		{SubtaskID: "b", DependencyID: "ghost-2", Kind: DependencyMissing},
		{SubtaskID: "c", DependencyID: "c", Kind: DependencySelf},
	}
	if !reflect.DeepEqual(result.Errors, want) {
		t.Errorf("Errors = %v, want %v", result.Errors, want)
	}
	if len(result.Messages()) != 4 {
		t.Errorf("expected 4 messages, got %d", len(result.Messages()))
	}
}

func TestValidateDependenciesValid(t *testing.T) {
	result := ValidateDependencies([]*models.Subtask{subtask("a", 1), subtask("b", 1, "a")})
	if !result.Valid || len(result.Errors) != 0 {
		t.Errorf("expected valid result, got %+v", result)
	}
}

func TestRemoveInvalidDependencies(t *testing.T) {
	b := subtask("b", 10, "a", "b", "ghost", "a")
	subtasks := []*models.Subtask{subtask("a", 10), b}

	removed := RemoveInvalidDependencies(subtasks)

	if len(removed) != 2 {
		t.Errorf("expected 2 removed references, got %v", removed)
	}
	if !reflect.DeepEqual(b.Dependencies, []string{"a"}) {
		t.Errorf("Dependencies = %v, want [a]", b.Dependencies)
	}
}

func TestBreakCyclesRemovesSmallestPriorityGap(t *testing.T) {
	a := subtask("A", 10, "C")
	a.Priority = 10
	b := subtask("B", 10, "A")
	b.Priority = 1
	c := subtask("C", 10, "B")
	c.Priority = 2
	subtasks := []*models.Subtask{a, b, c}

	result := BreakCycles(subtasks)

	if !result.Modified {
		t.Fatal("expected modification")
	}
	// Priority gaps: A-B 9, B-C 1, C-A 8. C depends on B is removed.
	want := []models.DependencyEdge{{From: "C", To: "B", Kind: models.EdgeHard}}
	if !reflect.DeepEqual(result.BrokenEdges, want) {
		t.Errorf("BrokenEdges = %v, want %v", result.BrokenEdges, want)
	}
	if len(c.Dependencies) != 0 {
		t.Errorf("C dependencies = %v, want none", c.Dependencies)
	}

	g := Analyze(subtasks)
	if len(g.Cycles) != 0 {
		t.Errorf("expected zero cycles after breaking, got %v", g.Cycles)
	}
}

func TestBreakCyclesNoCycles(t *testing.T) {
	result := BreakCycles([]*models.Subtask{subtask("a", 1), subtask("b", 1, "a")})
	if result.Modified || len(result.BrokenEdges) != 0 {
		t.Errorf("expected no changes, got %+v", result)
	}
}

func TestRepairCyclesInterlocking(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("a", 1, "d"),
		subtask("b", 1, "a", "d"),
		subtask("c", 1, "b", "a"),
		subtask("d", 1, "c", "b"),
	}

	result, err := RepairCycles(subtasks, 10)
	if err != nil {
		t.Fatalf("RepairCycles failed: %v", err)
	}
	if result.Passes == 0 || len(result.BrokenEdges) == 0 {
		t.Errorf("expected at least one repair, got %+v", result)
	}
	if cycles := DetectCycles(subtasks); len(cycles) != 0 {
		t.Errorf("expected acyclic graph, got %v", cycles)
	}
}

func TestRepairCyclesPassLimit(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("a", 1, "d"),
		subtask("b", 1, "a", "d"),
		subtask("c", 1, "b", "a"),
		subtask("d", 1, "c", "b", "a"),
	}

	_, err := RepairCycles(subtasks, 1)
	if err == nil {
		if cycles := DetectCycles(subtasks); len(cycles) != 0 {
			t.Fatalf("expected error when cycles remain, got nil with cycles %v", cycles)
		}
		return
	}
	if !errors.Is(err, ErrCyclesPersist) {
		t.Errorf("expected ErrCyclesPersist, got %v", err)
	}
}

func TestAnalyzerDebugLog(t *testing.T) {
	var lines int
	a := New()
	a.SetDebugLog(func(format string, args ...interface{}) { lines++ })
	a.Analyze([]*models.Subtask{subtask("a", 1)})
	if lines == 0 {
		t.Error("expected debug log output")
	}
}
