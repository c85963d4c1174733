package models

import (
	"testing"
)

func TestSubtaskStatus(t *testing.T) {
	tests := []struct {
		status   SubtaskStatus
		valid    bool
		terminal bool
	}{
		{SubtaskStatusPending, true, false},
		{SubtaskStatusBlocked, true, false},
		{SubtaskStatusReady, true, false},
		{SubtaskStatusInProgress, true, false},
		{SubtaskStatusComplete, true, true},
		{SubtaskStatusFailed, true, true},
		{SubtaskStatusSkipped, true, true},
		{SubtaskStatus("running"), false, false},
		{SubtaskStatus(""), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestParseSubtaskType(t *testing.T) {
	tests := []struct {
		input    string
		expected SubtaskType
	}{
		{"feature", SubtaskTypeFeature},
		{"  Feature ", SubtaskTypeFeature},
		{"tests", SubtaskTypeTesting},
		{"docs", SubtaskTypeDocumentation},
		{"config", SubtaskTypeConfiguration},
		{"infra", SubtaskTypeInfrastructure},
		{"API", SubtaskTypeAPI},
		{"ui", SubtaskTypeUI},
		{"something-else", SubtaskTypeOther},
		{"", SubtaskTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseSubtaskType(tt.input); got != tt.expected {
				t.Errorf("ParseSubtaskType(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestComplexity(t *testing.T) {
	tests := []struct {
		input    string
		expected Complexity
		weight   int
		tokens   int64
	}{
		{"trivial", ComplexityTrivial, 1, 1000},
		{"Simple", ComplexitySimple, 2, 2500},
		{"moderate", ComplexityModerate, 3, 5000},
		{"complex", ComplexityComplex, 4, 10000},
		{"EXTREME", ComplexityExtreme, 5, 20000},
		{"medium", ComplexityModerate, 3, 5000},
		{"", ComplexityModerate, 3, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := ParseComplexity(tt.input)
			if c != tt.expected {
				t.Fatalf("ParseComplexity(%q) = %q, want %q", tt.input, c, tt.expected)
			}
			if c.Weight() != tt.weight {
				t.Errorf("Weight() = %d, want %d", c.Weight(), tt.weight)
			}
			if c.DefaultTokens() != tt.tokens {
				t.Errorf("DefaultTokens() = %d, want %d", c.DefaultTokens(), tt.tokens)
			}
			if c.DefaultDuration() != tt.weight*5 {
				t.Errorf("DefaultDuration() = %d, want %d", c.DefaultDuration(), tt.weight*5)
			}
		})
	}
}

func TestSubtaskIsParallelizable(t *testing.T) {
	if !(&Subtask{}).IsParallelizable() {
		t.Error("nil flag should mean parallelizable")
	}
	if !(&Subtask{Parallelizable: Bool(true)}).IsParallelizable() {
		t.Error("explicit true should be parallelizable")
	}
	if (&Subtask{Parallelizable: Bool(false)}).IsParallelizable() {
		t.Error("explicit false should not be parallelizable")
	}
}

func TestSubtaskDependencies(t *testing.T) {
	st := &Subtask{ID: "c", Dependencies: []string{"a", "b"}}

	if !st.DependsOn("a") || st.DependsOn("z") {
		t.Errorf("DependsOn returned wrong result for %v", st.Dependencies)
	}
	if !st.RemoveDependency("a") {
		t.Error("RemoveDependency(a) should report removal")
	}
	if st.RemoveDependency("a") {
		t.Error("RemoveDependency(a) twice should report nothing removed")
	}
	if len(st.Dependencies) != 1 || st.Dependencies[0] != "b" {
		t.Errorf("unexpected dependencies after removal: %v", st.Dependencies)
	}
}

func TestRemoveDependencyDoesNotAliasClone(t *testing.T) {
	orig := &Subtask{ID: "c", Dependencies: []string{"a", "b"}}
	clone := orig.Clone()

	clone.RemoveDependency("a")
	if len(orig.Dependencies) != 2 || orig.Dependencies[0] != "a" {
		t.Errorf("original dependencies changed: %v", orig.Dependencies)
	}
}

func TestSubtaskClone(t *testing.T) {
	orig := &Subtask{
		ID:             "a",
		Dependencies:   []string{"b"},
		Tags:           []string{"x"},
		Parallelizable: Bool(false),
		Result:         &SubtaskResult{Success: true, Output: "done"},
		Metadata:       map[string]any{"k": "v"},
	}
	clone := orig.Clone()

	clone.Dependencies[0] = "changed"
	clone.Tags[0] = "changed"
	*clone.Parallelizable = true
	clone.Result.Output = "changed"
	clone.Metadata["k"] = "changed"

	if orig.Dependencies[0] != "b" || orig.Tags[0] != "x" {
		t.Error("slices were shared with the clone")
	}
	if *orig.Parallelizable {
		t.Error("parallelizable flag was shared with the clone")
	}
	if orig.Result.Output != "done" {
		t.Error("result was shared with the clone")
	}
	if orig.Metadata["k"] != "v" {
		t.Error("metadata was shared with the clone")
	}
}

func TestTreeSubtaskList(t *testing.T) {
	tree := &DecompositionTree{
		Subtasks: map[string]*Subtask{
			"a": {ID: "a"},
			"b": {ID: "b"},
		},
		ExecutionOrder: []string{"b", "missing", "a"},
	}

	list := tree.SubtaskList()
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Errorf("SubtaskList() returned wrong order: %v", list)
	}

	var nilTree *DecompositionTree
	if nilTree.SubtaskList() != nil {
		t.Error("nil tree should return nil list")
	}
}

func TestTreeDepth(t *testing.T) {
	tests := []struct {
		name     string
		subtasks map[string]*Subtask
		expected int
	}{
		{
			name:     "empty",
			subtasks: map[string]*Subtask{},
			expected: 0,
		},
		{
			name: "flat",
			subtasks: map[string]*Subtask{
				"a": {ID: "a"},
				"b": {ID: "b"},
			},
			expected: 1,
		},
		{
			name: "chain",
			subtasks: map[string]*Subtask{
				"a": {ID: "a"},
				"b": {ID: "b", ParentID: "a"},
				"c": {ID: "c", ParentID: "b"},
			},
			expected: 3,
		},
		{
			name: "unknown parent",
			subtasks: map[string]*Subtask{
				"a": {ID: "a", ParentID: "ghost"},
			},
			expected: 1,
		},
		{
			name: "parent cycle",
			subtasks: map[string]*Subtask{
				"a": {ID: "a", ParentID: "b"},
				"b": {ID: "b", ParentID: "a"},
			},
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := &DecompositionTree{Subtasks: tt.subtasks}
			if got := tree.Depth(); got != tt.expected {
				t.Errorf("Depth() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestEmptyTree(t *testing.T) {
	tree := EmptyTree("task")
	if tree.Task != "task" || len(tree.Subtasks) != 0 || tree.Graph == nil {
		t.Errorf("unexpected empty tree: %+v", tree)
	}
	if tree.Graph.HasCycles() {
		t.Error("empty tree should have no cycles")
	}

	var g *DependencyGraph
	if g.HasCycles() {
		t.Error("nil graph should report no cycles")
	}
}
