package models

import (
	"strings"
	"time"
)

// SubtaskStatus represents the lifecycle state of a subtask.
type SubtaskStatus string

const (
	// SubtaskStatusPending indicates the subtask has not been scheduled.
	SubtaskStatusPending SubtaskStatus = "pending"
	// SubtaskStatusBlocked indicates the subtask is waiting on something other than its dependencies.
	SubtaskStatusBlocked SubtaskStatus = "blocked"
	// SubtaskStatusReady indicates all dependencies resolved successfully.
	SubtaskStatusReady SubtaskStatus = "ready"
	// SubtaskStatusInProgress indicates the executor is running the subtask.
	SubtaskStatusInProgress SubtaskStatus = "in_progress"
	// SubtaskStatusComplete indicates the subtask finished successfully.
	SubtaskStatusComplete SubtaskStatus = "complete"
	// SubtaskStatusFailed indicates the executor failed.
	SubtaskStatusFailed SubtaskStatus = "failed"
	// SubtaskStatusSkipped indicates the subtask was never executed.
	SubtaskStatusSkipped SubtaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s SubtaskStatus) Valid() bool {
	switch s {
	case SubtaskStatusPending, SubtaskStatusBlocked, SubtaskStatusReady, SubtaskStatusInProgress,
		SubtaskStatusComplete, SubtaskStatusFailed, SubtaskStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once no further transition is possible.
func (s SubtaskStatus) IsTerminal() bool {
	return s == SubtaskStatusComplete || s == SubtaskStatusFailed || s == SubtaskStatusSkipped
}

// SubtaskType is the categorical tag of a subtask.
type SubtaskType string

const (
	SubtaskTypeFeature        SubtaskType = "feature"
	SubtaskTypeRefactor       SubtaskType = "refactor"
	SubtaskTypeIntegration    SubtaskType = "integration"
	SubtaskTypeAnalysis       SubtaskType = "analysis"
	SubtaskTypeDesign         SubtaskType = "design"
	SubtaskTypeTesting        SubtaskType = "testing"
	SubtaskTypeDocumentation  SubtaskType = "documentation"
	SubtaskTypeConfiguration  SubtaskType = "configuration"
	SubtaskTypeData           SubtaskType = "data"
	SubtaskTypeUI             SubtaskType = "ui"
	SubtaskTypeAPI            SubtaskType = "api"
	SubtaskTypeInfrastructure SubtaskType = "infrastructure"
	SubtaskTypeOther          SubtaskType = "other"
)

// AllSubtaskTypes lists every known type in display order.
var AllSubtaskTypes = []SubtaskType{
	SubtaskTypeFeature, SubtaskTypeRefactor, SubtaskTypeIntegration, SubtaskTypeAnalysis,
	SubtaskTypeDesign, SubtaskTypeTesting, SubtaskTypeDocumentation, SubtaskTypeConfiguration,
	SubtaskTypeData, SubtaskTypeUI, SubtaskTypeAPI, SubtaskTypeInfrastructure, SubtaskTypeOther,
}

// ParseSubtaskType normalizes free text into a SubtaskType.
// Unknown values map to SubtaskTypeOther.
func ParseSubtaskType(s string) SubtaskType {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "test", "tests":
		return SubtaskTypeTesting
	case "docs", "doc":
		return SubtaskTypeDocumentation
	case "config":
		return SubtaskTypeConfiguration
	case "infra":
		return SubtaskTypeInfrastructure
	}
	for _, t := range AllSubtaskTypes {
		if string(t) == normalized {
			return t
		}
	}
	return SubtaskTypeOther
}

// Complexity is the estimated difficulty of a subtask.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExtreme  Complexity = "extreme"
)

// AllComplexities lists complexity levels from lowest to highest.
var AllComplexities = []Complexity{
	ComplexityTrivial, ComplexitySimple, ComplexityModerate, ComplexityComplex, ComplexityExtreme,
}

// ParseComplexity normalizes free text into a Complexity, defaulting to moderate.
func ParseComplexity(s string) Complexity {
	normalized := Complexity(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range AllComplexities {
		if c == normalized {
			return c
		}
	}
	return ComplexityModerate
}

// Weight returns 1 (trivial) through 5 (extreme).
func (c Complexity) Weight() int {
	for i, known := range AllComplexities {
		if known == c {
			return i + 1
		}
	}
	return 3
}

// DefaultTokens estimates the token cost of a subtask when none was supplied.
func (c Complexity) DefaultTokens() int64 {
	switch c {
	case ComplexityTrivial:
		return 1000
	case ComplexitySimple:
		return 2500
	case ComplexityComplex:
		return 10000
	case ComplexityExtreme:
		return 20000
	default:
		return 5000
	}
}

// DefaultDuration estimates the wall-clock minutes of a subtask when none was supplied.
func (c Complexity) DefaultDuration() int {
	return c.Weight() * 5
}

// Subtask represents a single unit of work produced by decomposition.
type Subtask struct {
	// ID is the stable identifier of this subtask.
	ID string `json:"id" yaml:"id"`
	// ParentID groups subtasks hierarchically, if set.
	ParentID string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	// Title is the short description of the subtask.
	Title string `json:"title" yaml:"title"`
	// Description provides detailed instructions.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Type is the categorical tag.
	Type SubtaskType `json:"type" yaml:"type"`
	// Complexity is the estimated difficulty.
	Complexity Complexity `json:"complexity" yaml:"complexity"`
	// EstimatedTokens is the abstract cost estimate.
	EstimatedTokens int64 `json:"estimated_tokens" yaml:"estimated_tokens"`
	// EstimatedDuration is the estimated duration in minutes.
	EstimatedDuration int `json:"estimated_duration,omitempty" yaml:"estimated_duration,omitempty"`
	// Dependencies lists the IDs of subtasks that must complete first (hard edges).
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// SoftDependencies are informational edges that never gate scheduling.
	SoftDependencies []string `json:"soft_dependencies,omitempty" yaml:"soft_dependencies,omitempty"`
	// Status is the lifecycle state.
	Status SubtaskStatus `json:"status" yaml:"status"`
	// Priority orders subtasks within a stage; higher runs first.
	Priority int `json:"priority" yaml:"priority"`
	// Parallelizable is nil unless the decomposition explicitly set it.
	Parallelizable *bool `json:"parallelizable,omitempty" yaml:"parallelizable,omitempty"`
	// Stage is assigned by the dependency analyzer.
	Stage int `json:"stage" yaml:"stage"`
	// Tags are free-form labels.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	// CreatedAt is when the subtask was created.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	// UpdatedAt is when the subtask last changed.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	// Result is filled after execution.
	Result *SubtaskResult `json:"result,omitempty" yaml:"result,omitempty"`
	// Metadata is a free-form bag.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// IsParallelizable reports whether the parallelizable flag is not explicitly false.
func (s *Subtask) IsParallelizable() bool {
	return s.Parallelizable == nil || *s.Parallelizable
}

// DependsOn returns true if id is one of the hard dependencies.
func (s *Subtask) DependsOn(id string) bool {
	for _, dep := range s.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// RemoveDependency drops a hard dependency, returning true if it was present.
func (s *Subtask) RemoveDependency(id string) bool {
	for i, dep := range s.Dependencies {
		if dep == id {
			s.Dependencies = append(s.Dependencies[:i:i], s.Dependencies[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the subtask.
func (s *Subtask) Clone() *Subtask {
	c := *s
	c.Dependencies = append([]string(nil), s.Dependencies...)
	c.SoftDependencies = append([]string(nil), s.SoftDependencies...)
	c.Tags = append([]string(nil), s.Tags...)
	if s.Parallelizable != nil {
		p := *s.Parallelizable
		c.Parallelizable = &p
	}
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// SubtaskResult is produced for each executed subtask.
type SubtaskResult struct {
	// Success reports whether the executor completed the work.
	Success bool `json:"success" yaml:"success"`
	// Output is the payload produced by the executor.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
	// Confidence is the executor's self-assessed confidence (0.0-1.0).
	Confidence float64 `json:"confidence" yaml:"confidence"`
	// TokensUsed is the cost actually consumed.
	TokensUsed int64 `json:"tokens_used" yaml:"tokens_used"`
	// Latency is how long execution took.
	Latency time.Duration `json:"latency" yaml:"latency"`
	// Artifacts are optional named outputs (file paths, URLs, snippets).
	Artifacts map[string]string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	// Error contains the failure message, if any.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	// CompletedAt is when execution finished.
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`
}

// Bool returns a pointer to b, for optional flags such as Subtask.Parallelizable.
func Bool(b bool) *bool {
	return &b
}
