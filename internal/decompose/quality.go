package decompose

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// Severity indicates the severity of a quality issue.
type Severity int

const (
	// SeverityInfo indicates informational feedback.
	SeverityInfo Severity = iota
	// SeverityWarning indicates a potential problem.
	SeverityWarning
	// SeverityCritical indicates a serious problem.
	SeverityCritical
)

// String returns a human-readable severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON and YAML output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// QualityIssue is one concern about a subtask.
type QualityIssue struct {
	Severity   Severity `json:"severity" yaml:"severity"`
	Message    string   `json:"message" yaml:"message"`
	Suggestion string   `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

// SubtaskQuality is the score for a single subtask.
type SubtaskQuality struct {
	SubtaskID  string         `json:"subtask_id" yaml:"subtask_id"`
	Confidence float64        `json:"confidence" yaml:"confidence"`
	Issues     []QualityIssue `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// Quality is the heuristic assessment of a whole decomposition.
type Quality struct {
	OverallConfidence float64          `json:"overall_confidence" yaml:"overall_confidence"`
	Subtasks          []SubtaskQuality `json:"subtasks" yaml:"subtasks"`
	Warnings          []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	CriticalIssues    int              `json:"critical_issues" yaml:"critical_issues"`
}

// ScoreTree assigns heuristic confidence scores to an analyzed tree.
func ScoreTree(tree *models.DecompositionTree) Quality {
	q := Quality{OverallConfidence: 1.0}
	if tree == nil || len(tree.Subtasks) == 0 {
		return q
	}

	list := tree.SubtaskList()
	total := 0.0
	for _, st := range list {
		score := scoreSubtask(st)
		for _, issue := range score.Issues {
			if issue.Severity == SeverityCritical {
				q.CriticalIssues++
			}
		}
		total += score.Confidence
		q.Subtasks = append(q.Subtasks, score)
	}
	if len(q.Subtasks) > 0 {
		q.OverallConfidence = total / float64(len(q.Subtasks))
	}

	n := len(tree.Subtasks)
	if n > 10 {
		penalty := float64(n-10) * 0.05
		if penalty > 0.3 {
			penalty = 0.3
		}
		q.OverallConfidence -= penalty
		q.Warnings = append(q.Warnings, fmt.Sprintf("large number of subtasks (%d) may be difficult to coordinate", n))
	}
	if tree.Graph != nil && tree.Graph.MaxParallelism == 1 && n > 3 {
		q.OverallConfidence -= 0.2
		q.Warnings = append(q.Warnings, "no parallelism: every stage has a single subtask")
	}
	if q.CriticalIssues > 0 {
		q.Warnings = append(q.Warnings, fmt.Sprintf("%d critical issues found in decomposition", q.CriticalIssues))
	}
	if q.OverallConfidence < 0 {
		q.OverallConfidence = 0
	}
	if q.OverallConfidence < 0.5 {
		q.Warnings = append(q.Warnings, "low overall confidence: consider simplifying or restructuring subtasks")
	}
	return q
}

func scoreSubtask(st *models.Subtask) SubtaskQuality {
	score := SubtaskQuality{SubtaskID: st.ID, Confidence: 1.0}
	penalize := func(p float64, sev Severity, msg, suggestion string) {
		score.Confidence -= p
		score.Issues = append(score.Issues, QualityIssue{Severity: sev, Message: msg, Suggestion: suggestion})
	}

	if strings.TrimSpace(st.Description) == "" {
		penalize(0.2, SeverityWarning, "no description", "describe what done looks like")
	}
	if len(strings.Fields(st.Title)) < 2 {
		penalize(0.1, SeverityInfo, "vague title: "+st.Title, "use a short verb phrase")
	}
	if st.Complexity == models.ComplexityExtreme {
		penalize(0.3, SeverityCritical, "extreme complexity", "split into smaller subtasks")
	}
	if len(st.Dependencies) > 4 {
		penalize(0.1, SeverityWarning,
			fmt.Sprintf("depends on %d subtasks", len(st.Dependencies)),
			"consider an intermediate integration subtask")
	}
	if st.Stage > 3 {
		penalize(float64(st.Stage-3)*0.1, SeverityWarning,
			fmt.Sprintf("deep dependency chain (stage %d)", st.Stage),
			"flatten dependencies for better parallelism")
	}

	if score.Confidence < 0 {
		score.Confidence = 0
	}
	return score
}
