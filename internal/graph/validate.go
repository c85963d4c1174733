package graph

import (
	"fmt"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// DependencyErrorKind classifies a referential integrity violation.
type DependencyErrorKind string

const (
	// DependencyMissing indicates a dependency ID that does not resolve.
	DependencyMissing DependencyErrorKind = "missing"
	// DependencySelf indicates a subtask that depends on itself.
	DependencySelf DependencyErrorKind = "self"
)

// DependencyError describes one invalid dependency reference.
type DependencyError struct {
	SubtaskID    string
	DependencyID string
	Kind         DependencyErrorKind
}

// Error implements the error interface.
func (e DependencyError) Error() string {
	switch e.Kind {
	case DependencySelf:
		return fmt.Sprintf("subtask %s depends on itself", e.SubtaskID)
	default:
		return fmt.Sprintf("subtask %s depends on unknown subtask %s", e.SubtaskID, e.DependencyID)
	}
}

// ValidationResult contains every violation found, not just the first.
type ValidationResult struct {
	Valid  bool
	Errors []DependencyError
}

// Messages returns the violations as strings, suitable for warnings.
func (r ValidationResult) Messages() []string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return msgs
}

// ValidateDependencies flags dangling and self dependency references.
func ValidateDependencies(subtasks []*models.Subtask) ValidationResult {
	ids := make(map[string]bool, len(subtasks))
	for _, st := range subtasks {
		if st != nil {
			ids[st.ID] = true
		}
	}

	result := ValidationResult{Valid: true}
	for _, st := range subtasks {
		if st == nil {
			continue
		}
		for _, depID := range st.Dependencies {
			switch {
			case depID == st.ID:
				result.Errors = append(result.Errors, DependencyError{SubtaskID: st.ID, DependencyID: depID, Kind: DependencySelf})
			case !ids[depID]:
				result.Errors = append(result.Errors, DependencyError{SubtaskID: st.ID, DependencyID: depID, Kind: DependencyMissing})
			}
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// RemoveInvalidDependencies strips self, dangling and duplicate references in
// place and returns the self and dangling references it removed.
func RemoveInvalidDependencies(subtasks []*models.Subtask) []DependencyError {
	invalid := ValidateDependencies(subtasks).Errors

	ids := make(map[string]bool, len(subtasks))
	for _, st := range subtasks {
		if st != nil {
			ids[st.ID] = true
		}
	}

	for _, st := range subtasks {
		if st == nil || len(st.Dependencies) == 0 {
			continue
		}
		seen := make(map[string]bool, len(st.Dependencies))
		kept := st.Dependencies[:0:0]
		for _, depID := range st.Dependencies {
			if depID == st.ID || !ids[depID] || seen[depID] {
				continue
			}
			seen[depID] = true
			kept = append(kept, depID)
		}
		st.Dependencies = kept
	}
	return invalid
}
