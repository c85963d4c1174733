package decompose

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// DefaultMaxSubtasks caps the number of subtasks kept from a response.
const DefaultMaxSubtasks = 20

var (
	// ErrNoJSONArray is returned when the response contains no JSON array.
	ErrNoJSONArray = errors.New("no valid JSON array found in response")
	// ErrEmptyTaskList is returned when the array has no elements.
	ErrEmptyTaskList = errors.New("empty task list returned")
	// ErrNoResponse is returned when the reasoner returns neither a response nor an error.
	ErrNoResponse = errors.New("reasoning provider returned no response")
	// ErrReasonerPanic marks a reasoner that panicked during Decompose.
	ErrReasonerPanic = errors.New("reasoning provider panicked")
)

// placeholder is an id or dependency reference. Models emit both "3" and 3.
type placeholder string

func (p *placeholder) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = placeholder(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("placeholder must be a string or number: %s", data)
	}
	*p = placeholder(n.String())
	return nil
}

// descriptor is one element of the reasoning provider's JSON array.
type descriptor struct {
	ID                placeholder   `json:"id"`
	ParentID          placeholder   `json:"parent_id"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Type              string        `json:"type"`
	Complexity        string        `json:"complexity"`
	EstimatedTokens   int64         `json:"estimated_tokens"`
	EstimatedDuration int           `json:"estimated_duration"`
	Priority          int           `json:"priority"`
	Parallelizable    *bool         `json:"parallelizable"`
	Dependencies      []placeholder `json:"dependencies"`
	DependsOn         []placeholder `json:"depends_on"`
	Tags              []string      `json:"tags"`
}

// positionalRef matches "3", "T3", "task-3", "subtask_3", "step 3", "#3".
var positionalRef = regexp.MustCompile(`(?i)^(?:t|task|subtask|step)?[\s\-_#]*(\d+)$`)

// ParseResponse extracts the subtask list from a reasoning response. The
// response must contain a JSON array of descriptors; anything around it (prose,
// code fences) is ignored. At most maxSubtasks descriptors are kept. Each
// dependency reference is resolved by direct id, then by 1-based position,
// then by title; references that resolve to nothing are dropped with a
// warning. Subtasks get fresh UUIDs.
func ParseResponse(response string, maxSubtasks int) ([]*models.Subtask, []string, error) {
	if maxSubtasks <= 0 {
		maxSubtasks = DefaultMaxSubtasks
	}

	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		preview := response
		if len(preview) > 500 {
			preview = preview[:runeBoundary(preview, 500)] + "... (truncated)"
		}
		return nil, nil, fmt.Errorf("%w (got %d chars): %q", ErrNoJSONArray, len(response), preview)
	}

	var descriptors []descriptor
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &descriptors); err != nil {
		return nil, nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	if len(descriptors) == 0 {
		return nil, nil, ErrEmptyTaskList
	}

	var warnings []string
	if len(descriptors) > maxSubtasks {
		warnings = append(warnings, fmt.Sprintf("truncated %d subtasks to the limit of %d", len(descriptors), maxSubtasks))
		descriptors = descriptors[:maxSubtasks]
	}

	r := newResolver(descriptors)
	now := time.Now()
	subtasks := make([]*models.Subtask, len(descriptors))

	for i, d := range descriptors {
		title := strings.TrimSpace(d.Title)
		if title == "" {
			title = fmt.Sprintf("Subtask %d", i+1)
		}
		complexity := models.ParseComplexity(d.Complexity)

		st := &models.Subtask{
			ID:                r.ids[i],
			Title:             title,
			Description:       strings.TrimSpace(d.Description),
			Type:              models.ParseSubtaskType(d.Type),
			Complexity:        complexity,
			EstimatedTokens:   d.EstimatedTokens,
			EstimatedDuration: d.EstimatedDuration,
			Priority:          d.Priority,
			Parallelizable:    d.Parallelizable,
			Status:            models.SubtaskStatusPending,
			Tags:              d.Tags,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if st.EstimatedTokens <= 0 {
			st.EstimatedTokens = complexity.DefaultTokens()
		}
		if st.EstimatedDuration <= 0 {
			st.EstimatedDuration = complexity.DefaultDuration()
		}
		if d.ParentID != "" {
			if j, ok := r.resolve(string(d.ParentID)); ok && j != i {
				st.ParentID = r.ids[j]
			}
		}

		seen := make(map[int]bool)
		for _, ref := range append(d.Dependencies, d.DependsOn...) {
			if ref == "" {
				continue
			}
			j, ok := r.resolve(string(ref))
			switch {
			case !ok:
				warnings = append(warnings, fmt.Sprintf("subtask %q: dropped unresolvable dependency %q", title, ref))
			case j == i:
				warnings = append(warnings, fmt.Sprintf("subtask %q: dropped self dependency %q", title, ref))
			case !seen[j]:
				seen[j] = true
				st.Dependencies = append(st.Dependencies, r.ids[j])
			}
		}
		subtasks[i] = st
	}

	return subtasks, warnings, nil
}

// resolver maps placeholder references onto descriptor positions.
type resolver struct {
	ids     []string
	byID    map[string]int
	byTitle map[string]int
}

func newResolver(descriptors []descriptor) *resolver {
	r := &resolver{
		ids:     make([]string, len(descriptors)),
		byID:    make(map[string]int, len(descriptors)),
		byTitle: make(map[string]int, len(descriptors)),
	}
	for i, d := range descriptors {
		r.ids[i] = uuid.New().String()
		if d.ID != "" {
			if _, exists := r.byID[string(d.ID)]; !exists {
				r.byID[string(d.ID)] = i
			}
		}
		if key := normalizeTitle(d.Title); key != "" {
			if _, exists := r.byTitle[key]; !exists {
				r.byTitle[key] = i
			}
		}
	}
	return r
}

func (r *resolver) resolve(ref string) (int, bool) {
	ref = strings.TrimSpace(ref)
	if i, ok := r.byID[ref]; ok {
		return i, true
	}
	if m := positionalRef.FindStringSubmatch(ref); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= len(r.ids) {
			return n - 1, true
		}
	}
	if i, ok := r.byTitle[normalizeTitle(ref)]; ok {
		return i, true
	}
	return 0, false
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// runeBoundary returns the largest index <= n that does not split a UTF-8
// sequence in s.
func runeBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
