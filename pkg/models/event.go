package models

import "time"

// EventType represents the kind of progress event.
type EventType string

const (
	EventDecompositionStart   EventType = "decomposition_start"
	EventStrategySelected     EventType = "strategy_selected"
	EventPatternMatched       EventType = "pattern_matched"
	EventSubtaskCreated       EventType = "subtask_created"
	EventDependenciesAnalyzed EventType = "dependencies_analyzed"
	EventExecutionStart       EventType = "execution_start"
	EventStageStart           EventType = "stage_start"
	EventSubtaskStart         EventType = "subtask_start"
	EventSubtaskComplete      EventType = "subtask_complete"
	EventSubtaskFailed        EventType = "subtask_failed"
	EventStageComplete        EventType = "stage_complete"
	EventExecutionComplete    EventType = "execution_complete"
	EventError                EventType = "error"
)

// ProgressEvent is emitted by the decomposition engine and the execution coordinator.
type ProgressEvent struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// Message is a human-readable description.
	Message string `json:"message"`
	// SubtaskID is the related subtask, if any.
	SubtaskID string `json:"subtask_id,omitempty"`
	// Stage is the zero-based stage index, if applicable.
	Stage int `json:"stage"`
	// TotalStages is the number of stages in the plan.
	TotalStages int `json:"total_stages"`
	// Progress is the completed fraction (0.0-1.0).
	Progress float64 `json:"progress"`
	// Error holds the failure message for failure events.
	Error string `json:"error,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
