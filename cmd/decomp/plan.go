package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/decomp/internal/decompose"
)

// Plan is a hand-written decomposition. Dependencies refer to other subtasks
// by id, 1-based position or title.
type Plan struct {
	Task     string        `yaml:"task"`
	Subtasks []PlanSubtask `yaml:"subtasks"`
}

// PlanSubtask is one entry of a plan file.
type PlanSubtask struct {
	ID                string   `yaml:"id" json:"id,omitempty"`
	ParentID          string   `yaml:"parent_id" json:"parent_id,omitempty"`
	Title             string   `yaml:"title" json:"title"`
	Description       string   `yaml:"description" json:"description,omitempty"`
	Type              string   `yaml:"type" json:"type,omitempty"`
	Complexity        string   `yaml:"complexity" json:"complexity,omitempty"`
	EstimatedTokens   int64    `yaml:"estimated_tokens" json:"estimated_tokens,omitempty"`
	EstimatedDuration int      `yaml:"estimated_duration" json:"estimated_duration,omitempty"`
	Priority          int      `yaml:"priority" json:"priority,omitempty"`
	Parallelizable    *bool    `yaml:"parallelizable" json:"parallelizable,omitempty"`
	Dependencies      []string `yaml:"dependencies" json:"dependencies,omitempty"`
	Tags              []string `yaml:"tags" json:"tags,omitempty"`
}

// LoadPlan reads a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes and checks a YAML plan.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	plan.Task = strings.TrimSpace(plan.Task)
	if plan.Task == "" {
		return nil, errors.New("plan has no task")
	}
	if len(plan.Subtasks) == 0 {
		return nil, errors.New("plan has no subtasks")
	}
	return &plan, nil
}

// planReasoner answers every reasoning request with the plan's subtasks, so
// a plan goes through the same parsing, validation and cycle repair as a
// generated decomposition.
type planReasoner struct {
	payload string
}

func newPlanReasoner(plan *Plan) (*planReasoner, error) {
	data, err := json.Marshal(plan.Subtasks)
	if err != nil {
		return nil, fmt.Errorf("encode plan subtasks: %w", err)
	}
	return &planReasoner{payload: string(data)}, nil
}

func (r *planReasoner) Complete(ctx context.Context, req decompose.ReasoningRequest) (*decompose.ReasoningResponse, error) {
	return &decompose.ReasoningResponse{Text: r.payload}, nil
}

// decomposePlan turns a plan into an analyzed tree.
func decomposePlan(ctx context.Context, a *app, plan *Plan) (*decompose.DecompositionResult, error) {
	reasoner, err := newPlanReasoner(plan)
	if err != nil {
		return nil, err
	}
	engine := a.newEngine(reasoner, len(plan.Subtasks), false, nil)
	result := engine.Decompose(ctx, plan.Task)
	if !result.Success {
		return nil, fmt.Errorf("invalid plan: %s", result.Error)
	}
	return result, nil
}
