package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/decomp/internal/config"
	"github.com/ShayCichocki/decomp/internal/execution"
)

func TestShortID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "abc"},
		{"12345678", "12345678"},
		{"3f2a9c1e-77aa-4bde-9a4b-2d5f8c9e0a11", "3f2a9c1e"},
	}
	for _, tt := range tests {
		if got := shortID(tt.in); got != tt.want {
			t.Errorf("shortID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 10); got != "short" {
		t.Errorf("truncateText() = %q", got)
	}
	if got := truncateText("a much longer task description", 10); got != "a much ..." {
		t.Errorf("truncateText() = %q", got)
	}
}

func TestCheckFormat(t *testing.T) {
	for _, f := range []string{"text", "json", "yaml"} {
		if err := checkFormat(f); err != nil {
			t.Errorf("checkFormat(%q) = %v", f, err)
		}
	}
	if err := checkFormat("xml"); err == nil {
		t.Error("checkFormat(xml) should fail")
	}
}

func TestWriteResult(t *testing.T) {
	plan, err := ParsePlan([]byte(samplePlan))
	if err != nil {
		t.Fatalf("ParsePlan() error = %v", err)
	}
	result, err := decomposePlan(context.Background(), testApp(t), plan)
	if err != nil {
		t.Fatalf("decomposePlan() error = %v", err)
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResult(&buf, "text", result); err != nil {
			t.Fatalf("writeResult() error = %v", err)
		}
		out := buf.String()
		for _, want := range []string{"Ship the reporting service", "Stage 1", "Stage 3", "Implement the report API", "3 subtasks in 3 stages"} {
			if !strings.Contains(out, want) {
				t.Errorf("text output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResult(&buf, "json", result); err != nil {
			t.Fatalf("writeResult() error = %v", err)
		}
		var decoded struct {
			Success bool `json:"success"`
			Tree    struct {
				Task     string                     `json:"task"`
				Subtasks map[string]json.RawMessage `json:"subtasks"`
			} `json:"tree"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if !decoded.Success || decoded.Tree.Task != plan.Task || len(decoded.Tree.Subtasks) != 3 {
			t.Errorf("unexpected json result: %+v", decoded)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResult(&buf, "yaml", result); err != nil {
			t.Fatalf("writeResult() error = %v", err)
		}
		var decoded map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid yaml: %v", err)
		}
		tree, ok := decoded["tree"].(map[string]any)
		if !ok || tree["task"] != plan.Task {
			t.Errorf("unexpected yaml result: %v", decoded["tree"])
		}
	})
}

func TestRenderExecution(t *testing.T) {
	tests := []struct {
		name   string
		result *execution.ExecutionResult
		want   []string
	}{
		{
			name: "unlimited budget",
			result: &execution.ExecutionResult{
				Success:         true,
				Completed:       []string{"a", "b"},
				TokensUsed:      120,
				RemainingBudget: -1,
				Duration:        1500 * time.Millisecond,
			},
			want: []string{"succeeded", "completed 2, failed 0, skipped 0", "tokens used 120 (no budget)"},
		},
		{
			name: "budget and errors",
			result: &execution.ExecutionResult{
				Completed:       []string{"a"},
				Failed:          []string{"b"},
				Skipped:         []string{"c"},
				TokensUsed:      900,
				RemainingBudget: 100,
				BudgetStatus:    "critical",
				Errors: []execution.SubtaskError{
					{SubtaskID: "b", Title: "Build", Message: "compile error"},
					{SubtaskID: "c", Title: "Ship", Message: "dependency failed", Skipped: true},
				},
			},
			want: []string{"failed", "remaining 100 (critical)", "Build (b): compile error", "skipped", "Ship (c)"},
		},
		{
			name:   "cancelled",
			result: &execution.ExecutionResult{Cancelled: true, RemainingBudget: -1},
			want:   []string{"cancelled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderExecution(&buf, tt.result)
			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestConfigKeys(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		key, value string
	}{
		{"anthropic.model", "claude-haiku-4-5-20251001"},
		{"anthropic.max_tokens", "4096"},
		{"anthropic.use_bedrock", "true"},
		{"decomposition.max_subtasks", "12"},
		{"patterns.min_similarity", "0.9"},
		{"execution.token_budget", "50000"},
		{"execution.subtask_timeout", "2m0s"},
		{"history.enabled", "false"},
		{"Logging.Debug_Log", "/tmp/decomp.log"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := setConfigValue(cfg, tt.key, tt.value); err != nil {
				t.Fatalf("setConfigValue(%q) error = %v", tt.key, err)
			}
			got, err := getConfigValue(cfg, tt.key)
			if err != nil {
				t.Fatalf("getConfigValue(%q) error = %v", tt.key, err)
			}
			if got != tt.value {
				t.Errorf("getConfigValue(%q) = %q, want %q", tt.key, got, tt.value)
			}
		})
	}
}

func TestConfigKeysRejectBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"unknown.key", "1"},
		{"decomposition.max_subtasks", "many"},
		{"execution.subtask_timeout", "soon"},
		{"execution.success_threshold", "1.5"},
		{"patterns.enabled", "maybe"},
		{"anthropic.api_key", "not-a-key"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := setConfigValue(config.Default(), tt.key, tt.value); err == nil {
				t.Errorf("setConfigValue(%q, %q) should fail", tt.key, tt.value)
			}
		})
	}
}

func TestConfigAPIKeyIsMasked(t *testing.T) {
	cfg := config.Default()
	key := "sk-ant-REDACTED"
	if err := setConfigValue(cfg, "anthropic.api_key", key); err != nil {
		t.Fatalf("setConfigValue() error = %v", err)
	}
	got, _ := getConfigValue(cfg, "anthropic.api_key")
	if got == key || !strings.HasSuffix(got, "mnop") {
		t.Errorf("api key not masked: %q", got)
	}

	var buf bytes.Buffer
	displayAllConfig(&buf, cfg)
	if strings.Contains(buf.String(), key) {
		t.Error("displayAllConfig leaked the api key")
	}
}
