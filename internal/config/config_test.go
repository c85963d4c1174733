package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Decomposition.MaxSubtasks != 20 {
		t.Errorf("expected max_subtasks 20, got %d", cfg.Decomposition.MaxSubtasks)
	}
	if cfg.Decomposition.MaxRepairPasses != 5 {
		t.Errorf("expected max_repair_passes 5, got %d", cfg.Decomposition.MaxRepairPasses)
	}
	if cfg.Patterns.MinSimilarity != 0.85 || cfg.Patterns.MinSuccessRate != 0.7 {
		t.Errorf("unexpected pattern thresholds: %+v", cfg.Patterns)
	}
	if cfg.Execution.SuccessThreshold != 0.8 {
		t.Errorf("expected success threshold 0.8, got %v", cfg.Execution.SuccessThreshold)
	}
	if cfg.Execution.TokenBudget != 0 {
		t.Errorf("expected unlimited budget by default, got %d", cfg.Execution.TokenBudget)
	}
	if cfg.Execution.SubtaskTimeout != 10*time.Minute {
		t.Errorf("expected subtask timeout 10m, got %v", cfg.Execution.SubtaskTimeout)
	}
	if !cfg.Patterns.Enabled || !cfg.History.Enabled {
		t.Error("patterns and history should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  model: claude-haiku-4-5-20251001
  use_bedrock: true
  aws_region: eu-west-1
decomposition:
  max_subtasks: 8
patterns:
  enabled: false
  min_similarity: 0.9
execution:
  token_budget: 50000
  subtask_timeout: 90s
  max_concurrency: 3
history:
  db_path: /tmp/runs.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" || cfg.Anthropic.Model != "claude-haiku-4-5-20251001" {
		t.Errorf("unexpected anthropic config: %+v", cfg.Anthropic)
	}
	if !cfg.Anthropic.UseBedrock || cfg.Anthropic.AWSRegion != "eu-west-1" {
		t.Errorf("unexpected bedrock config: %+v", cfg.Anthropic)
	}
	if cfg.Decomposition.MaxSubtasks != 8 {
		t.Errorf("expected max_subtasks 8, got %d", cfg.Decomposition.MaxSubtasks)
	}
	// Unset keys keep their defaults.
	if cfg.Decomposition.MaxRepairPasses != 5 {
		t.Errorf("expected default max_repair_passes, got %d", cfg.Decomposition.MaxRepairPasses)
	}
	if cfg.Patterns.Enabled || cfg.Patterns.MinSimilarity != 0.9 {
		t.Errorf("unexpected patterns config: %+v", cfg.Patterns)
	}
	if cfg.Execution.TokenBudget != 50000 || cfg.Execution.SubtaskTimeout != 90*time.Second || cfg.Execution.MaxConcurrency != 3 {
		t.Errorf("unexpected execution config: %+v", cfg.Execution)
	}
	if cfg.History.DBPath != "/tmp/runs.db" || !cfg.History.Enabled {
		t.Errorf("unexpected history config: %+v", cfg.History)
	}
}

func TestLoadFromPathRejectsInvalidValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("execution:\n  success_threshold: 1.5\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadFromPath(configPath)
	if err == nil || !strings.Contains(err.Error(), "success_threshold") {
		t.Errorf("expected success_threshold validation error, got %v", err)
	}
}

func TestLoadFromPathExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DECOMP_KEY", "sk-ant-from-env")
	t.Setenv("TEST_DECOMP_DIR", "/var/decomp")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "anthropic:\n  api_key: ${TEST_DECOMP_KEY}\npatterns:\n  db_path: ${TEST_DECOMP_DIR}/patterns.db\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-from-env" {
		t.Errorf("expected expanded key, got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Patterns.DBPath != "/var/decomp/patterns.db" {
		t.Errorf("expected expanded db path, got %q", cfg.Patterns.DBPath)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Anthropic.Model = "claude-opus-4-1-20250805"
	cfg.Execution.TokenBudget = 1234
	cfg.Execution.SubtaskTimeout = 45 * time.Second
	cfg.Patterns.SearchLimit = 9

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Anthropic.Model != cfg.Anthropic.Model || loaded.Execution.TokenBudget != 1234 {
		t.Errorf("round trip lost values: %+v", loaded)
	}
	if loaded.Execution.SubtaskTimeout != 45*time.Second || loaded.Patterns.SearchLimit != 9 {
		t.Errorf("round trip lost values: %+v", loaded.Execution)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	expected := filepath.Join("/custom/config", "decomp")
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
	if GetUserConfigPath() != filepath.Join(expected, "config.yaml") {
		t.Errorf("unexpected user config path %q", GetUserConfigPath())
	}
}

func TestFindProjectConfigWalksParents(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ProjectConfigName), []byte("decomposition:\n  max_subtasks: 3\n"), 0644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	child := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(child, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	if err := os.Chdir(child); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	found := GetProjectConfigPath()
	if filepath.Base(found) != ProjectConfigName {
		t.Fatalf("expected project config to be found, got %q", found)
	}

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Decomposition.MaxSubtasks != 3 {
		t.Errorf("project config should override defaults, got %d", cfg.Decomposition.MaxSubtasks)
	}
}
