// Package config handles configuration loading and management for decomp.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the project-level override file.
const ProjectConfigName = ".decomp.yaml"

// Config holds all configuration for decomp.
type Config struct {
	Anthropic     AnthropicConfig     `mapstructure:"anthropic"`
	Decomposition DecompositionConfig `mapstructure:"decomposition"`
	Patterns      PatternsConfig      `mapstructure:"patterns"`
	Execution     ExecutionConfig     `mapstructure:"execution"`
	History       HistoryConfig       `mapstructure:"history"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// DecompositionConfig controls the decomposition engine.
type DecompositionConfig struct {
	MaxSubtasks      int `mapstructure:"max_subtasks"`
	StrategyMinScore int `mapstructure:"strategy_min_score"`
	MaxRepairPasses  int `mapstructure:"max_repair_passes"`
}

// PatternsConfig controls the pattern cache.
type PatternsConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	DBPath         string  `mapstructure:"db_path"`
	MinSimilarity  float64 `mapstructure:"min_similarity"`
	MinSuccessRate float64 `mapstructure:"min_success_rate"`
	SearchLimit    int     `mapstructure:"search_limit"`
	Dimensions     int     `mapstructure:"dimensions"`
}

// ExecutionConfig controls the execution coordinator.
type ExecutionConfig struct {
	TokenBudget      int64         `mapstructure:"token_budget"`
	SubtaskTimeout   time.Duration `mapstructure:"subtask_timeout"`
	SuccessThreshold float64       `mapstructure:"success_threshold"`
	MaxConcurrency   int           `mapstructure:"max_concurrency"`
}

// HistoryConfig controls run history recording.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// LoggingConfig controls the debug log.
type LoggingConfig struct {
	DebugLog string `mapstructure:"debug_log"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.decomp.yaml in current directory or parent)
// 3. User config (~/.config/decomp/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "DECOMP_MODEL")
	v.BindEnv("execution.token_budget", "DECOMP_TOKEN_BUDGET")

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file on top of the defaults.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Patterns.DBPath = os.ExpandEnv(cfg.Patterns.DBPath)
	cfg.History.DBPath = os.ExpandEnv(cfg.History.DBPath)
	cfg.Logging.DebugLog = os.ExpandEnv(cfg.Logging.DebugLog)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch {
	case c.Decomposition.MaxSubtasks < 0:
		return fmt.Errorf("decomposition.max_subtasks must not be negative")
	case c.Execution.TokenBudget < 0:
		return fmt.Errorf("execution.token_budget must not be negative")
	case c.Execution.SuccessThreshold < 0 || c.Execution.SuccessThreshold > 1:
		return fmt.Errorf("execution.success_threshold must be between 0 and 1")
	case c.Patterns.MinSimilarity < 0 || c.Patterns.MinSimilarity > 1:
		return fmt.Errorf("patterns.min_similarity must be between 0 and 1")
	case c.Patterns.MinSuccessRate < 0 || c.Patterns.MinSuccessRate > 1:
		return fmt.Errorf("patterns.min_success_rate must be between 0 and 1")
	}
	return nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	return SaveTo(cfg, GetUserConfigPath())
}

// SaveTo writes cfg to path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("decomposition.max_subtasks", cfg.Decomposition.MaxSubtasks)
	v.Set("decomposition.strategy_min_score", cfg.Decomposition.StrategyMinScore)
	v.Set("decomposition.max_repair_passes", cfg.Decomposition.MaxRepairPasses)
	v.Set("patterns.enabled", cfg.Patterns.Enabled)
	v.Set("patterns.db_path", cfg.Patterns.DBPath)
	v.Set("patterns.min_similarity", cfg.Patterns.MinSimilarity)
	v.Set("patterns.min_success_rate", cfg.Patterns.MinSuccessRate)
	v.Set("patterns.search_limit", cfg.Patterns.SearchLimit)
	v.Set("patterns.dimensions", cfg.Patterns.Dimensions)
	v.Set("execution.token_budget", cfg.Execution.TokenBudget)
	v.Set("execution.subtask_timeout", cfg.Execution.SubtaskTimeout.String())
	v.Set("execution.success_threshold", cfg.Execution.SuccessThreshold)
	v.Set("execution.max_concurrency", cfg.Execution.MaxConcurrency)
	v.Set("history.enabled", cfg.History.Enabled)
	v.Set("history.db_path", cfg.History.DBPath)
	v.Set("logging.debug_log", cfg.Logging.DebugLog)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("anthropic.api_key", d.Anthropic.APIKey)
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.max_tokens", d.Anthropic.MaxTokens)
	v.SetDefault("anthropic.use_bedrock", d.Anthropic.UseBedrock)
	v.SetDefault("anthropic.aws_region", d.Anthropic.AWSRegion)
	v.SetDefault("anthropic.aws_profile", d.Anthropic.AWSProfile)

	v.SetDefault("decomposition.max_subtasks", d.Decomposition.MaxSubtasks)
	v.SetDefault("decomposition.strategy_min_score", d.Decomposition.StrategyMinScore)
	v.SetDefault("decomposition.max_repair_passes", d.Decomposition.MaxRepairPasses)

	v.SetDefault("patterns.enabled", d.Patterns.Enabled)
	v.SetDefault("patterns.db_path", d.Patterns.DBPath)
	v.SetDefault("patterns.min_similarity", d.Patterns.MinSimilarity)
	v.SetDefault("patterns.min_success_rate", d.Patterns.MinSuccessRate)
	v.SetDefault("patterns.search_limit", d.Patterns.SearchLimit)
	v.SetDefault("patterns.dimensions", d.Patterns.Dimensions)

	v.SetDefault("execution.token_budget", d.Execution.TokenBudget)
	v.SetDefault("execution.subtask_timeout", d.Execution.SubtaskTimeout.String())
	v.SetDefault("execution.success_threshold", d.Execution.SuccessThreshold)
	v.SetDefault("execution.max_concurrency", d.Execution.MaxConcurrency)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.db_path", d.History.DBPath)

	v.SetDefault("logging.debug_log", d.Logging.DebugLog)
}

// getUserConfigDir returns the XDG config directory for decomp.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "decomp")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "decomp")
	}
	return filepath.Join(home, ".config", "decomp")
}

// findProjectConfig searches for .decomp.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values. Empty database paths mean
// the project's .decomp directory.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 8192,
		},
		Decomposition: DecompositionConfig{
			MaxSubtasks:      20,
			StrategyMinScore: 2,
			MaxRepairPasses:  5,
		},
		Patterns: PatternsConfig{
			Enabled:        true,
			MinSimilarity:  0.85,
			MinSuccessRate: 0.7,
			SearchLimit:    5,
			Dimensions:     256,
		},
		Execution: ExecutionConfig{
			TokenBudget:      0,
			SubtaskTimeout:   10 * time.Minute,
			SuccessThreshold: 0.8,
			MaxConcurrency:   0,
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}
