package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/decomp/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify decomp configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/decomp/config.yaml
Project-specific overrides can be placed in .decomp.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			displayAllConfig(out, cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(out, "Set %s = %s\n", args[0], args[1])
			return nil
		}
	},
}

// configKey binds a dot-notation key to a config field.
type configKey struct {
	name string
	get  func(*config.Config) string
	set  func(*config.Config, string) error
}

func stringKey(name string, field func(*config.Config) *string) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return *field(c) },
		set: func(c *config.Config, v string) error {
			*field(c) = v
			return nil
		},
	}
}

func intKey(name string, field func(*config.Config) *int) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func int64Key(name string, field func(*config.Config) *int64) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return strconv.FormatInt(*field(c), 10) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatKey(name string, field func(*config.Config) *float64) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *config.Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid number for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

func boolKey(name string, field func(*config.Config) *bool) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *config.Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func durationKey(name string, field func(*config.Config) *time.Duration) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return field(c).String() },
		set: func(c *config.Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration for %s: %w", name, err)
			}
			*field(c) = d
			return nil
		},
	}
}

var configKeys = []configKey{
	{
		name: "anthropic.api_key",
		get:  func(c *config.Config) string { return config.MaskAPIKey(c.Anthropic.APIKey) },
		set: func(c *config.Config, v string) error {
			if err := config.ValidateAPIKey(v); err != nil {
				return err
			}
			c.Anthropic.APIKey = v
			return nil
		},
	},
	stringKey("anthropic.model", func(c *config.Config) *string { return &c.Anthropic.Model }),
	int64Key("anthropic.max_tokens", func(c *config.Config) *int64 { return &c.Anthropic.MaxTokens }),
	boolKey("anthropic.use_bedrock", func(c *config.Config) *bool { return &c.Anthropic.UseBedrock }),
	stringKey("anthropic.aws_region", func(c *config.Config) *string { return &c.Anthropic.AWSRegion }),
	stringKey("anthropic.aws_profile", func(c *config.Config) *string { return &c.Anthropic.AWSProfile }),
	intKey("decomposition.max_subtasks", func(c *config.Config) *int { return &c.Decomposition.MaxSubtasks }),
	intKey("decomposition.strategy_min_score", func(c *config.Config) *int { return &c.Decomposition.StrategyMinScore }),
	intKey("decomposition.max_repair_passes", func(c *config.Config) *int { return &c.Decomposition.MaxRepairPasses }),
	boolKey("patterns.enabled", func(c *config.Config) *bool { return &c.Patterns.Enabled }),
	stringKey("patterns.db_path", func(c *config.Config) *string { return &c.Patterns.DBPath }),
	floatKey("patterns.min_similarity", func(c *config.Config) *float64 { return &c.Patterns.MinSimilarity }),
	floatKey("patterns.min_success_rate", func(c *config.Config) *float64 { return &c.Patterns.MinSuccessRate }),
	intKey("patterns.search_limit", func(c *config.Config) *int { return &c.Patterns.SearchLimit }),
	intKey("patterns.dimensions", func(c *config.Config) *int { return &c.Patterns.Dimensions }),
	int64Key("execution.token_budget", func(c *config.Config) *int64 { return &c.Execution.TokenBudget }),
	durationKey("execution.subtask_timeout", func(c *config.Config) *time.Duration { return &c.Execution.SubtaskTimeout }),
	floatKey("execution.success_threshold", func(c *config.Config) *float64 { return &c.Execution.SuccessThreshold }),
	intKey("execution.max_concurrency", func(c *config.Config) *int { return &c.Execution.MaxConcurrency }),
	boolKey("history.enabled", func(c *config.Config) *bool { return &c.History.Enabled }),
	stringKey("history.db_path", func(c *config.Config) *string { return &c.History.DBPath }),
	stringKey("logging.debug_log", func(c *config.Config) *string { return &c.Logging.DebugLog }),
}

func lookupConfigKey(key string) (configKey, error) {
	key = strings.ToLower(key)
	for _, k := range configKeys {
		if k.name == key {
			return k, nil
		}
	}
	return configKey{}, fmt.Errorf("unknown configuration key: %s", key)
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, k := range configKeys {
		fmt.Fprintf(w, "%s: %s\n", k.name, k.get(cfg))
	}
	fmt.Fprintf(w, "# credentials: %s\n", config.GetAPIKeySource(cfg))
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	k, err := lookupConfigKey(key)
	if err != nil {
		return "", err
	}
	return k.get(cfg), nil
}

// setConfigValue sets a configuration value by dot-notation key and rejects
// values the resulting config cannot use.
func setConfigValue(cfg *config.Config, key, value string) error {
	k, err := lookupConfigKey(key)
	if err != nil {
		return err
	}
	if err := k.set(cfg, value); err != nil {
		return err
	}
	return cfg.Validate()
}
