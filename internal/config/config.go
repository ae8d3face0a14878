// Package config handles configuration loading for waverunner.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for waverunner.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Worktrees WorktreesConfig `mapstructure:"worktrees"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// AWSConfig holds Bedrock settings for the API spawner.
type AWSConfig struct {
	UseBedrock bool   `mapstructure:"use_bedrock"`
	Region     string `mapstructure:"region"`
	Profile    string `mapstructure:"profile"`
}

// DefaultsConfig holds default values for builds.
type DefaultsConfig struct {
	// MaxWorkers caps intra-wave parallelism. Zero means unbounded.
	MaxWorkers int `mapstructure:"max_workers"`
	// AgentCommand is the CLI agent binary the process spawner runs.
	AgentCommand string `mapstructure:"agent_command"`
	// AgentArgs are passed to the agent binary before the instructions.
	AgentArgs []string `mapstructure:"agent_args"`
}

// WorktreesConfig holds workspace isolation settings.
type WorktreesConfig struct {
	// BaseDir is where per-unit worktrees are created.
	// Empty means the manager's default under the user cache directory.
	BaseDir string `mapstructure:"base_dir"`
}

// TimeoutsConfig holds timeout settings.
type TimeoutsConfig struct {
	// Unit is the per-unit execution timeout. Zero disables the timeout.
	Unit time.Duration `mapstructure:"unit"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (WAVERUNNER_*, ANTHROPIC_API_KEY)
// 2. Project config (.waverunner.yaml in current directory or parent)
// 3. User config (~/.config/waverunner/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("WAVERUNNER")
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("aws.region", "AWS_REGION")
	v.BindEnv("aws.profile", "AWS_PROFILE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("aws.use_bedrock", cfg.AWS.UseBedrock)
	v.Set("aws.region", cfg.AWS.Region)
	v.Set("aws.profile", cfg.AWS.Profile)
	v.Set("defaults.max_workers", cfg.Defaults.MaxWorkers)
	v.Set("defaults.agent_command", cfg.Defaults.AgentCommand)
	v.Set("defaults.agent_args", cfg.Defaults.AgentArgs)
	v.Set("worktrees.base_dir", cfg.Worktrees.BaseDir)
	v.Set("timeouts.unit", cfg.Timeouts.Unit.String())

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
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")

	v.SetDefault("aws.use_bedrock", false)
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")

	v.SetDefault("defaults.max_workers", 0)
	v.SetDefault("defaults.agent_command", "claude")
	v.SetDefault("defaults.agent_args", []string{"-p"})

	v.SetDefault("worktrees.base_dir", "")

	v.SetDefault("timeouts.unit", "0s")
}

// getUserConfigDir returns the XDG config directory for waverunner.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "waverunner")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "waverunner")
	}
	return filepath.Join(home, ".config", "waverunner")
}

// findProjectConfig searches for .waverunner.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".waverunner.yaml")
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

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			MaxWorkers:   0,
			AgentCommand: "claude",
			AgentArgs:    []string{"-p"},
		},
	}
}
