package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultDirName is the install root under the user's home directory
const DefaultDirName = ".mission-control"

// ConfigFileName is the config file inside the install root
const ConfigFileName = "mission-control.json"

// envBindings maps config keys to the environment variables that set them,
// in addition to the automatic MC_<KEY> form.
var envBindings = map[string][]string{
	"root":                            {"MC_ROOT"},
	"anthropic_api_key":               {"ANTHROPIC_API_KEY"},
	"openai_api_key":                  {"OPENAI_API_KEY"},
	"coordination.url":                {"MC_COORDINATION_URL", "CONVEX_URL"},
	"coordination.token":              {"MC_COORDINATION_TOKEN", "CONVEX_DEPLOY_KEY"},
	"model.name":                      {"MC_MODEL"},
	"scheduler.wake_interval_minutes": {"MC_WAKE_INTERVAL_MINUTES"},
	"limits.chat_per_minute":          {"MC_CHAT_RATE_LIMIT"},
	"limits.write_per_minute":         {"MC_WRITE_RATE_LIMIT"},
	"limits.message_per_minute":       {"MC_MESSAGE_RATE_LIMIT"},
	"logging.level":                   {"MC_LOG_LEVEL"},
	"metrics.addr":                    {"MC_METRICS_ADDR"},
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file when present and applies environment
// overrides. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("MC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.Root = filepath.Join(home, DefaultDirName)
	}
	if cfg.PIDFile == "" {
		cfg.PIDFile = filepath.Join(cfg.Root, "mission-control.pid")
	}

	foldCredentials(cfg)
	return cfg, nil
}

// foldCredentials turns the well-known key fields into profiles when none
// were configured explicitly. Anthropic is preferred over OpenAI.
func foldCredentials(cfg *Config) {
	if len(cfg.AI.Profiles) > 0 {
		return
	}
	if cfg.AnthropicAPIKey != "" {
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       "anthropic-env",
			Provider: "anthropic",
			APIKey:   cfg.AnthropicAPIKey,
			Priority: 1,
		})
	}
	if cfg.OpenAIAPIKey != "" {
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       "openai-env",
			Provider: "openai",
			APIKey:   cfg.OpenAIAPIKey,
			Priority: 2,
		})
	}
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("root", d.Root)
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("pid_file", d.PIDFile)

	v.SetDefault("coordination.url", d.Coordination.URL)
	v.SetDefault("coordination.token", d.Coordination.Token)
	v.SetDefault("coordination.timeout_seconds", d.Coordination.TimeoutSeconds)

	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("model.max_retries", d.Model.MaxRetries)

	v.SetDefault("scheduler.wake_interval_minutes", d.Scheduler.WakeIntervalMinutes)
	v.SetDefault("scheduler.grace_seconds", d.Scheduler.GraceSeconds)
	v.SetDefault("scheduler.run_timeout_minutes", d.Scheduler.RunTimeoutMinutes)
	v.SetDefault("scheduler.max_concurrent", d.Scheduler.MaxConcurrent)
	v.SetDefault("scheduler.immediate", d.Scheduler.Immediate)

	v.SetDefault("limits.chat_per_minute", d.Limits.ChatPerMinute)
	v.SetDefault("limits.write_per_minute", d.Limits.WritePerMinute)
	v.SetDefault("limits.message_per_minute", d.Limits.MessagePerMinute)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Save writes cfg to the config file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("root", cfg.Root)
	v.Set("coordination", cfg.Coordination)
	v.Set("model", cfg.Model)
	v.Set("ai", cfg.AI)
	v.Set("scheduler", cfg.Scheduler)
	v.Set("limits", cfg.Limits)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("pid_file", cfg.PIDFile)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}
	return os.Chmod(configPath, 0o600)
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	if root := os.Getenv("MC_ROOT"); root != "" {
		return filepath.Join(root, ConfigFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultDirName, ConfigFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
