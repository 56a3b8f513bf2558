package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main Mission Control configuration
type Config struct {
	// Install root holding agents/, memory/, logs/, workspace/
	Root string `json:"root" mapstructure:"root"`

	// Well-known credential sources; folded into AI.Profiles on load
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty" mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `json:"openai_api_key,omitempty" mapstructure:"openai_api_key"`

	Coordination CoordinationConfig `json:"coordination" mapstructure:"coordination"`
	Model        ModelConfig        `json:"model" mapstructure:"model"`
	AI           AIConfig           `json:"ai" mapstructure:"ai"`
	Scheduler    SchedulerConfig    `json:"scheduler" mapstructure:"scheduler"`
	Limits       LimitsConfig       `json:"limits" mapstructure:"limits"`
	Logging      LoggingConfig      `json:"logging" mapstructure:"logging"`
	Metrics      MetricsConfig      `json:"metrics" mapstructure:"metrics"`

	PIDFile string `json:"pid_file" mapstructure:"pid_file"`
}

// CoordinationConfig locates the shared coordination store. An empty URL
// runs every agent offline.
type CoordinationConfig struct {
	URL            string `json:"url" mapstructure:"url"` // http(s)://... or sqlite://path
	Token          string `json:"token,omitempty" mapstructure:"token"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// ModelConfig holds model request parameters
type ModelConfig struct {
	Name        string  `json:"name" mapstructure:"name"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries  int     `json:"max_retries" mapstructure:"max_retries"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
	Model    string `json:"model,omitempty" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// SchedulerConfig holds wake cadence settings
type SchedulerConfig struct {
	WakeIntervalMinutes int  `json:"wake_interval_minutes" mapstructure:"wake_interval_minutes"`
	GraceSeconds        int  `json:"grace_seconds" mapstructure:"grace_seconds"`
	RunTimeoutMinutes   int  `json:"run_timeout_minutes" mapstructure:"run_timeout_minutes"`
	MaxConcurrent       int  `json:"max_concurrent" mapstructure:"max_concurrent"`
	Immediate           bool `json:"immediate" mapstructure:"immediate"`
}

// LimitsConfig holds per-agent per-minute ceilings
type LimitsConfig struct {
	ChatPerMinute    int `json:"chat_per_minute" mapstructure:"chat_per_minute"`
	WritePerMinute   int `json:"write_per_minute" mapstructure:"write_per_minute"`
	MessagePerMinute int `json:"message_per_minute" mapstructure:"message_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `json:"level" mapstructure:"level"`
	File     string `json:"file" mapstructure:"file"`
	Pretty   bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize  int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge   int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress bool   `json:"compress" mapstructure:"compress"`
}

// MetricsConfig holds the Prometheus listener address; empty disables it
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Coordination: CoordinationConfig{
			TimeoutSeconds: 0,
		},
		Model: ModelConfig{
			Name:        "claude-sonnet-4-20250514",
			Temperature: 0.7,
			MaxTokens:   1024,
			MaxRetries:  3,
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Scheduler: SchedulerConfig{
			WakeIntervalMinutes: 15,
			GraceSeconds:        30,
			RunTimeoutMinutes:   0,
			Immediate:           true,
		},
		Limits: LimitsConfig{
			ChatPerMinute:    30,
			WritePerMinute:   60,
			MessagePerMinute: 20,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Pretty:   true,
			MaxSize:  100,
			MaxAge:   7,
			Compress: true,
		},
	}
}

// WakeInterval returns the scheduler tick period
func (c *Config) WakeInterval() time.Duration {
	return time.Duration(c.Scheduler.WakeIntervalMinutes) * time.Minute
}

// Grace returns how long shutdown waits for in-flight runs
func (c *Config) Grace() time.Duration {
	return time.Duration(c.Scheduler.GraceSeconds) * time.Second
}

// RunTimeout returns the per-run deadline; zero means none
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Scheduler.RunTimeoutMinutes) * time.Minute
}

// CoordinationTimeout returns the HTTP store request timeout; zero means none
func (c *Config) CoordinationTimeout() time.Duration {
	return time.Duration(c.Coordination.TimeoutSeconds) * time.Second
}

// String returns a JSON representation of the config with credentials masked
func (c *Config) String() string {
	masked := *c
	masked.AnthropicAPIKey = mask(c.AnthropicAPIKey)
	masked.OpenAIAPIKey = mask(c.OpenAIAPIKey)
	masked.Coordination.Token = mask(c.Coordination.Token)
	masked.AI.Profiles = make([]AIProfile, len(c.AI.Profiles))
	for i, p := range c.AI.Profiles {
		p.APIKey = mask(p.APIKey)
		masked.AI.Profiles[i] = p
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// Validate checks if the configuration is valid. Missing model credentials
// and a malformed coordination endpoint are fatal.
func (c *Config) Validate() error {
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: set ANTHROPIC_API_KEY, OPENAI_API_KEY, or ai.profiles")
	}

	v := NewValidator()
	if errs := v.ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
