package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	default:
		return fmt.Errorf("invalid provider %s (must be: anthropic, openai)", provider)
	}

	return nil
}

// ValidateCoordinationURL accepts "", http(s)://host[:port][/path], and
// sqlite://path
func (v *Validator) ValidateCoordinationURL(raw string) error {
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "sqlite://") {
		if strings.TrimPrefix(raw, "sqlite://") == "" {
			return fmt.Errorf("coordination url %q: sqlite path is empty", raw)
		}
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("coordination url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("coordination url %q: scheme must be http, https, or sqlite", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("coordination url %q: missing host", raw)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateCeiling validates a per-minute rate ceiling
func (v *Validator) ValidateCeiling(name string, ceiling int) error {
	if ceiling <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, ceiling)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, profile := range cfg.AI.Profiles {
		if profile.ID == "" {
			errors = append(errors, fmt.Errorf("AI profile %d: ID is required", i))
			continue
		}
		if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
			errors = append(errors, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
		}
	}

	if err := v.ValidateCoordinationURL(cfg.Coordination.URL); err != nil {
		errors = append(errors, err)
	}

	if strings.TrimSpace(cfg.Model.Name) == "" {
		errors = append(errors, fmt.Errorf("model name cannot be empty"))
	}
	if err := v.ValidateTemperature(cfg.Model.Temperature); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateMaxTokens(cfg.Model.MaxTokens); err != nil {
		errors = append(errors, err)
	}

	if cfg.Scheduler.WakeIntervalMinutes <= 0 {
		errors = append(errors, fmt.Errorf("scheduler.wake_interval_minutes must be positive"))
	}
	if cfg.Scheduler.GraceSeconds < 0 {
		errors = append(errors, fmt.Errorf("scheduler.grace_seconds must be >= 0"))
	}
	if cfg.Scheduler.MaxConcurrent < 0 {
		errors = append(errors, fmt.Errorf("scheduler.max_concurrent must be >= 0"))
	}

	if err := v.ValidateCeiling("limits.chat_per_minute", cfg.Limits.ChatPerMinute); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateCeiling("limits.write_per_minute", cfg.Limits.WritePerMinute); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateCeiling("limits.message_per_minute", cfg.Limits.MessagePerMinute); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
