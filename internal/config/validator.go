package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateServer(&cfg.Server)
	v.validateURL("ollama.base_url", cfg.Ollama.BaseURL, true)
	v.validateURL("worker.url", cfg.Worker.URL, false)
	v.validateCouncil(&cfg.Council)
	v.validateTimeouts(&cfg.Timeouts)
	v.validateLog(&cfg.Log)
	if cfg.Telemetry.Endpoint != "" && cfg.Telemetry.ServiceName == "" {
		v.addError("telemetry.service_name", cfg.Telemetry.ServiceName, "required when an endpoint is set")
	}

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Role != RoleMaster && cfg.Role != RoleWorker {
		v.addError("server.role", cfg.Role, "must be one of: master, worker")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if strings.TrimSpace(cfg.Host) == "" {
		v.addError("server.host", cfg.Host, "host required")
	}
}

func (v *Validator) validateURL(field, raw string, required bool) {
	if raw == "" {
		if required {
			v.addError(field, raw, "url required")
		}
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.addError(field, raw, "must be an absolute http(s) url")
	}
}

func (v *Validator) validateCouncil(cfg *CouncilConfig) {
	if strings.TrimSpace(cfg.ChairmanModel) == "" {
		v.addError("council.chairman_model", cfg.ChairmanModel, "model cannot be empty")
	}
	if !core.ReviewProtocol(cfg.Protocol).IsValid() {
		v.addError("council.protocol", cfg.Protocol, "must be one of: pairwise, batched")
	}
	if cfg.Concurrency < 0 {
		v.addError("council.concurrency", cfg.Concurrency, "must be non-negative")
	}
}

func (v *Validator) validateTimeouts(cfg *TimeoutsConfig) {
	for field, d := range map[string]time.Duration{
		"timeouts.generation":   cfg.Generation,
		"timeouts.connect":      cfg.Connect,
		"timeouts.health_check": cfg.HealthCheck,
	} {
		if d <= 0 {
			v.addError(field, d, "must be positive")
		}
	}
	if cfg.Connect > 0 && cfg.Generation > 0 && cfg.Connect > cfg.Generation {
		v.addError("timeouts.connect", cfg.Connect, "must not exceed timeouts.generation")
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "warning": true, "error": true,
	}
	if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[strings.ToLower(cfg.Format)] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
