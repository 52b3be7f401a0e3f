package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// validConfig returns a valid configuration for testing.
func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Role: RoleMaster,
			Host: "0.0.0.0",
			Port: 8000,
		},
		Ollama:  OllamaConfig{BaseURL: "http://localhost:11434"},
		Worker:  WorkerConfig{URL: "http://10.0.0.2:8000"},
		Council: CouncilConfig{ChairmanModel: "phi3.5:mini", Protocol: "pairwise"},
		Timeouts: TimeoutsConfig{
			Generation:  120 * time.Second,
			Connect:     10 * time.Second,
			HealthCheck: 5 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "auto"},
	}
}

func TestValidator_ValidConfig(t *testing.T) {
	if err := ValidateConfig(validConfig()); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidator_EmptyWorkerURLAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.URL = ""
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidator_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad role", func(c *Config) { c.Server.Role = "chairman" }, "server.role"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"empty host", func(c *Config) { c.Server.Host = " " }, "server.host"},
		{"missing ollama url", func(c *Config) { c.Ollama.BaseURL = "" }, "ollama.base_url"},
		{"relative worker url", func(c *Config) { c.Worker.URL = "worker:8000" }, "worker.url"},
		{"ftp worker url", func(c *Config) { c.Worker.URL = "ftp://worker" }, "worker.url"},
		{"empty chairman", func(c *Config) { c.Council.ChairmanModel = "" }, "council.chairman_model"},
		{"bad protocol", func(c *Config) { c.Council.Protocol = "roundrobin" }, "council.protocol"},
		{"negative concurrency", func(c *Config) { c.Council.Concurrency = -1 }, "council.concurrency"},
		{"zero generation timeout", func(c *Config) { c.Timeouts.Generation = 0 }, "timeouts.generation"},
		{"connect over generation", func(c *Config) { c.Timeouts.Connect = time.Hour }, "timeouts.connect"},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"telemetry without name", func(c *Config) { c.Telemetry.Endpoint = "localhost:4318" }, "telemetry.service_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestValidator_UppercaseLevelAccepted(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "WARNING"
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidator_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Role = ""
	cfg.Council.Protocol = ""

	v := NewValidator()
	_ = v.Validate(cfg)
	if len(v.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(v.Errors()), v.Errors())
	}
	if !v.Errors().HasErrors() {
		t.Fatal("HasErrors() = false")
	}
}
