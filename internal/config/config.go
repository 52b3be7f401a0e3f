// Package config loads the server and council settings from defaults,
// config files, .env, environment variables and CLI flags.
package config

import "time"

// Roles a node can run as.
const (
	RoleMaster = "master"
	RoleWorker = "worker"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Council   CouncilConfig   `mapstructure:"council"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Role        string   `mapstructure:"role"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// OllamaConfig configures the local inference backend.
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// WorkerConfig configures the remote worker a master dispatches to.
// An empty URL makes a master generate locally.
type WorkerConfig struct {
	URL string `mapstructure:"url"`
}

// CouncilConfig configures deliberation defaults.
type CouncilConfig struct {
	ChairmanModel string `mapstructure:"chairman_model"`
	Protocol      string `mapstructure:"protocol"`
	// Concurrency caps in-flight generation calls per stage. Zero means unlimited.
	Concurrency int `mapstructure:"concurrency"`
}

// TimeoutsConfig configures gateway timeouts. Bare integers are read as seconds.
type TimeoutsConfig struct {
	Generation  time.Duration `mapstructure:"generation"`
	Connect     time.Duration `mapstructure:"connect"`
	HealthCheck time.Duration `mapstructure:"health_check"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig configures OpenTelemetry export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// IsMaster reports whether the node runs deliberations.
func (c *Config) IsMaster() bool {
	return c.Server.Role == RoleMaster
}

// IsWorker reports whether the node serves generation requests.
func (c *Config) IsWorker() bool {
	return c.Server.Role == RoleWorker
}
