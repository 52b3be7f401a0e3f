package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
	envFile    string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "COUNCIL",
		envFile:   ".env",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnvFile sets the dotenv file read before the environment. Empty disables it.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// legacyEnv maps config keys to the unprefixed variable names of older deployments.
var legacyEnv = map[string]string{
	"server.role":            "ROLE",
	"server.host":            "HOST",
	"server.port":            "PORT",
	"ollama.base_url":        "OLLAMA_BASE_URL",
	"worker.url":             "WORKER_URL",
	"council.chairman_model": "CHAIRMAN_MODEL",
	"timeouts.generation":    "GENERATION_TIMEOUT",
	"timeouts.health_check":  "HEALTH_CHECK_TIMEOUT",
	"log.level":              "LOG_LEVEL",
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (COUNCIL_*, then the legacy unprefixed names)
// 3. .env file (never overrides variables already set)
// 4. Project config (.council/config.yaml)
// 5. User config (~/.config/council/config.yaml)
// 6. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", l.envFile, err)
		}
	}

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		canonical := l.envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := l.v.BindEnv(key, canonical, legacy); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".council")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "council"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := l.v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Server.Role = strings.ToLower(strings.TrimSpace(cfg.Server.Role))
	cfg.Council.Protocol = strings.ToLower(strings.TrimSpace(cfg.Council.Protocol))
	return &cfg, nil
}

// secondsToDurationHook reads bare numbers as seconds, matching the
// GENERATION_TIMEOUT=120 form of older deployments.
func secondsToDurationHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("server.role", RoleWorker)
	l.v.SetDefault("server.host", "0.0.0.0")
	l.v.SetDefault("server.port", 8000)
	l.v.SetDefault("server.cors_origins", []string{"*"})

	l.v.SetDefault("ollama.base_url", "http://localhost:11434")
	l.v.SetDefault("worker.url", "http://localhost:8000")

	l.v.SetDefault("council.chairman_model", "phi3.5:mini")
	l.v.SetDefault("council.protocol", "pairwise")
	l.v.SetDefault("council.concurrency", 0)

	l.v.SetDefault("timeouts.generation", "120s")
	l.v.SetDefault("timeouts.connect", "10s")
	l.v.SetDefault("timeouts.health_check", "5s")

	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("telemetry.endpoint", "")
	l.v.SetDefault("telemetry.insecure", false)
	l.v.SetDefault("telemetry.service_name", "llm-council")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}
