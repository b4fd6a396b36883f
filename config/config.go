// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Schema   SchemaConfig   `yaml:"schema"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig configures the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "memory", "sqlite3", "postgres" or "pgx"
	DSN    string `yaml:"dsn"`
}

// SchemaConfig locates the entity schema.
type SchemaConfig struct {
	Path string `yaml:"path"` // relative paths resolve against the config file
}

// APIConfig configures the HTTP API surface.
type APIConfig struct {
	BasePath string `yaml:"base_path"` // default: /api/<entity>
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Drivers accepted in database.driver.
var Drivers = []string{"memory", "sqlite3", "postgres", "pgx"}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.Schema.Path != "" && !filepath.IsAbs(cfg.Schema.Path) {
		cfg.Schema.Path = filepath.Join(filepath.Dir(path), cfg.Schema.Path)
	}

	return cfg, nil
}

// Parse reads configuration from YAML bytes. Environment variables in the
// form ${NAME} are expanded first, then TABLECRUD_* overrides are applied.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	TABLECRUD_SCHEMA_PATH          - Schema file (required)
//	TABLECRUD_DATABASE_DRIVER      - memory, sqlite3, postgres or pgx (default: sqlite3)
//	TABLECRUD_DATABASE_DSN         - Data source name (default: tablecrud.db)
//	TABLECRUD_SERVER_HOST          - Server host (default: 0.0.0.0)
//	TABLECRUD_SERVER_PORT          - Server port (default: 8080)
//	TABLECRUD_SERVER_READ_TIMEOUT  - Read timeout (default: 30s)
//	TABLECRUD_SERVER_WRITE_TIMEOUT - Write timeout (default: 60s)
//	TABLECRUD_API_BASE_PATH        - Base path of the operations (default: /api/<entity>)
//	TABLECRUD_LOG_LEVEL            - Log level: debug, info, warn, error (default: info)
//	TABLECRUD_LOG_FORMAT           - Log format: json or console (default: json)
//	TABLECRUD_METRICS_ENABLED      - Enable the metrics endpoint
//	TABLECRUD_METRICS_PATH         - Metrics path (default: /metrics)
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set TABLECRUD_SCHEMA_PATH")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("TABLECRUD_SCHEMA_PATH") != ""
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies TABLECRUD_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("TABLECRUD_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TABLECRUD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TABLECRUD_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("TABLECRUD_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("TABLECRUD_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TABLECRUD_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Schema and API
	if v := os.Getenv("TABLECRUD_SCHEMA_PATH"); v != "" {
		cfg.Schema.Path = v
	}
	if v := os.Getenv("TABLECRUD_API_BASE_PATH"); v != "" {
		cfg.API.BasePath = v
	}

	// Logging configuration
	if v := os.Getenv("TABLECRUD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TABLECRUD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("TABLECRUD_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("TABLECRUD_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Database.Driver == "" || cfg.Database.Driver == "sqlite" {
		cfg.Database.Driver = "sqlite3"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite3" {
		cfg.Database.DSN = "tablecrud.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Schema.Path == "" {
		return fmt.Errorf("schema.path is required")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	valid := false
	for _, d := range Drivers {
		if cfg.Database.Driver == d {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("database.driver must be one of: %s, got %q", strings.Join(Drivers, ", "), cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver != "memory" {
		return fmt.Errorf("database.dsn is required for driver %q", cfg.Database.Driver)
	}

	if cfg.API.BasePath != "" && !strings.HasPrefix(cfg.API.BasePath, "/") {
		return fmt.Errorf("api.base_path must start with '/', got %q", cfg.API.BasePath)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	return nil
}
