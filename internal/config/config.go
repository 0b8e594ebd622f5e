// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${VAR} references expanded from the environment
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv("config.yaml")
//	dbPath := cfg.Storage.DatabasePath
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmynk/splitsession/internal/payment"
)

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Session       SessionConfig       `yaml:"session"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Auth          AuthConfig          `yaml:"auth"`
	Payment       payment.Config      `yaml:"payment"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port          int    `yaml:"port"`
	StaticDir     string `yaml:"static_dir"`
	AllowedOrigin string `yaml:"allowed_origin"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	Driver       string `yaml:"driver"` // sqlite or memory
	DatabasePath string `yaml:"database_path"`
}

// SessionConfig holds session expiry limits, in minutes
type SessionConfig struct {
	DefaultExpiryMinutes int `yaml:"default_expiry_minutes"`
	MaxExpiryMinutes     int `yaml:"max_expiry_minutes"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AuthConfig holds organizer token settings
type AuthConfig struct {
	TokenSecret   string `yaml:"token_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${OPENAI_API_KEY})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnvInt("PORT", 8080),
			StaticDir:     getEnv("STATIC_PATH", "./static"),
			AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		},
		Storage: StorageConfig{
			Driver:       getEnv("STORAGE_DRIVER", "sqlite"),
			DatabasePath: getEnv("DB_PATH", "./data/sessions.db"),
		},
		Session: SessionConfig{
			DefaultExpiryMinutes: getEnvInt("SESSION_DEFAULT_EXPIRY_MINUTES", 30),
			MaxExpiryMinutes:     getEnvInt("SESSION_MAX_EXPIRY_MINUTES", 1440),
		},
		OpenAI: OpenAIConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o"),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			TimeoutSeconds: getEnvInt("OPENAI_TIMEOUT_SECONDS", 60),
		},
		Auth: AuthConfig{
			TokenSecret:   os.Getenv("TOKEN_SECRET"),
			TokenTTLHours: getEnvInt("TOKEN_TTL_HOURS", 48),
		},
		Payment: payment.Config{
			Handle: os.Getenv("PAYMENT_HANDLE"),
			Name:   os.Getenv("PAYMENT_NAME"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
			Metrics: MetricsConfig{
				Enabled: getEnvBool("METRICS_ENABLED", true),
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// LoadOrEnv tries to load from the given path, falls back to environment variables
func LoadOrEnv(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// ApplyDefaults fills zero values left by a partial YAML file.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.AllowedOrigin == "" {
		c.Server.AllowedOrigin = "*"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "./data/sessions.db"
	}
	if c.Session.DefaultExpiryMinutes == 0 {
		c.Session.DefaultExpiryMinutes = 30
	}
	if c.Session.MaxExpiryMinutes == 0 {
		c.Session.MaxExpiryMinutes = 1440
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o"
	}
	if c.OpenAI.TimeoutSeconds == 0 {
		c.OpenAI.TimeoutSeconds = 60
	}
	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 48
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "memory" {
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite or memory, got %q", c.Storage.Driver))
	}
	if c.Session.DefaultExpiryMinutes < 1 || c.Session.DefaultExpiryMinutes > c.Session.MaxExpiryMinutes {
		errs = append(errs, fmt.Errorf("session.default_expiry_minutes must be between 1 and %d", c.Session.MaxExpiryMinutes))
	}
	if c.Auth.TokenSecret == "" {
		errs = append(errs, errors.New("auth.token_secret is required (TOKEN_SECRET)"))
	}
	return errors.Join(errs...)
}

// OpenAITimeout returns the receipt analysis timeout.
func (c *Config) OpenAITimeout() time.Duration {
	return time.Duration(c.OpenAI.TimeoutSeconds) * time.Second
}

// TokenTTL returns how long organizer tokens stay valid.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// GetAPIKey returns configValue, or the first non-empty environment variable.
func (c *Config) GetAPIKey(configValue string, envVarNames ...string) string {
	if configValue != "" {
		return configValue
	}
	for _, envVar := range envVarNames {
		if val := os.Getenv(envVar); val != "" {
			return val
		}
	}
	return ""
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.Atoi(val); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.ParseBool(val); err == nil {
			return result
		}
	}
	return fallback
}
