// Package config loads application configuration from environment variables
// and an optional .env file via viper. Environment variables take precedence
// over .env file values, which take precedence over defaults.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all server configuration.
type Config struct {
	AppEnv          string // Application environment (dev, staging, prod)
	HTTPAddr        string // HTTP server bind address
	MetricsAddr     string // Metrics server bind address
	Env             string // Evaluation environment the registry is loaded for
	RegistryPath    string // Path to the flag/experiment definitions YAML
	AdminAPIKey     string // Bearer key required for write operations
	AssignmentStore string // Assignment persistence backend (memory, file, postgres)
	AssignmentFile  string // JSON file path when AssignmentStore is "file"
	DatabaseDSN     string // PostgreSQL connection string when AssignmentStore is "postgres"
	WebhookURL      string // Tracking event sink, empty disables dispatch
	WebhookSecret   string // HMAC secret for tracking payload signatures
	RateLimitPerIP  int    // Requests per minute per client IP
	AuthTokenPrefix string // Prefix expected on issued API tokens
}

// Load reads configuration from the environment and an optional .env file.
// It does not enforce production constraints; call Validate for that.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	_ = v.ReadInConfig() // .env is optional
	v.AutomaticEnv()

	setDefaults(v)

	return &Config{
		AppEnv:          v.GetString("APP_ENV"),
		HTTPAddr:        v.GetString("APP_HTTP_ADDR"),
		MetricsAddr:     v.GetString("METRICS_ADDR"),
		Env:             v.GetString("ENV"),
		RegistryPath:    v.GetString("REGISTRY_PATH"),
		AdminAPIKey:     v.GetString("ADMIN_API_KEY"),
		AssignmentStore: v.GetString("ASSIGNMENT_STORE"),
		AssignmentFile:  v.GetString("ASSIGNMENT_FILE"),
		DatabaseDSN:     v.GetString("DB_DSN"),
		WebhookURL:      v.GetString("WEBHOOK_URL"),
		WebhookSecret:   v.GetString("WEBHOOK_SECRET"),
		RateLimitPerIP:  v.GetInt("RATE_LIMIT_PER_IP"),
		AuthTokenPrefix: v.GetString("AUTH_TOKEN_PREFIX"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_HTTP_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("ENV", "production")
	v.SetDefault("REGISTRY_PATH", "registry.yaml")
	v.SetDefault("ADMIN_API_KEY", "admin-123") // Change in production!
	v.SetDefault("ASSIGNMENT_STORE", "memory")
	v.SetDefault("ASSIGNMENT_FILE", "assignments.json")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("RATE_LIMIT_PER_IP", 100)
	v.SetDefault("AUTH_TOKEN_PREFIX", "vck_")
}

// ValidationError describes a single failed configuration constraint.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks that the configuration is suitable to start the server
// with, and applies stricter rules when AppEnv is prod/production.
func (c *Config) Validate() error {
	switch c.AssignmentStore {
	case "memory", "file", "postgres":
	default:
		return ValidationError{
			Field:   "ASSIGNMENT_STORE",
			Message: fmt.Sprintf("must be 'memory', 'file' or 'postgres', got '%s'", c.AssignmentStore),
		}
	}

	if c.AssignmentStore == "file" && c.AssignmentFile == "" {
		return ValidationError{
			Field:   "ASSIGNMENT_FILE",
			Message: "file path is required when ASSIGNMENT_STORE=file",
		}
	}

	if c.AssignmentStore == "postgres" && c.DatabaseDSN == "" {
		return ValidationError{
			Field:   "DB_DSN",
			Message: "database DSN is required when ASSIGNMENT_STORE=postgres",
		}
	}

	if c.HTTPAddr == "" {
		return ValidationError{
			Field:   "APP_HTTP_ADDR",
			Message: "HTTP server address cannot be empty",
		}
	}

	if c.MetricsAddr == "" {
		return ValidationError{
			Field:   "METRICS_ADDR",
			Message: "metrics server address cannot be empty",
		}
	}

	if c.Env == "" {
		return ValidationError{
			Field:   "ENV",
			Message: "environment name cannot be empty",
		}
	}

	if c.RegistryPath == "" {
		return ValidationError{
			Field:   "REGISTRY_PATH",
			Message: "registry path cannot be empty",
		}
	}

	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return ValidationError{
			Field:   "WEBHOOK_SECRET",
			Message: "webhook secret is required when WEBHOOK_URL is set",
		}
	}

	if c.AppEnv == "prod" || c.AppEnv == "production" {
		if c.AdminAPIKey == "admin-123" {
			return ValidationError{
				Field:   "ADMIN_API_KEY",
				Message: "default admin API key 'admin-123' is not allowed in production",
			}
		}
	}

	return nil
}
