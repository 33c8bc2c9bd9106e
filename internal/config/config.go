// Package config loads and validates application configuration from the
// environment.
package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Executor ExecutorConfig `mapstructure:"executor"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// The URL is optional: without one the service runs on the in-memory stores.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// EngineConfig tunes the orchestration engine.
type EngineConfig struct {
	// ConcurrencyLimit bounds how many items of one task may be dispatched
	// at the same time.
	ConcurrencyLimit int `mapstructure:"concurrency_limit" validate:"required,gte=1,lte=64"`

	// MaxRetries is the per-item retry budget before terminal failure.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=10"`

	// RetryDelayMs is the delay before a failed item is re-admitted.
	RetryDelayMs int `mapstructure:"retry_delay_ms" validate:"gte=0,lte=600000"`
}

// RetryDelay returns the retry delay as a duration.
func (c EngineConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// ExecutorConfig locates the external execution engine that performs the
// dispatched units of work and posts completion events back.
type ExecutorConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`

	// TimeoutMs bounds one StartExecution or GetResult round trip.
	TimeoutMs int `mapstructure:"timeout_ms" validate:"gte=100,lte=120000"`
}
