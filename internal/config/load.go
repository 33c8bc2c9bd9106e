package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for all configuration environment variables,
// e.g. GENBATCH_SERVER_PORT or GENBATCH_ENGINE_CONCURRENCY_LIMIT.
const envPrefix = "GENBATCH"

// Load reads configuration from environment variables, applies defaults and
// validates the result. Environment variables take precedence over defaults.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults double as the key registry: viper only maps environment
	// variables onto keys it already knows about during Unmarshal.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.url", "")
	v.SetDefault("engine.concurrency_limit", 2)
	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.retry_delay_ms", 2000)
	v.SetDefault("executor.url", "http://localhost:8090")
	v.SetDefault("executor.timeout_ms", 30000)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
