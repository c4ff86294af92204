package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables with the RESTYLE_ prefix override file values,
	// e.g. RESTYLE_SERVER_PORT, RESTYLE_DATABASE_URL.
	v.SetEnvPrefix("RESTYLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the default value for every setting so a bare
// environment still yields a runnable configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("pipeline.worker_count", 5)
	v.SetDefault("pipeline.queue_size", 100)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.retry_backoff_seconds", 1)
	v.SetDefault("pipeline.dequeue_rate", 10)
	v.SetDefault("pipeline.dequeue_window_seconds", 10)
	v.SetDefault("pipeline.transform_timeout_seconds", 120)

	v.SetDefault("webhook.request_timeout_seconds", 5)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.retry_backoff_seconds", 1)
	v.SetDefault("webhook.queue_size", 256)

	v.SetDefault("events.heartbeat_seconds", 30)
	v.SetDefault("events.subscriber_buffer", 64)

	v.SetDefault("storage.blob_dir", "data/blobs")

	v.SetDefault("transform.gemini_api_key", "")
	v.SetDefault("transform.model_name", "gemini-2.0-flash-exp")
}
