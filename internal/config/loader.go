package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "SCORENFT_"
	envConfig  = "SCORENFT_CONFIG"
	keyDelim   = "."
	structTags = "koanf"
)

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New)
//  2. a YAML file if SCORENFT_CONFIG is set
//  3. env vars with the SCORENFT_ prefix, e.g. SCORENFT_STORE_DRIVER
func Load(_ context.Context) (*Config, error) {
	base := New()
	k := koanf.New(keyDelim)

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// keys stay flat so SCORENFT_QUEUE_SIZE maps to queue_size
	envProvider := env.Provider(envPrefix, keyDelim, func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}
	// the file pointer is not a setting
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: structTags}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite driver", ErrInvalidConfig)
		}
	case DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: redis_url is required for the redis driver", ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.AuthMaxTokenTTLSec <= 0 {
		return fmt.Errorf("%w: auth_max_token_ttl_sec must be positive", ErrInvalidConfig)
	}
	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("%w: kafka_topic is required when kafka_brokers is set", ErrInvalidConfig)
	}
	return nil
}
