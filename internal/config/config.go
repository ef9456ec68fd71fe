// Package config defines service configuration and how it is loaded.
package config

import (
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver picks the contract store backend.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	RedisURL    string `koanf:"redis_url"`
	RedisPrefix string `koanf:"redis_prefix"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// AuthAudience is the aud claim call tokens must carry.
	AuthAudience string `koanf:"auth_audience"`
	// AuthMaxTokenTTLSec caps how long a call token may live.
	AuthMaxTokenTTLSec int `koanf:"auth_max_token_ttl_sec"`

	// EventQueueSize bounds the in-memory ledger event queue.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of event delivery workers.
	WorkerCount int `koanf:"worker_count"`
	// ReplayCacheSize bounds how many used call token ids are remembered.
	ReplayCacheSize int `koanf:"replay_cache_size"`

	// KafkaBrokers is a comma separated seed list. Empty disables the
	// Kafka event sink.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`

	// OTelEndpoint is an OTLP/HTTP traces URL. Empty disables tracing.
	OTelEndpoint string `koanf:"otel_endpoint"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		StoreDriver:        DriverMemory,
		SQLitePath:         "scorenft.db",
		RedisPrefix:        "scorenft:",
		AuthAudience:       "scorenft",
		AuthMaxTokenTTLSec: 300,
		EventQueueSize:     10_000,
		WorkerCount:        2,
		ReplayCacheSize:    50_000,
		KafkaTopic:         "scorenft.ledger-events",
	}
}

// AuthMaxTokenTTL returns the token lifetime cap.
func (c *Config) AuthMaxTokenTTL() time.Duration {
	return time.Duration(c.AuthMaxTokenTTLSec) * time.Second
}

// Brokers splits KafkaBrokers into a list, dropping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
