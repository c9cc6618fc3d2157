// Package config parses process configuration from the environment once at
// startup. The result is passed explicitly to constructors.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	Server    Server          `envPrefix:"SERVER_"`
	Log       Log             `envPrefix:"LOG_"`
	Auth      Auth            `envPrefix:"AUTH_"`
	Postgres  PostgresConfig  `envPrefix:"POSTGRES_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	Outbox    OutboxConfig    `envPrefix:"OUTBOX_"`
	Projector ProjectorConfig `envPrefix:"PROJECTOR_"`
	Schema    SchemaConfig    `envPrefix:"SCHEMA_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// CommandRetries bounds re-decides after an optimistic concurrency conflict.
	CommandRetries int `env:"COMMAND_RETRIES" envDefault:"3"`
}

type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Auth configures bearer token verification. An empty signing key disables
// authentication, which is only meant for local development.
type Auth struct {
	SigningKey string `env:"JWT_SIGNING_KEY"`
	Issuer     string `env:"JWT_ISSUER" envDefault:"schemaregistry"`
	Audience   string `env:"JWT_AUDIENCE" envDefault:"schemaregistry-api"`
}

// PostgresConfig selects the durable event store. An empty URL runs the
// registry on the in-memory store.
type PostgresConfig struct {
	URL      string `env:"URL"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
}

// RedisConfig enables the Redis projector offset store when URL is set.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig enables outbox publication and Kafka consumption when Brokers
// is set.
type KafkaConfig struct {
	Brokers           []string `env:"BROKERS" envSeparator:","`
	ClientID          string   `env:"CLIENT_ID" envDefault:"schemaregistry"`
	ConsumerGroup     string   `env:"CONSUMER_GROUP" envDefault:"schemaregistry-projector"`
	DefinitionsTopic  string   `env:"DEFINITIONS_TOPIC" envDefault:"registry.definitions"`
	EntitiesTopic     string   `env:"ENTITIES_TOPIC" envDefault:"registry.entities"`
	Partitions        int32    `env:"PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"REPLICATION_FACTOR" envDefault:"1"`
}

type OutboxConfig struct {
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"100"`
}

type ProjectorConfig struct {
	Name         string        `env:"NAME" envDefault:"registry-projector"`
	FlushEvery   int           `env:"FLUSH_EVERY" envDefault:"50"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"500"`
	// OffsetBackend is one of postgres, redis or memory.
	OffsetBackend string `env:"OFFSET_BACKEND" envDefault:"postgres"`
}

type SchemaConfig struct {
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"10m"`
}

// FromEnv parses and validates the configuration.
func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Server.CommandRetries < 0 {
		return fmt.Errorf("SERVER_COMMAND_RETRIES must not be negative")
	}
	if c.Projector.FlushEvery <= 0 {
		return fmt.Errorf("PROJECTOR_FLUSH_EVERY must be positive")
	}
	switch c.Projector.OffsetBackend {
	case "memory":
	case "postgres":
		if c.Postgres.URL == "" {
			return fmt.Errorf("PROJECTOR_OFFSET_BACKEND=postgres requires POSTGRES_URL")
		}
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("PROJECTOR_OFFSET_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown PROJECTOR_OFFSET_BACKEND %q", c.Projector.OffsetBackend)
	}
	if len(c.Kafka.Brokers) > 0 && c.Postgres.URL == "" {
		return fmt.Errorf("KAFKA_BROKERS requires POSTGRES_URL for the outbox")
	}
	return nil
}

// KafkaEnabled reports whether events flow through Kafka.
func (c Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }

// SectionFromEnv parses one section on its own, for tools that need only
// part of the configuration.
func SectionFromEnv[T any](prefix string) (T, error) {
	v, err := env.ParseAsWithOptions[T](env.Options{Prefix: prefix})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse %s config: %w", prefix, err)
	}
	return v, nil
}
