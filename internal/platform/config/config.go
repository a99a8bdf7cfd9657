// Package config loads and validates service configuration from the
// environment. The process refuses to start on an invalid configuration
// instead of failing later mid-pipeline.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Certificate CertificateConfig
	Authority   AuthorityConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr             string        `env:"NOMINA_ADDR" envDefault:":8080"`
	LogLevel         string        `env:"NOMINA_LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout  time.Duration `env:"NOMINA_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	BatchConcurrency int           `env:"NOMINA_BATCH_CONCURRENCY" envDefault:"4"`
}

// DatabaseConfig points at the document store.
type DatabaseConfig struct {
	URL          string        `env:"NOMINA_DATABASE_URL"`
	MaxOpenConns int           `env:"NOMINA_DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int           `env:"NOMINA_DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnLifetime time.Duration `env:"NOMINA_DATABASE_CONN_LIFETIME" envDefault:"30m"`
}

// RedisConfig configures the distributed document lock. An empty URL means
// single-instance deployment with in-process locking.
type RedisConfig struct {
	URL          string        `env:"NOMINA_REDIS_URL"`
	PoolSize     int           `env:"NOMINA_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"NOMINA_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"NOMINA_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"NOMINA_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"NOMINA_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the audit trail publisher. Empty brokers mean the
// trail stays in process memory.
type KafkaConfig struct {
	Brokers []string `env:"NOMINA_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"NOMINA_KAFKA_TOPIC" envDefault:"nomina.audit"`
}

// CertificateConfig locates the signing certificate bundle.
type CertificateConfig struct {
	Path     string `env:"NOMINA_CERT_PATH"`
	Password string `env:"NOMINA_CERT_PASSWORD"`
}

// AuthorityConfig configures the submission endpoint.
type AuthorityConfig struct {
	Production  bool          `env:"NOMINA_AUTHORITY_PRODUCTION" envDefault:"false"`
	BaseURL     string        `env:"NOMINA_AUTHORITY_BASE_URL"`
	TestSetID   string        `env:"NOMINA_AUTHORITY_TEST_SET_ID"`
	Timeout     time.Duration `env:"NOMINA_AUTHORITY_TIMEOUT" envDefault:"30s"`
	MaxAttempts int           `env:"NOMINA_AUTHORITY_MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay  time.Duration `env:"NOMINA_AUTHORITY_RETRY_DELAY" envDefault:"2s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the pipeline cannot run without.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("NOMINA_DATABASE_URL is required")
	}
	if c.Certificate.Path == "" {
		return fmt.Errorf("NOMINA_CERT_PATH is required")
	}
	if c.Certificate.Password == "" {
		return fmt.Errorf("NOMINA_CERT_PASSWORD is required")
	}
	if c.Authority.MaxAttempts < 1 {
		return fmt.Errorf("NOMINA_AUTHORITY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Server.BatchConcurrency < 1 {
		return fmt.Errorf("NOMINA_BATCH_CONCURRENCY must be at least 1")
	}
	if !c.Authority.Production && c.Authority.BaseURL == "" && c.Authority.TestSetID == "" {
		return fmt.Errorf("NOMINA_AUTHORITY_TEST_SET_ID is required for the habilitation environment")
	}
	return nil
}
