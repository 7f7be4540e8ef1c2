// Package config loads service configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Printendo/jose/internal/logging"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Timeouts in seconds.
	ReadTimeout   int `yaml:"read_timeout"`
	WriteTimeout  int `yaml:"write_timeout"`
	ShutdownGrace int `yaml:"shutdown_grace"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	// ConnMaxLifetime in seconds.
	ConnMaxLifetime int `yaml:"conn_max_lifetime"`
}

// RateLimitConfig configures per-client request throttling.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   logging.Config  `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration. Precedence, lowest to highest: built-in defaults,
// the YAML file named by JCOIN_CONFIG (if any), environment variables. A .env
// file is honored for local runs.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("JCOIN_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required (set DATABASE_URL)")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   15,
			WriteTimeout:  15,
			ShutdownGrace: 10,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    16,
			MaxIdleConns:    4,
			ConnMaxLifetime: 300,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "JCOIN_HOST")
	setInt(&cfg.Server.Port, "JCOIN_PORT")
	setInt(&cfg.Server.ReadTimeout, "JCOIN_READ_TIMEOUT")
	setInt(&cfg.Server.WriteTimeout, "JCOIN_WRITE_TIMEOUT")
	setInt(&cfg.Server.ShutdownGrace, "JCOIN_SHUTDOWN_GRACE")

	setString(&cfg.Database.Driver, "JCOIN_DB_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setInt(&cfg.Database.MaxOpenConns, "JCOIN_DB_MAX_OPEN_CONNS")
	setInt(&cfg.Database.MaxIdleConns, "JCOIN_DB_MAX_IDLE_CONNS")
	setInt(&cfg.Database.ConnMaxLifetime, "JCOIN_DB_CONN_MAX_LIFETIME")

	setString(&cfg.Logging.Level, "JCOIN_LOG_LEVEL")
	setString(&cfg.Logging.Format, "JCOIN_LOG_FORMAT")
	setString(&cfg.Logging.Output, "JCOIN_LOG_OUTPUT")

	setInt(&cfg.RateLimit.RequestsPerSecond, "JCOIN_RATE_LIMIT_RPS")
	setInt(&cfg.RateLimit.Burst, "JCOIN_RATE_LIMIT_BURST")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
