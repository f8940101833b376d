package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the inference API server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cleanup  CleanupConfig
}

type ServerConfig struct {
	Port          int
	Env           string
	MaxUploadSize int64
	RateLimit     int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL           string
	ConsumerGroup string
}

type CleanupConfig struct {
	PurgeTimeout time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:          envInt("INFERENCE_PORT", 8080),
			Env:           envString("INFERENCE_ENV", "development"),
			MaxUploadSize: int64(envInt("INFERENCE_MAX_UPLOAD_BYTES", 10<<20)),
			RateLimit:     envInt("INFERENCE_RATE_LIMIT_PER_MIN", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:           os.Getenv("REDIS_URL"),
			ConsumerGroup: envString("REDIS_CONSUMER_GROUP", "inference-api"),
		},
		Cleanup: CleanupConfig{
			PurgeTimeout: envDuration("CLEANUP_PURGE_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("INFERENCE_MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadSize)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
