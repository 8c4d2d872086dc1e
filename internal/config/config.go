// Package config provides centralized configuration management for the
// service. Settings come from environment variables with sensible defaults
// and are validated on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout must stay 0 while SSE connections are open-ended
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" required:"true"`

	// MaxConns is the maximum number of pooled connections (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections kept open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is how long an idle connection is kept (default: 15m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"15m"`
}

// ImportConfig holds CSV import pipeline settings.
type ImportConfig struct {
	// MaxFileSize is the maximum accepted upload size in bytes (default: 50MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"52428800"`

	// TempDir is where uploads are spooled before processing.
	// Empty means the OS temp directory.
	TempDir string `env:"IMPORT_TEMP_DIR"`

	// ProgressInterval is the row batch between progress flushes (default: 50)
	ProgressInterval int `env:"IMPORT_PROGRESS_INTERVAL" default:"50"`

	// MaxRetainedErrors caps error records kept per job (default: 50)
	MaxRetainedErrors int `env:"IMPORT_MAX_RETAINED_ERRORS" default:"50"`

	// JobTimeout is the maximum duration of one import run (default: 10m)
	JobTimeout time.Duration `env:"IMPORT_JOB_TIMEOUT" default:"10m"`

	// KeepAliveInterval is how often idle observer connections receive a
	// keep-alive frame (default: 15s)
	KeepAliveInterval time.Duration `env:"IMPORT_KEEPALIVE_INTERVAL" default:"15s"`
}

// RateLimitConfig holds per-IP rate limiting for submission endpoints.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// SubmitPerMinute is uploads allowed per IP per minute (default: 10)
	SubmitPerMinute int `env:"RATE_LIMIT_SUBMIT" default:"10"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
