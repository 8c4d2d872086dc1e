package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables into a Config. Fields
// are resolved through their `env` struct tags; unset variables fall back to
// the `default` tag. A field tagged required with no value fails the load.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := populate(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// populate walks a struct value and fills every tagged field from the
// environment, recursing into nested structs.
func populate(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			if err := populate(value); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("env")
		if key == "" {
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("missing required environment variable %s", key)
			}
			raw = field.Tag.Get("default")
			if raw == "" {
				continue
			}
		}

		if err := setField(value, raw); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
	}

	return nil
}

func setField(v reflect.Value, raw string) error {
	// time.Duration is an int64 underneath; check it first.
	if v.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		v.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", v.Kind())
	}
	return nil
}

// Validate checks cross-field constraints that tags cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max conns must be positive, got %d", c.Database.MaxConns)
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min conns must be between 0 and max conns, got %d", c.Database.MinConns)
	}
	if c.Import.MaxFileSize < 1 {
		return fmt.Errorf("import max file size must be positive, got %d", c.Import.MaxFileSize)
	}
	if c.Import.ProgressInterval < 1 {
		return fmt.Errorf("import progress interval must be positive, got %d", c.Import.ProgressInterval)
	}
	if c.Import.MaxRetainedErrors < 1 {
		return fmt.Errorf("import max retained errors must be positive, got %d", c.Import.MaxRetainedErrors)
	}
	if c.Import.KeepAliveInterval < time.Second {
		return fmt.Errorf("import keep-alive interval must be at least 1s, got %s", c.Import.KeepAliveInterval)
	}
	if c.Rate.Enabled && c.Rate.SubmitPerMinute < 1 {
		return fmt.Errorf("rate limit submit per minute must be positive, got %d", c.Rate.SubmitPerMinute)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}
