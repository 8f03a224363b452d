// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

// Package config loads and validates the application configuration.
//
// Configuration is layered with koanf: built-in defaults, then an optional
// YAML file, then environment variables (highest priority). Config is
// immutable after Load and safe for concurrent reads.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Cache    CacheConfig    `koanf:"cache"`
	Capture  CaptureConfig  `koanf:"capture"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment variables: HTTP_HOST, HTTP_PORT, HTTP_TIMEOUT, ENVIRONMENT.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// Timeout applies to read, write and shutdown.
	Timeout time.Duration `koanf:"timeout"`

	// Environment is "development" or "production". Production refuses to
	// start without an explicit JWT secret.
	Environment string `koanf:"environment"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the database file; ":memory:" for an ephemeral store.
	Path string `koanf:"path"`

	// Threads limits DuckDB worker threads; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// SecurityConfig holds auth, rate limiting and proxy trust settings.
type SecurityConfig struct {
	// JWTSecret signs operator tokens. Generated at startup when empty in
	// development; required in production.
	JWTSecret string `koanf:"jwt_secret"`

	// SessionTimeout is the JWT lifetime.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// AdminEmail/AdminPassword seed the initial admin account.
	AdminEmail    string `koanf:"admin_email"`
	AdminPassword string `koanf:"admin_password"`

	// DemoEmail/DemoPassword optionally seed a regular operator account.
	DemoEmail    string `koanf:"demo_email"`
	DemoPassword string `koanf:"demo_password"`

	// RateLimitReqs requests per RateLimitWindow on API groups.
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// CaptureRatePerSec throttles the public capture fallback per client IP.
	CaptureRatePerSec float64 `koanf:"capture_rate_per_sec"`
	CaptureRateBurst  int     `koanf:"capture_rate_burst"`

	CORSOrigins    []string `koanf:"cors_origins"`
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// CacheConfig holds the badger-backed link metadata cache settings.
type CacheConfig struct {
	// Path is the badger directory; ignored when InMemory is true.
	Path     string        `koanf:"path"`
	InMemory bool          `koanf:"in_memory"`
	TTL      time.Duration `koanf:"ttl"`
}

// CaptureConfig holds the capture/fan-out pipeline settings.
type CaptureConfig struct {
	// Topic is the pubsub topic carrying capture events to the hub.
	Topic string `koanf:"topic"`

	// BroadcastBuffer is the per-subscriber channel depth; slow operator
	// sockets beyond it have events dropped.
	BroadcastBuffer int `koanf:"broadcast_buffer"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the loaded configuration for internally inconsistent or
// unusable values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		return fmt.Errorf("server.environment must be development or production, got %q", c.Server.Environment)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads cannot be negative")
	}

	if c.Server.Environment == "production" && c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required in production")
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("security.session_timeout must be positive")
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs <= 0 {
			return fmt.Errorf("security.rate_limit_reqs must be positive")
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive")
		}
	}
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			continue
		}
		if _, err := url.Parse(origin); err != nil {
			return fmt.Errorf("security.cors_origins entry %q: %w", origin, err)
		}
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required when cache.in_memory is false")
	}

	if c.Capture.Topic == "" {
		return fmt.Errorf("capture.topic is required")
	}
	if c.Capture.BroadcastBuffer <= 0 {
		return fmt.Errorf("capture.broadcast_buffer must be positive")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}
