package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort string
	ServerHost string

	// Database configuration
	DBDriver string
	DBDSN    string

	// Logging
	LogLevel string

	// Google OAuth client
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleAuthURL      string
	GoogleTokenURL     string
	GoogleTokenTimeout time.Duration

	// Gmail API
	GmailEndpoint       string
	GmailUserID         string
	GmailMaxResults     int
	GmailRequestTimeout time.Duration

	// Ingestion pipeline and scheduler
	IngestEnabled           bool
	IngestInterval          time.Duration
	IngestInitialDelay      time.Duration
	IngestLookbackDays      int
	IngestRetryCount        int
	IngestRetryDelay        time.Duration
	IngestMaxTokenRefreshes int
	IngestFetchConcurrency  int
	IngestRunTimeout        time.Duration
	ReextractAfterRun       bool

	// Redis run lock (optional)
	RedisURL     string
	RedisLockTTL time.Duration

	// Admin API
	AdminAPIKey      string
	DisableAdminAuth bool

	// Compiled extraction rules kept in memory
	RuleCacheSize int
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid server port: %s", c.ServerPort)
	}

	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s (must be one of: sqlite3, postgres)", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	isValidLogLevel := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValidLogLevel = true
			break
		}
	}
	if !isValidLogLevel {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.GoogleTokenTimeout <= 0 {
		return fmt.Errorf("google token timeout must be positive")
	}
	if c.GmailMaxResults < 1 {
		return fmt.Errorf("gmail max results must be at least 1")
	}
	if c.GmailRequestTimeout <= 0 {
		return fmt.Errorf("gmail request timeout must be positive")
	}

	if c.IngestInterval <= 0 {
		return fmt.Errorf("ingest interval must be positive")
	}
	if c.IngestInitialDelay < 0 {
		return fmt.Errorf("ingest initial delay must be non-negative")
	}
	if c.IngestLookbackDays < 1 {
		return fmt.Errorf("ingest lookback days must be at least 1")
	}
	if c.IngestRetryCount < 1 {
		return fmt.Errorf("ingest retry count must be at least 1")
	}
	if c.IngestRetryDelay < 0 {
		return fmt.Errorf("ingest retry delay must be non-negative")
	}
	if c.IngestMaxTokenRefreshes < 0 {
		return fmt.Errorf("max token refreshes must be non-negative")
	}
	if c.IngestFetchConcurrency < 1 || c.IngestFetchConcurrency > 32 {
		return fmt.Errorf("fetch concurrency must be between 1 and 32")
	}
	if c.IngestRunTimeout < 0 {
		return fmt.Errorf("ingest run timeout must be non-negative")
	}

	if c.RedisURL != "" && c.RedisLockTTL <= 0 {
		return fmt.Errorf("redis lock TTL must be positive")
	}

	if !c.DisableAdminAuth && c.AdminAPIKey == "" {
		return fmt.Errorf("admin API key is required unless admin auth is disabled")
	}

	if c.RuleCacheSize < 1 {
		return fmt.Errorf("rule cache size must be at least 1")
	}

	return nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

// OAuthConfigured reports whether a Google OAuth client is set up
func (c *Config) OAuthConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
