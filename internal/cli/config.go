package cli

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds CLI configuration
type Config struct {
	ServerURL      string        `json:"server_url"`
	APIKey         string        `json:"api_key,omitempty"`
	Format         string        `json:"format"`
	Quiet          bool          `json:"quiet"`
	NoColor        bool          `json:"no_color"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ServerURL:      "http://localhost:8080",
		Format:         "table",
		RequestTimeout: 60 * time.Second,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return fmt.Errorf("server URL cannot be empty")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL: %s", c.ServerURL)
	}

	switch c.Format {
	case "table", "json":
	default:
		return fmt.Errorf("invalid format: %s (must be one of: table, json)", c.Format)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}
