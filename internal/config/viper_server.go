package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the services read
const EnvPrefix = "LEDGER"

// LoadServerConfigWithViper loads configuration using Viper. Precedence is
// environment, then config file, then defaults.
func LoadServerConfigWithViper(v *viper.Viper) (*Config, error) {
	setServerDefaults(v)
	setupServerEnvBinding(v)

	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := unmarshalServerConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setServerDefaults sets default values for server configuration
func setServerDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "localhost")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "./ledger.db")

	v.SetDefault("logging.level", "info")

	v.SetDefault("google.redirect_url", "urn:ietf:wg:oauth:2.0:oob")
	v.SetDefault("google.token_timeout", "5s")

	v.SetDefault("gmail.user_id", "me")
	v.SetDefault("gmail.max_results", 500)
	v.SetDefault("gmail.request_timeout", "10s")

	v.SetDefault("ingest.enabled", true)
	v.SetDefault("ingest.interval", "1h")
	v.SetDefault("ingest.initial_delay", "30s")
	v.SetDefault("ingest.lookback_days", 2)
	v.SetDefault("ingest.retry_count", 3)
	v.SetDefault("ingest.retry_delay", "1s")
	v.SetDefault("ingest.max_token_refreshes", 1)
	v.SetDefault("ingest.fetch_concurrency", 4)
	v.SetDefault("ingest.run_timeout", "30m")
	v.SetDefault("ingest.reextract_after_run", false)

	v.SetDefault("redis.lock_ttl", "10m")

	v.SetDefault("admin.auth_disabled", false)
	v.SetDefault("admin.api_key", "")

	v.SetDefault("cache.rule_cache_size", 128)
}

// configKeys are the keys bound to LEDGER_<SECTION>_<KEY> variables
var configKeys = []string{
	"server.port", "server.host",
	"database.driver", "database.dsn",
	"logging.level",
	"google.client_id", "google.client_secret", "google.redirect_url",
	"google.auth_url", "google.token_url", "google.token_timeout",
	"gmail.endpoint", "gmail.user_id", "gmail.max_results", "gmail.request_timeout",
	"ingest.enabled", "ingest.interval", "ingest.initial_delay", "ingest.lookback_days",
	"ingest.retry_count", "ingest.retry_delay", "ingest.max_token_refreshes",
	"ingest.fetch_concurrency", "ingest.run_timeout", "ingest.reextract_after_run",
	"redis.url", "redis.lock_ttl",
	"admin.api_key", "admin.auth_disabled",
	"cache.rule_cache_size",
}

// setupServerEnvBinding sets up environment variable binding
func setupServerEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for _, key := range configKeys {
		v.BindEnv(key, EnvPrefix+"_"+envSuffix(key))
	}

	// Conventional names used by hosting platforms
	v.BindEnv("database.dsn", EnvPrefix+"_DATABASE_DSN", "DATABASE_URL")
	v.BindEnv("redis.url", EnvPrefix+"_REDIS_URL", "REDIS_URL")
	v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
}

func envSuffix(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// loadConfigFile loads configuration file if it exists
func loadConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.finance-ledger")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	return nil
}

// unmarshalServerConfig unmarshals Viper configuration into Config struct
func unmarshalServerConfig(v *viper.Viper, config *Config) error {
	config.ServerPort = v.GetString("server.port")
	config.ServerHost = v.GetString("server.host")
	config.DBDriver = v.GetString("database.driver")
	config.DBDSN = v.GetString("database.dsn")
	config.LogLevel = v.GetString("logging.level")

	config.GoogleClientID = v.GetString("google.client_id")
	config.GoogleClientSecret = v.GetString("google.client_secret")
	config.GoogleRedirectURL = v.GetString("google.redirect_url")
	config.GoogleAuthURL = v.GetString("google.auth_url")
	config.GoogleTokenURL = v.GetString("google.token_url")

	config.GmailEndpoint = v.GetString("gmail.endpoint")
	config.GmailUserID = v.GetString("gmail.user_id")
	config.GmailMaxResults = v.GetInt("gmail.max_results")

	config.IngestEnabled = v.GetBool("ingest.enabled")
	config.IngestLookbackDays = v.GetInt("ingest.lookback_days")
	config.IngestRetryCount = v.GetInt("ingest.retry_count")
	config.IngestMaxTokenRefreshes = v.GetInt("ingest.max_token_refreshes")
	config.IngestFetchConcurrency = v.GetInt("ingest.fetch_concurrency")
	config.ReextractAfterRun = v.GetBool("ingest.reextract_after_run")

	config.RedisURL = v.GetString("redis.url")

	config.AdminAPIKey = v.GetString("admin.api_key")
	config.DisableAdminAuth = v.GetBool("admin.auth_disabled")

	config.RuleCacheSize = v.GetInt("cache.rule_cache_size")

	durations := []struct {
		key  string
		dest *time.Duration
	}{
		{"google.token_timeout", &config.GoogleTokenTimeout},
		{"gmail.request_timeout", &config.GmailRequestTimeout},
		{"ingest.interval", &config.IngestInterval},
		{"ingest.initial_delay", &config.IngestInitialDelay},
		{"ingest.retry_delay", &config.IngestRetryDelay},
		{"ingest.run_timeout", &config.IngestRunTimeout},
		{"redis.lock_ttl", &config.RedisLockTTL},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dest = parsed
	}

	return nil
}

// LoadServerConfig loads configuration using a fresh Viper instance
func LoadServerConfig() (*Config, error) {
	return LoadServerConfigWithViper(viper.New())
}

// LoadServerConfigWithFile loads configuration from a specific file
func LoadServerConfigWithFile(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadServerConfigWithViper(v)
}

// LoadServerConfigWithEnvFile loads configuration after applying a .env
// file; an empty name means ./.env. A missing file is not an error.
func LoadServerConfigWithEnvFile(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	LoadEnvFile(envFile)
	return LoadServerConfigWithViper(viper.New())
}
