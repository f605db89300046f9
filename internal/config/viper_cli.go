package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"finance-ledger/internal/cli"

	"github.com/spf13/viper"
)

// LoadCLIConfigWithViper loads CLI configuration using Viper
func LoadCLIConfigWithViper(v *viper.Viper) (*cli.Config, error) {
	setCLIDefaults(v)
	setupCLIEnvBinding(v)

	if err := loadCLIConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &cli.Config{}
	if err := unmarshalCLIConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setCLIDefaults sets default values for CLI configuration
func setCLIDefaults(v *viper.Viper) {
	defaults := cli.DefaultConfig()
	v.SetDefault("server_url", defaults.ServerURL)
	v.SetDefault("api_key", "")
	v.SetDefault("format", defaults.Format)
	v.SetDefault("quiet", false)
	v.SetDefault("no_color", false)
	v.SetDefault("request_timeout", defaults.RequestTimeout.String())
}

// setupCLIEnvBinding binds LEDGER_CLI_* variables. The API key falls back to
// the server's admin key so one env file serves both.
func setupCLIEnvBinding(v *viper.Viper) {
	envBindings := map[string]string{
		"server_url":      "CLI_SERVER_URL",
		"format":          "CLI_FORMAT",
		"quiet":           "CLI_QUIET",
		"request_timeout": "CLI_TIMEOUT",
	}
	for configKey, suffix := range envBindings {
		v.BindEnv(configKey, EnvPrefix+"_"+suffix)
	}

	v.BindEnv("api_key", EnvPrefix+"_CLI_API_KEY", EnvPrefix+"_ADMIN_API_KEY")
	v.BindEnv("no_color", EnvPrefix+"_CLI_NO_COLOR", "NO_COLOR")
}

// loadCLIConfigFile loads configuration file if it exists
func loadCLIConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.config/finance-ledger")
		v.SetConfigName("cli")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

// unmarshalCLIConfig unmarshals Viper configuration into CLI Config struct
func unmarshalCLIConfig(v *viper.Viper, config *cli.Config) error {
	config.ServerURL = v.GetString("server_url")
	config.APIKey = v.GetString("api_key")
	config.Format = v.GetString("format")
	config.Quiet = v.GetBool("quiet")
	config.NoColor = v.GetBool("no_color")

	timeout, err := parseTimeout(v.GetString("request_timeout"))
	if err != nil {
		return err
	}
	config.RequestTimeout = timeout
	return nil
}

// parseTimeout accepts a Go duration or a whole number of seconds
func parseTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return cli.DefaultConfig().RequestTimeout, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid request timeout: %s", raw)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("request timeout must be positive, got %d seconds", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

// LoadCLIConfig loads CLI configuration from the default search paths
func LoadCLIConfig() (*cli.Config, error) {
	return LoadCLIConfigWithViper(viper.New())
}

// LoadCLIConfigWithFile loads CLI configuration from a specific file
func LoadCLIConfigWithFile(configFile string) (*cli.Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadCLIConfigWithViper(v)
}
