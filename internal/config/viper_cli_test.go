package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

var cliEnvVars = []string{
	"LEDGER_CLI_SERVER_URL", "LEDGER_CLI_API_KEY", "LEDGER_ADMIN_API_KEY", "LEDGER_CLI_FORMAT",
	"LEDGER_CLI_QUIET", "LEDGER_CLI_NO_COLOR", "LEDGER_CLI_TIMEOUT", "NO_COLOR",
}

// clearCLIEnvVars blanks the CLI variables for the duration of the test
func clearCLIEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range cliEnvVars {
		t.Setenv(key, "")
	}
}

func TestCLIViperConfig_LoadFromDefaults(t *testing.T) {
	clearCLIEnvVars(t)
	t.Chdir(t.TempDir())

	config, err := LoadCLIConfigWithViper(viper.New())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.ServerURL != "http://localhost:8080" {
		t.Errorf("Expected ServerURL to be 'http://localhost:8080', got '%s'", config.ServerURL)
	}
	if config.Format != "table" {
		t.Errorf("Expected Format to be 'table', got '%s'", config.Format)
	}
	if config.Quiet {
		t.Errorf("Expected Quiet to be false")
	}
	if config.NoColor {
		t.Errorf("Expected NoColor to be false")
	}
	if config.APIKey != "" {
		t.Errorf("Expected empty APIKey, got '%s'", config.APIKey)
	}
	if config.RequestTimeout != 60*time.Second {
		t.Errorf("Expected RequestTimeout to be 60s, got %v", config.RequestTimeout)
	}
}

func TestCLIViperConfig_LoadFromEnvironment(t *testing.T) {
	clearCLIEnvVars(t)
	t.Chdir(t.TempDir())

	t.Setenv("LEDGER_CLI_SERVER_URL", "http://example.com:9090")
	t.Setenv("LEDGER_CLI_API_KEY", "cli-key")
	t.Setenv("LEDGER_CLI_FORMAT", "json")
	t.Setenv("LEDGER_CLI_QUIET", "true")
	t.Setenv("LEDGER_CLI_NO_COLOR", "true")
	t.Setenv("LEDGER_CLI_TIMEOUT", "300")

	config, err := LoadCLIConfigWithViper(viper.New())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.ServerURL != "http://example.com:9090" {
		t.Errorf("Expected ServerURL to be 'http://example.com:9090', got '%s'", config.ServerURL)
	}
	if config.APIKey != "cli-key" {
		t.Errorf("Expected APIKey to be 'cli-key', got '%s'", config.APIKey)
	}
	if config.Format != "json" {
		t.Errorf("Expected Format to be 'json', got '%s'", config.Format)
	}
	if !config.Quiet || !config.NoColor {
		t.Errorf("Expected Quiet and NoColor to be true, got %v %v", config.Quiet, config.NoColor)
	}
	if config.RequestTimeout != 300*time.Second {
		t.Errorf("Expected RequestTimeout to be 300s, got %v", config.RequestTimeout)
	}
}

func TestCLIViperConfig_Fallbacks(t *testing.T) {
	clearCLIEnvVars(t)
	t.Chdir(t.TempDir())

	t.Setenv("LEDGER_ADMIN_API_KEY", "server-key")
	t.Setenv("NO_COLOR", "1")

	config, err := LoadCLIConfigWithViper(viper.New())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.APIKey != "server-key" {
		t.Errorf("Expected APIKey to fall back to the admin key, got '%s'", config.APIKey)
	}
	if !config.NoColor {
		t.Errorf("Expected NO_COLOR to disable colors")
	}

	t.Setenv("LEDGER_CLI_API_KEY", "cli-key")
	config, err = LoadCLIConfigWithViper(viper.New())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.APIKey != "cli-key" {
		t.Errorf("Expected LEDGER_CLI_API_KEY to win, got '%s'", config.APIKey)
	}
}

func TestCLIViperConfig_LoadFromYAMLFile(t *testing.T) {
	clearCLIEnvVars(t)

	configFile := filepath.Join(t.TempDir(), "cli.yaml")
	configContent := `server_url: "http://yaml-test.com:8888"
api_key: "file-key"
format: "json"
quiet: true
request_timeout: "240s"
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := LoadCLIConfigWithFile(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.ServerURL != "http://yaml-test.com:8888" {
		t.Errorf("Expected ServerURL to be 'http://yaml-test.com:8888', got '%s'", config.ServerURL)
	}
	if config.APIKey != "file-key" {
		t.Errorf("Expected APIKey to be 'file-key', got '%s'", config.APIKey)
	}
	if config.Format != "json" {
		t.Errorf("Expected Format to be 'json', got '%s'", config.Format)
	}
	if !config.Quiet {
		t.Errorf("Expected Quiet to be true")
	}
	if config.RequestTimeout != 240*time.Second {
		t.Errorf("Expected RequestTimeout to be 240s, got %v", config.RequestTimeout)
	}
}

func TestCLIViperConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		envVars    map[string]string
		configFile string
		errorMsg   string
	}{
		{
			name:       "empty server URL",
			configFile: `server_url: ""`,
			errorMsg:   "invalid configuration: server URL cannot be empty",
		},
		{
			name:     "invalid server URL",
			envVars:  map[string]string{"LEDGER_CLI_SERVER_URL": "not-a-url"},
			errorMsg: "invalid configuration: invalid server URL: not-a-url",
		},
		{
			name:     "invalid format",
			envVars:  map[string]string{"LEDGER_CLI_FORMAT": "invalid-format"},
			errorMsg: "invalid configuration: invalid format: invalid-format (must be one of: table, json)",
		},
		{
			name:     "negative timeout",
			envVars:  map[string]string{"LEDGER_CLI_TIMEOUT": "-1"},
			errorMsg: "failed to unmarshal config: request timeout must be positive, got -1 seconds",
		},
		{
			name:     "garbage timeout",
			envVars:  map[string]string{"LEDGER_CLI_TIMEOUT": "soon"},
			errorMsg: "failed to unmarshal config: invalid request timeout: soon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCLIEnvVars(t)
			t.Chdir(t.TempDir())
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			v := viper.New()
			if tt.configFile != "" {
				configFile := filepath.Join(t.TempDir(), "cli.yaml")
				if err := os.WriteFile(configFile, []byte(tt.configFile), 0644); err != nil {
					t.Fatalf("Failed to create test config file: %v", err)
				}
				v.SetConfigFile(configFile)
			}

			_, err := LoadCLIConfigWithViper(v)
			if err == nil {
				t.Fatalf("Expected error, got nil")
			}
			if err.Error() != tt.errorMsg {
				t.Errorf("Expected error message '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}
