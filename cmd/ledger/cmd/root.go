package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cliapi "finance-ledger/internal/cli"
	"finance-ledger/internal/config"
)

var (
	cliConfigFile string
	serverURL     string
	apiKey        string
	format        string
	quiet         bool
	noColor       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "CLI client for the finance ledger API",
	Long: `Ledger CLI talks to the finance ledger server. It lists and reclassifies
ledger entries, records manual transactions, toggles mail sources, and
triggers ingestion or re-extraction runs.

Settings come from flags, LEDGER_CLI_* environment variables, or a cli.yaml
file in the current directory, ./config or ~/.config/finance-ledger.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cliConfigFile, "config", "", "CLI config file (default is cli.yaml in the search paths)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "API server address")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Admin API key")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "", "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
}

// loadCLIConfig merges flags over the viper-loaded configuration
func loadCLIConfig(cmd *cobra.Command) (*cliapi.Config, error) {
	v := viper.New()
	if cliConfigFile != "" {
		v.SetConfigFile(cliConfigFile)
	}

	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"server_url": "server",
		"api_key":    "api-key",
		"format":     "format",
		"quiet":      "quiet",
		"no_color":   "no-color",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}

	return config.LoadCLIConfigWithViper(v)
}

// initializeClient sets up configuration, formatter, and API client
func initializeClient(cmd *cobra.Command) (*cliapi.Config, *cliapi.OutputFormatter, *cliapi.Client, error) {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	formatter := cliapi.NewOutputFormatterTo(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Format, cfg.Quiet, cfg.NoColor)
	client := cliapi.NewClient(cfg.ServerURL, cfg.APIKey, cfg.RequestTimeout)

	if err := client.HealthCheck(cmd.Context()); err != nil {
		formatter.PrintError(err)
		return nil, nil, nil, err
	}

	return cfg, formatter, client, nil
}
