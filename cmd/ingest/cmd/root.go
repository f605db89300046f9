// Copyright 2024 Package Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"finance-ledger/internal/app"
	"finance-ledger/internal/config"
	"finance-ledger/internal/database"
	"finance-ledger/internal/workers"
)

const Version = "1.0.0"

var (
	configFile string
	dryRun     bool
	sourceID   int64
	days       int
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull transaction emails from Gmail into the ledger",
	Long: `Runs one ingestion pass over the configured mailbox sources.

Every active source is searched for new messages, each new message is stored
in the ledger and the source's amount and payee patterns are applied to it.

CONFIGURATION:
    Settings come from LEDGER_* environment variables, a .env file or a
    YAML/TOML/JSON file passed with --config. See "ledger-server --help" for
    the full list; the ingest command reads the same keys.

EXAMPLES:
    # Ingest every active source
    ingest

    # One source, looking back 30 days, without writing anything
    ingest --source 3 --days 30 --dry-run

    # Retry extraction for entries still waiting on patterns
    ingest reextract

    # Connect a Gmail account from the terminal
    ingest connect`,
	Version:      Version,
	SilenceUsage: true,
	RunE:         runIngest,
}

// Execute runs the root command
func Execute() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env in current directory)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "list new messages without fetching or storing them")
	rootCmd.Flags().Int64Var(&sourceID, "source", 0, "ingest a single source by ID")
	rootCmd.Flags().IntVar(&days, "days", 0, "lookback window in days (default from config)")

	rootCmd.AddCommand(reextractCmd)
	rootCmd.AddCommand(connectCmd)
}

// isEnvFile reports whether path names a dotenv file rather than a
// structured config file
func isEnvFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".env") || strings.HasPrefix(base, ".env") || !strings.Contains(base, ".")
}

func loadConfiguration() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case configFile == "":
		cfg, err = config.LoadServerConfigWithEnvFile("")
	case isEnvFile(configFile):
		cfg, err = config.LoadServerConfigWithEnvFile(configFile)
	default:
		cfg, err = config.LoadServerConfigWithFile(configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}

// setup loads configuration and opens the database and pipeline. The
// returned cleanup closes both.
func setup(ctx context.Context) (*config.Config, *database.DB, *app.Pipeline, *slog.Logger, func(), error) {
	cfg, err := loadConfiguration()
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	logger := newLogger(cfg)

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	p, err := app.NewPipeline(ctx, cfg, db, dryRun, logger)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, nil, err
	}

	cleanup := func() {
		p.Close()
		db.Close()
	}
	return cfg, db, p, logger, cleanup, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so an in-flight run
// stops between messages
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if days < 0 {
		return fmt.Errorf("days must be non-negative, got %d", days)
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, _, p, logger, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("Starting ingestion", "version", Version, "dry_run", dryRun)

	if sourceID > 0 {
		res := p.Ingestor.IngestSource(ctx, sourceID, days)
		logSourceResult(logger, res)
		if res.Failed() {
			return fmt.Errorf("source %d: %s", sourceID, res.Error)
		}
		return nil
	}

	summary := p.Ingestor.RunAll(ctx)
	for _, res := range summary.Sources {
		logSourceResult(logger, res)
	}
	totals := summary.Totals()
	logger.Info("Ingestion finished",
		"run_id", summary.RunID,
		"sources", totals.Sources,
		"failed_sources", totals.FailedSources,
		"ingested", totals.Ingested,
		"extracted", totals.Extracted,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))

	if summary.Error != "" {
		return fmt.Errorf("ingestion run failed: %s", summary.Error)
	}
	if totals.Sources > 0 && totals.FailedSources == totals.Sources {
		return fmt.Errorf("all %d sources failed", totals.Sources)
	}
	return nil
}

func logSourceResult(logger *slog.Logger, res *workers.SourceResult) {
	attrs := []any{
		"source_id", res.SourceID,
		"listed", res.Listed,
		"already_ingested", res.AlreadyIngested,
		"ingested", res.Ingested,
		"extracted", res.Extracted,
		"duplicates", res.Duplicates,
		"token_refreshes", res.TokenRefreshes,
		"message_failures", len(res.Failures),
	}
	switch {
	case res.Locked:
		logger.Warn("Source skipped, another run holds it", "source_id", res.SourceID)
	case res.Failed():
		logger.Error("Source failed", append(attrs, "error", res.Error)...)
	case res.RuleError != "":
		logger.Warn("Source patterns are invalid", append(attrs, "rule_error", res.RuleError)...)
	default:
		logger.Info("Source done", attrs...)
	}
}
