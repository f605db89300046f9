// Package app assembles the ingestion pipeline from configuration. The
// server and the ingest command share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"finance-ledger/internal/config"
	"finance-ledger/internal/database"
	"finance-ledger/internal/email"
	"finance-ledger/internal/extract"
	"finance-ledger/internal/lock"
	"finance-ledger/internal/oauth"
	"finance-ledger/internal/workers"
)

// Pipeline holds the wired ingestion components
type Pipeline struct {
	OAuth       *oauth.Client
	Refresher   *oauth.Refresher
	Mail        *email.GmailClient
	Ingestor    *workers.Ingestor
	Reextractor *workers.Reextractor
	Rules       *extract.RuleCache

	redis *redis.Client
}

// IngestConfig maps the server configuration onto the ingestor's
func IngestConfig(cfg *config.Config, dryRun bool) workers.IngestConfig {
	return workers.IngestConfig{
		LookbackDays:      cfg.IngestLookbackDays,
		RetryCount:        cfg.IngestRetryCount,
		RetryDelay:        cfg.IngestRetryDelay,
		MaxTokenRefreshes: cfg.IngestMaxTokenRefreshes,
		FetchConcurrency:  cfg.IngestFetchConcurrency,
		DryRun:            dryRun,
	}
}

// SchedulerConfig maps the server configuration onto the scheduler's
func SchedulerConfig(cfg *config.Config) workers.SchedulerConfig {
	return workers.SchedulerConfig{
		Enabled:           cfg.IngestEnabled,
		Interval:          cfg.IngestInterval,
		InitialDelay:      cfg.IngestInitialDelay,
		RunTimeout:        cfg.IngestRunTimeout,
		ReextractAfterRun: cfg.ReextractAfterRun,
	}
}

// NewPipeline builds the mail client, token refresher, ingestor and
// re-extractor. Without OAuth credentials expired tokens cannot be renewed;
// without a Redis URL runs are not locked across processes.
func NewPipeline(ctx context.Context, cfg *config.Config, db *database.DB, dryRun bool, logger *slog.Logger) (*Pipeline, error) {
	p := &Pipeline{
		Rules: extract.NewRuleCache(cfg.RuleCacheSize),
		Mail: email.NewGmailClient(email.GmailConfig{
			Endpoint:       cfg.GmailEndpoint,
			UserID:         cfg.GmailUserID,
			MaxResults:     int64(cfg.GmailMaxResults),
			RequestTimeout: cfg.GmailRequestTimeout,
		}, nil, logger),
	}

	var refresher workers.TokenRefresher
	if cfg.OAuthConfigured() {
		p.OAuth = oauth.NewClient(oauth.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			AuthURL:      cfg.GoogleAuthURL,
			TokenURL:     cfg.GoogleTokenURL,
			Timeout:      cfg.GoogleTokenTimeout,
		}, logger)
		p.Refresher = oauth.NewRefresher(p.OAuth, db.Users, logger)
		refresher = p.Refresher
	} else {
		logger.Warn("Google OAuth client not configured, expired tokens will not be refreshed")
	}

	p.Ingestor = workers.NewIngestor(IngestConfig(cfg, dryRun), db.Sources, db.Ledger, p.Mail, refresher, logger)
	p.Reextractor = workers.NewReextractor(db.Ledger, db.Sources, p.Rules, logger)

	if cfg.RedisURL != "" {
		rdb, err := lock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		p.redis = rdb
		p.Ingestor.SetLocker(lock.NewRedisLocker(rdb, cfg.RedisLockTTL, logger))
		logger.Info("Cross-process run locking enabled")
	}

	return p, nil
}

// Close releases the Redis connection, if any
func (p *Pipeline) Close() error {
	if p.redis == nil {
		return nil
	}
	return p.redis.Close()
}
