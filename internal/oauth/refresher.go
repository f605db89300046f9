package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TokenStore persists refreshed credentials
type TokenStore interface {
	UpdateTokens(ctx context.Context, userID int64, accessToken, idToken string, expiry time.Time) error
}

// Refresher refreshes a user's access token and stores the result
type Refresher struct {
	client *Client
	store  TokenStore
	logger *slog.Logger
}

// NewRefresher creates a refresher
func NewRefresher(client *Client, store TokenStore, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{client: client, store: store, logger: logger}
}

// RefreshUser exchanges the user's refresh token, persists the new access
// token, id token and expiry, and returns the new access token.
func (r *Refresher) RefreshUser(ctx context.Context, userID int64, refreshToken string) (string, error) {
	set, err := r.client.Refresh(ctx, refreshToken)
	if err != nil {
		r.logger.Warn("Token refresh failed", "user_id", userID, "error", err)
		return "", err
	}

	if err := r.store.UpdateTokens(ctx, userID, set.AccessToken, set.IDToken, set.Expiry); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	r.logger.Info("Refreshed access token", "user_id", userID, "expiry", set.Expiry)
	return set.AccessToken, nil
}
