// Package oauth performs the Google OAuth grants used to read a mailbox:
// authorization-code exchange on connect and refresh-token exchange when an
// access token expires.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// Sentinel errors
var (
	ErrNoRefreshToken = errors.New("no refresh token stored")
	ErrRefreshFailed  = errors.New("failed to refresh token")
	ErrExchangeFailed = errors.New("failed to exchange authorization code")
)

// Config holds the OAuth client registration
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AuthURL and TokenURL override Google's endpoints when set
	AuthURL  string
	TokenURL string

	Timeout time.Duration
}

// TokenSet is the outcome of a grant
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Expiry       time.Time
}

// Client performs OAuth grants against the provider's token endpoint
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates an OAuth client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{gmail.GmailReadonlyScope, "openid", "email", "profile"},
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

// AuthCodeURL returns the consent page URL. Offline access is requested so
// the provider issues a refresh token.
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (c *Client) grantContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), cancel
}

// Exchange trades an authorization code for tokens
func (c *Client) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	ctx, cancel := c.grantContext(ctx)
	defer cancel()

	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	return tokenSet(tok), nil
}

// Refresh trades a refresh token for a new access token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	ctx, cancel := c.grantContext(ctx)
	defer cancel()

	// A token without an access token is never valid, so this always refreshes
	tok, err := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	set := tokenSet(tok)
	if set.RefreshToken == "" {
		set.RefreshToken = refreshToken
	}
	return set, nil
}

func tokenSet(tok *oauth2.Token) *TokenSet {
	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		set.IDToken = idToken
	}
	if set.Expiry.IsZero() {
		set.Expiry = time.Now().Add(time.Hour)
	}
	return set
}

// IsRateLimited reports whether a grant failed with HTTP 429
func IsRateLimited(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusTooManyRequests
}

// IDClaims are the profile claims of a Google id_token
type IDClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// ParseIDToken decodes the claims of an id_token without verifying its
// signature. The token comes straight from the token endpoint over TLS.
func ParseIDToken(idToken string) (*IDClaims, error) {
	claims := &IDClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode id token: %w", err)
	}
	if claims.Email == "" {
		return nil, errors.New("id token carries no email claim")
	}
	return claims, nil
}
