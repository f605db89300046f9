package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	// Endpoint overrides the API base URL, e.g. for a proxy or a test server
	Endpoint string
	UserID   string

	// Request limits
	MaxResults     int64
	RequestTimeout time.Duration
}

// GmailClient implements MailClient for the Gmail API. It holds no token;
// each call authenticates with the access token it is given.
type GmailClient struct {
	config GmailConfig
	base   http.RoundTripper
	logger *slog.Logger
}

// NewGmailClient creates a Gmail client. transport may be nil to use
// http.DefaultTransport.
func NewGmailClient(cfg GmailConfig, transport http.RoundTripper, logger *slog.Logger) *GmailClient {
	if cfg.UserID == "" {
		cfg.UserID = "me"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 500
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Endpoint != "" && !strings.HasSuffix(cfg.Endpoint, "/") {
		cfg.Endpoint += "/"
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GmailClient{config: cfg, base: transport, logger: logger}
}

func (g *GmailClient) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   g.base,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if g.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.config.Endpoint))
	}

	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return service, nil
}

var errListLimit = errors.New("message list limit reached")

// ListMessageIDs returns the IDs of messages matching query, following
// pages up to the configured maximum.
func (g *GmailClient) ListMessageIDs(ctx context.Context, accessToken, query string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout)
	defer cancel()

	service, err := g.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	pageSize := min(g.config.MaxResults, 500)
	var ids []string
	err = service.Users.Messages.List(g.config.UserID).Q(query).MaxResults(pageSize).
		Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
			for _, m := range resp.Messages {
				ids = append(ids, m.Id)
				if int64(len(ids)) >= g.config.MaxResults {
					return errListLimit
				}
			}
			return nil
		})
	if err != nil && !errors.Is(err, errListLimit) {
		return nil, fmt.Errorf("Gmail list failed: %w", err)
	}

	g.logger.Debug("Listed messages", "query", query, "count", len(ids))
	return ids, nil
}

// GetMessage fetches a full message and decodes its body
func (g *GmailClient) GetMessage(ctx context.Context, accessToken, id string) (*Message, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout)
	defer cancel()

	service, err := g.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	msg, err := service.Users.Messages.Get(g.config.UserID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	return ParseMessage(msg), nil
}

// ParseMessage converts a Gmail API message into a Message
func ParseMessage(msg *gmail.Message) *Message {
	m := &Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Subject:  DefaultSubject,
	}

	var dateHeader string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				if strings.TrimSpace(h.Value) != "" {
					m.Subject = h.Value
				}
			case "from":
				m.From = h.Value
			case "date":
				dateHeader = h.Value
			}
		}
	}

	m.Date = messageDate(dateHeader, msg.InternalDate)
	m.Body = DecodeBody(msg.Payload)
	return m
}

// messageDate prefers the Date header and falls back to Gmail's internal
// receive time in milliseconds.
func messageDate(header string, internalMillis int64) time.Time {
	if header != "" {
		if t, err := mail.ParseDate(header); err == nil {
			return t
		}
	}
	if internalMillis > 0 {
		return time.UnixMilli(internalMillis)
	}
	return time.Now()
}

// IsUnauthorized reports whether err is a 401 from the provider, meaning the
// access token expired or was revoked.
func IsUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

// IsPermanent reports whether retrying err cannot help
func IsPermanent(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}
