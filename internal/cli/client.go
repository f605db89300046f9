package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finance-ledger/internal/database"
	"finance-ledger/internal/workers"

	"github.com/shopspring/decimal"
)

// Client represents an HTTP client for the ledger API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new API client. apiKey is sent on admin routes only.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError represents an error response from the server
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// LedgerQuery narrows GET /api/ledger. Zero fields are left to server defaults.
type LedgerQuery struct {
	Start    string
	End      string
	Status   string
	UserID   int64
	SourceID int64
	Limit    int
}

func (q LedgerQuery) values() url.Values {
	v := url.Values{}
	if q.Start != "" {
		v.Set("start", q.Start)
	}
	if q.End != "" {
		v.Set("end", q.End)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.UserID > 0 {
		v.Set("user_id", strconv.FormatInt(q.UserID, 10))
	}
	if q.SourceID > 0 {
		v.Set("source_id", strconv.FormatInt(q.SourceID, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// UpdateLedgerRequest represents a request to reclassify a ledger entry
type UpdateLedgerRequest struct {
	Status     *string `json:"status,omitempty"`
	CategoryID *int64  `json:"category_id,omitempty"`
}

// ManualEntryRequest represents a hand-entered transaction
type ManualEntryRequest struct {
	UserID     int64           `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Payee      string          `json:"payee"`
	Type       string          `json:"type"`
	CategoryID *int64          `json:"category_id,omitempty"`
	Date       *time.Time      `json:"date,omitempty"`
	Note       string          `json:"note,omitempty"`
}

// AdminStatus is the scheduler state reported by GET /api/admin/status
type AdminStatus struct {
	Running bool                    `json:"running"`
	Paused  bool                    `json:"paused"`
	Metrics workers.MetricsSnapshot `json:"metrics"`
	LastRun *workers.RunSummary     `json:"last_run,omitempty"`
	Totals  *workers.RunTotals      `json:"last_run_totals,omitempty"`
}

// StatusMessage is the acknowledgement returned by admin actions
type StatusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// doRequest performs an HTTP request and turns 4xx/5xx into *APIError.
// Status codes in pass are returned to the caller untouched.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, pass ...int) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" && strings.HasPrefix(path, "/api/admin/") {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		for _, code := range pass {
			if resp.StatusCode == code {
				return resp, nil
			}
		}
		defer resp.Body.Close()

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return nil, apiErr
	}

	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, method, path string, body, out any, pass ...int) (int, error) {
	resp, err := c.doRequest(ctx, method, path, body, pass...)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func idPath(prefix string, id int64, suffix string) string {
	return prefix + "/" + strconv.FormatInt(id, 10) + suffix
}

// HealthCheck checks if the API server is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.getJSON(ctx, http.MethodGet, "/api/health", nil, nil)
	return err
}

// ListLedger returns ledger entries matching q
func (c *Client) ListLedger(ctx context.Context, q LedgerQuery) ([]database.LedgerEntry, error) {
	path := "/api/ledger"
	if v := q.values(); len(v) > 0 {
		path += "?" + v.Encode()
	}
	var entries []database.LedgerEntry
	if _, err := c.getJSON(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetLedgerEntry returns a single ledger entry
func (c *Client) GetLedgerEntry(ctx context.Context, id int64) (*database.LedgerEntry, error) {
	var entry database.LedgerEntry
	if _, err := c.getJSON(ctx, http.MethodGet, idPath("/api/ledger", id, ""), nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetLedgerBody returns the stored plain-text email body of an entry
func (c *Client) GetLedgerBody(ctx context.Context, id int64) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, idPath("/api/ledger", id, "/body"), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(data), nil
}

// UpdateLedgerEntry changes the status or category of an entry
func (c *Client) UpdateLedgerEntry(ctx context.Context, id int64, req *UpdateLedgerRequest) (*database.LedgerEntry, error) {
	var entry database.LedgerEntry
	if _, err := c.getJSON(ctx, http.MethodPatch, idPath("/api/ledger", id, ""), req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteLedgerEntry removes an entry
func (c *Client) DeleteLedgerEntry(ctx context.Context, id int64) error {
	_, err := c.getJSON(ctx, http.MethodDelete, idPath("/api/ledger", id, ""), nil, nil)
	return err
}

// CreateManualEntry records a transaction that did not arrive by mail
func (c *Client) CreateManualEntry(ctx context.Context, req *ManualEntryRequest) (*database.LedgerEntry, error) {
	var entry database.LedgerEntry
	if _, err := c.getJSON(ctx, http.MethodPost, "/api/manual", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListSources returns all configured sources
func (c *Client) ListSources(ctx context.Context) ([]database.Source, error) {
	var sources []database.Source
	if _, err := c.getJSON(ctx, http.MethodGet, "/api/sources", nil, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// CreateSource registers a new mail source. The server validates its
// patterns and builds the query from subject, label and from_email when
// Query is empty.
func (c *Client) CreateSource(ctx context.Context, src *database.Source) (*database.Source, error) {
	var created database.Source
	if _, err := c.getJSON(ctx, http.MethodPost, "/api/sources", src, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// PasteTransaction runs text through a source's rules and stores the result
func (c *Client) PasteTransaction(ctx context.Context, sourceID int64, text string) (*database.LedgerEntry, error) {
	var resp struct {
		Entry *database.LedgerEntry `json:"entry"`
	}
	body := map[string]string{"text": text}
	if _, err := c.getJSON(ctx, http.MethodPost, idPath("/api/sources", sourceID, "/transactions"), body, &resp); err != nil {
		return nil, err
	}
	if resp.Entry == nil {
		return nil, fmt.Errorf("server returned no entry")
	}
	return resp.Entry, nil
}

// SetSourceStatus activates or deactivates a source
func (c *Client) SetSourceStatus(ctx context.Context, id int64, status string) (*database.Source, error) {
	var src database.Source
	body := map[string]string{"status": status}
	if _, err := c.getJSON(ctx, http.MethodPatch, idPath("/api/sources", id, "/status"), body, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// ListCategories returns all categories
func (c *Client) ListCategories(ctx context.Context) ([]database.Category, error) {
	var cats []database.Category
	if _, err := c.getJSON(ctx, http.MethodGet, "/api/categories", nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// Ingest runs ingestion for one source and waits for it. A locked or failed
// source still returns its result alongside an *APIError.
func (c *Client) Ingest(ctx context.Context, sourceID int64, days int) (*workers.SourceResult, error) {
	var res workers.SourceResult
	body := map[string]any{"source_id": sourceID}
	if days > 0 {
		body["days"] = days
	}
	code, err := c.getJSON(ctx, http.MethodPost, "/api/ingest", body, &res, http.StatusConflict, http.StatusBadGateway)
	if err != nil {
		return nil, err
	}
	switch code {
	case http.StatusConflict:
		return &res, &APIError{Code: code, Message: "source is being ingested by another run"}
	case http.StatusBadGateway:
		return &res, &APIError{Code: code, Message: res.Error}
	}
	return &res, nil
}

// Extract re-runs extraction over CREATED entries, or only ledgerID when non-nil
func (c *Client) Extract(ctx context.Context, ledgerID *int64) (*workers.ReextractSummary, error) {
	var summary workers.ReextractSummary
	body := map[string]any{}
	if ledgerID != nil {
		body["ledger_id"] = *ledgerID
	}
	if _, err := c.getJSON(ctx, http.MethodPost, "/api/extract", body, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// AdminStatus returns the scheduler state
func (c *Client) AdminStatus(ctx context.Context) (*AdminStatus, error) {
	var status AdminStatus
	if _, err := c.getJSON(ctx, http.MethodGet, "/api/admin/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) adminAction(ctx context.Context, action string) (*StatusMessage, error) {
	var msg StatusMessage
	if _, err := c.getJSON(ctx, http.MethodPost, "/api/admin/"+action, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AdminPause pauses scheduled ingestion
func (c *Client) AdminPause(ctx context.Context) (*StatusMessage, error) {
	return c.adminAction(ctx, "pause")
}

// AdminResume resumes scheduled ingestion
func (c *Client) AdminResume(ctx context.Context) (*StatusMessage, error) {
	return c.adminAction(ctx, "resume")
}

// AdminRun starts an ingestion run in the background
func (c *Client) AdminRun(ctx context.Context) (*StatusMessage, error) {
	return c.adminAction(ctx, "run")
}
