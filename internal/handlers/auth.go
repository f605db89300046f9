package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"finance-ledger/internal/database"
	"finance-ledger/internal/oauth"

	"github.com/google/uuid"
)

// CodeExchanger performs the authorization-code grant
type CodeExchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth.TokenSet, error)
}

// UserRefresher refreshes and persists a user's access token
type UserRefresher interface {
	RefreshUser(ctx context.Context, userID int64, refreshToken string) (string, error)
}

// AuthHandler connects mailboxes and refreshes their credentials
type AuthHandler struct {
	db        *database.DB
	exchanger CodeExchanger
	refresher UserRefresher
	logger    *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *database.DB, exchanger CodeExchanger, refresher UserRefresher, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{db: db, exchanger: exchanger, refresher: refresher, logger: logger}
}

// AuthURL handles GET /api/auth/url and returns the consent page address
func (h *AuthHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = uuid.NewString()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":   h.exchanger.AuthCodeURL(state),
		"state": state,
	})
}

// TokenRequest is the body of POST /api/auth/token
type TokenRequest struct {
	Code string `json:"code"`
}

// ExchangeToken handles POST /api/auth/token: the code is exchanged, the
// id_token profile decoded and the user upserted by email.
func (h *AuthHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	set, err := h.exchanger.Exchange(r.Context(), req.Code)
	if err != nil {
		h.logger.Warn("Authorization code exchange failed", "error", err)
		http.Error(w, "Authentication failed", http.StatusBadGateway)
		return
	}

	claims, err := oauth.ParseIDToken(set.IDToken)
	if err != nil {
		h.logger.Warn("Token response has no usable id_token", "error", err)
		http.Error(w, "Authentication failed", http.StatusBadGateway)
		return
	}

	expiry := set.Expiry
	user := &database.User{
		Email:        claims.Email,
		Name:         claims.Name,
		Picture:      claims.Picture,
		AccessToken:  set.AccessToken,
		RefreshToken: set.RefreshToken,
		IDToken:      set.IDToken,
		TokenExpiry:  &expiry,
	}
	if err := h.db.Users.UpsertByEmail(r.Context(), user); err != nil {
		h.logger.Error("Failed to store user", "email", claims.Email, "error", err)
		http.Error(w, "Failed to store user", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Mailbox connected", "user_id", user.ID, "email", user.Email)
	writeJSON(w, http.StatusOK, user)
}

// RefreshRequest is the body of POST /api/auth/refresh
type RefreshRequest struct {
	Email string `json:"email"`
}

// RefreshResponse reports the new token expiry
type RefreshResponse struct {
	UserID      int64      `json:"user_id"`
	Email       string     `json:"email"`
	TokenExpiry *time.Time `json:"token_expiry,omitempty"`
}

// RefreshToken handles POST /api/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	user, err := h.db.Users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get user", "email", req.Email, "error", err)
		http.Error(w, "Failed to get user", http.StatusInternalServerError)
		return
	}

	if _, err := h.refresher.RefreshUser(r.Context(), user.ID, user.RefreshToken); err != nil {
		switch {
		case errors.Is(err, oauth.ErrNoRefreshToken):
			http.Error(w, "No refresh token stored, reconnect the mailbox", http.StatusConflict)
		case oauth.IsRateLimited(err):
			http.Error(w, "Token endpoint rate limited, retry later", http.StatusTooManyRequests)
		default:
			http.Error(w, "Failed to refresh token", http.StatusBadGateway)
		}
		return
	}

	refreshed, err := h.db.Users.GetByID(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "Failed to get user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{
		UserID:      refreshed.ID,
		Email:       refreshed.Email,
		TokenExpiry: refreshed.TokenExpiry,
	})
}
