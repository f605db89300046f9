package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UserStore handles mailbox owners and their OAuth credentials
type UserStore struct {
	q querier
}

const userColumns = `id, email, name, picture, access_token, refresh_token, id_token, token_expiry, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var expiry sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.AccessToken, &u.RefreshToken,
		&u.IDToken, &expiry, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		t := expiry.Time
		u.TokenExpiry = &t
	}
	return &u, nil
}

// GetByID returns a user by ID
func (s *UserStore) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetByEmail returns a user by email address
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// UpsertByEmail creates the user or refreshes profile and tokens of the
// existing one. An empty refresh token keeps the stored one, since the
// provider only returns it on first consent.
func (s *UserStore) UpsertByEmail(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	var expiry any
	if u.TokenExpiry != nil {
		expiry = u.TokenExpiry.UTC()
	}

	query := `
		INSERT INTO users (email, name, picture, access_token, refresh_token, id_token, token_expiry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			name = excluded.name,
			picture = excluded.picture,
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token <> '' THEN excluded.refresh_token ELSE users.refresh_token END,
			id_token = excluded.id_token,
			token_expiry = excluded.token_expiry,
			updated_at = excluded.updated_at
		RETURNING id`

	var id int64
	err := s.q.queryRow(ctx, query, u.Email, u.Name, u.Picture, u.AccessToken, u.RefreshToken,
		u.IDToken, expiry, now, now).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.Email, err)
	}

	stored, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*u = *stored
	return nil
}

// UpdateTokens persists the result of a token refresh. idToken is left
// unchanged when empty.
func (s *UserStore) UpdateTokens(ctx context.Context, id int64, accessToken, idToken string, expiry time.Time) error {
	query := `
		UPDATE users
		SET access_token = ?,
			id_token = CASE WHEN ? <> '' THEN ? ELSE id_token END,
			token_expiry = ?,
			updated_at = ?
		WHERE id = ?`

	result, err := s.q.exec(ctx, query, accessToken, idToken, idToken, expiry.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update tokens for user %d: %w", id, err)
	}
	return expectAffected(result)
}
