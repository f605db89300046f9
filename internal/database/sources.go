package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SourceStore handles source configuration
type SourceStore struct {
	q querier
}

const sourceColumns = `s.id, s.user_id, s.source_name, s.source_type, s.query, s.label, s.subject,
	s.from_email, s.amount_regex, s.amount_regex_backup, s.payee_regex, s.payee_regex_backup,
	s.default_category_id, s.default_type, s.rule_priority, s.status, s.created_at, s.updated_at`

func sourceDest(src *Source, category *sql.NullInt64) []any {
	return []any{&src.ID, &src.UserID, &src.SourceName, &src.SourceType, &src.Query, &src.Label,
		&src.Subject, &src.FromEmail, &src.AmountRegex, &src.AmountRegexBackup, &src.PayeeRegex,
		&src.PayeeRegexBackup, category, &src.DefaultType, &src.RulePriority, &src.Status,
		&src.CreatedAt, &src.UpdatedAt}
}

func scanSource(row interface{ Scan(...any) error }) (*Source, error) {
	var src Source
	var category sql.NullInt64
	if err := row.Scan(sourceDest(&src, &category)...); err != nil {
		return nil, err
	}
	src.DefaultCategoryID = nullInt64Ptr(category)
	return &src, nil
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func int64Arg(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// BuildSourceQuery assembles a mailbox search query from the optional
// subject, label and sender filters of a source.
func BuildSourceQuery(subject, label, fromEmail string) string {
	var parts []string
	if subject = strings.TrimSpace(subject); subject != "" {
		parts = append(parts, fmt.Sprintf("subject:%q", subject))
	}
	if label = strings.TrimSpace(label); label != "" {
		parts = append(parts, "label:"+label)
	}
	if fromEmail = strings.TrimSpace(fromEmail); fromEmail != "" {
		parts = append(parts, "from:"+fromEmail)
	}
	return strings.Join(parts, " ")
}

// GetByID returns a source by ID
func (s *SourceStore) GetByID(ctx context.Context, id int64) (*Source, error) {
	return scanSource(s.q.queryRow(ctx, `SELECT `+sourceColumns+` FROM sources s WHERE s.id = ?`, id))
}

// GetWithOwner returns a source together with the user whose mailbox it reads
func (s *SourceStore) GetWithOwner(ctx context.Context, id int64) (*Source, *User, error) {
	query := `SELECT ` + sourceColumns + `, ` + prefixed("u", userColumns) + `
		FROM sources s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ?`

	var src Source
	var category sql.NullInt64
	var u User
	var expiry sql.NullTime
	dest := append(sourceDest(&src, &category),
		&u.ID, &u.Email, &u.Name, &u.Picture, &u.AccessToken, &u.RefreshToken, &u.IDToken,
		&expiry, &u.CreatedAt, &u.UpdatedAt)

	if err := s.q.queryRow(ctx, query, id).Scan(dest...); err != nil {
		return nil, nil, err
	}
	src.DefaultCategoryID = nullInt64Ptr(category)
	if expiry.Valid {
		t := expiry.Time
		u.TokenExpiry = &t
	}
	return &src, &u, nil
}

func prefixed(alias, columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = alias + "." + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}

// List returns sources, optionally limited to one user
func (s *SourceStore) List(ctx context.Context, userID *int64) ([]Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources s`
	var args []any
	if userID != nil {
		query += ` WHERE s.user_id = ?`
		args = append(args, *userID)
	}
	query += ` ORDER BY s.rule_priority, s.id`
	return s.list(ctx, query, args...)
}

// ListActiveMail returns every ACTIVE source of type MAIL in processing order
func (s *SourceStore) ListActiveMail(ctx context.Context) ([]Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources s
		WHERE s.status = ? AND s.source_type = ?
		ORDER BY s.rule_priority, s.id`
	return s.list(ctx, query, SourceActive, SourceTypeMail)
}

func (s *SourceStore) list(ctx context.Context, query string, args ...any) ([]Source, error) {
	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// Create inserts a source. Missing type, status, default type and priority
// take their defaults.
func (s *SourceStore) Create(ctx context.Context, src *Source) error {
	if src.SourceType == "" {
		src.SourceType = SourceTypeMail
	}
	if src.Status == "" {
		src.Status = SourceActive
	}
	if src.DefaultType == "" {
		src.DefaultType = TransactionDebit
	}
	if src.RulePriority == 0 {
		src.RulePriority = 1
	}
	if src.Query == "" {
		src.Query = BuildSourceQuery(src.Subject, src.Label, src.FromEmail)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO sources (user_id, source_name, source_type, query, label, subject, from_email,
			amount_regex, amount_regex_backup, payee_regex, payee_regex_backup,
			default_category_id, default_type, rule_priority, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	var id int64
	err := s.q.queryRow(ctx, query, src.UserID, src.SourceName, src.SourceType, src.Query, src.Label,
		src.Subject, src.FromEmail, src.AmountRegex, src.AmountRegexBackup, src.PayeeRegex,
		src.PayeeRegexBackup, int64Arg(src.DefaultCategoryID), src.DefaultType, src.RulePriority,
		src.Status, now, now).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to create source %q: %w", src.SourceName, err)
	}

	created, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*src = *created
	return nil
}

// Update rewrites the editable fields of a source
func (s *SourceStore) Update(ctx context.Context, id int64, src *Source) error {
	query := `
		UPDATE sources
		SET source_name = ?, query = ?, label = ?, subject = ?, from_email = ?,
			amount_regex = ?, amount_regex_backup = ?, payee_regex = ?, payee_regex_backup = ?,
			default_category_id = ?, default_type = ?, rule_priority = ?, updated_at = ?
		WHERE id = ?`

	result, err := s.q.exec(ctx, query, src.SourceName, src.Query, src.Label, src.Subject,
		src.FromEmail, src.AmountRegex, src.AmountRegexBackup, src.PayeeRegex, src.PayeeRegexBackup,
		int64Arg(src.DefaultCategoryID), src.DefaultType, src.RulePriority, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update source %d: %w", id, err)
	}
	if err := expectAffected(result); err != nil {
		return err
	}

	updated, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*src = *updated
	return nil
}

// SetStatus activates or deactivates a source
func (s *SourceStore) SetStatus(ctx context.Context, id int64, status string) error {
	if status != SourceActive && status != SourceInactive {
		return fmt.Errorf("invalid source status %q", status)
	}
	result, err := s.q.exec(ctx, `UPDATE sources SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set status of source %d: %w", id, err)
	}
	return expectAffected(result)
}

func expectAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
