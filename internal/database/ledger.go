package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// dedupChunkSize bounds the IN list of a single dedup query
const dedupChunkSize = 500

// LedgerStore handles ledger entries
type LedgerStore struct {
	q querier
}

// LedgerFilter narrows a ledger listing. Zero values mean no restriction;
// End is exclusive.
type LedgerFilter struct {
	UserID   *int64
	SourceID *int64
	Start    time.Time
	End      time.Time
	Statuses []string
	Limit    int
}

// LedgerUpdate carries the user-editable fields of an entry
type LedgerUpdate struct {
	Status     *string
	CategoryID *int64
}

func ledgerSelect(withBody bool) string {
	body := "'' AS body"
	if withBody {
		body = "body"
	}
	return `SELECT id, date, user_id, source_id, email_id, email_subject, ` + body + `, amount_extract,
		payee_extract, transaction_type_extract, category_id, status, created_at, updated_at
		FROM ledger`
}

func scanLedger(row interface{ Scan(...any) error }) (*LedgerEntry, error) {
	var e LedgerEntry
	var sourceID, categoryID sql.NullInt64
	var emailID, payee sql.NullString
	err := row.Scan(&e.ID, &e.Date, &e.UserID, &sourceID, &emailID, &e.EmailSubject, &e.Body,
		&e.AmountExtract, &payee, &e.TransactionTypeExtract, &categoryID, &e.Status,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.SourceID = nullInt64Ptr(sourceID)
	e.CategoryID = nullInt64Ptr(categoryID)
	if emailID.Valid {
		e.EmailID = &emailID.String
	}
	if payee.Valid {
		e.PayeeExtract = &payee.String
	}
	return &e, nil
}

func stringArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *LedgerStore) insert(ctx context.Context, e *LedgerEntry, ignoreConflict bool) (bool, error) {
	if e.Status == "" {
		e.Status = StatusCreated
	}
	if e.TransactionTypeExtract == "" {
		e.TransactionTypeExtract = TransactionDebit
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO ledger (date, user_id, source_id, email_id, email_subject, body, amount_extract,
			payee_extract, transaction_type_extract, category_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if ignoreConflict {
		query += `
		ON CONFLICT (user_id, email_id) DO NOTHING`
	}
	query += `
		RETURNING id`

	var id int64
	err := s.q.queryRow(ctx, query, e.Date.UTC(), e.UserID, int64Arg(e.SourceID), stringArg(e.EmailID),
		e.EmailSubject, e.Body, e.AmountExtract, stringArg(e.PayeeExtract), e.TransactionTypeExtract,
		int64Arg(e.CategoryID), e.Status, now, now).Scan(&id)
	if ignoreConflict && errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now
	return true, nil
}

// InsertIgnore writes an entry unless one with the same (user, email ID)
// already exists. inserted is false when the row was already present, which
// makes concurrent ingestion of the same message safe.
func (s *LedgerStore) InsertIgnore(ctx context.Context, e *LedgerEntry) (inserted bool, err error) {
	inserted, err = s.insert(ctx, e, true)
	if err != nil {
		return false, fmt.Errorf("failed to write ledger entry for email %v: %w", stringArg(e.EmailID), err)
	}
	return inserted, nil
}

// Create inserts an entry and fails on a uniqueness conflict
func (s *LedgerStore) Create(ctx context.Context, e *LedgerEntry) error {
	if _, err := s.insert(ctx, e, false); err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

// GetByID returns an entry including its body
func (s *LedgerStore) GetByID(ctx context.Context, id int64) (*LedgerEntry, error) {
	return scanLedger(s.q.queryRow(ctx, ledgerSelect(true)+` WHERE id = ?`, id))
}

// FilterNewEmailIDs returns the candidate IDs that have no ledger entry for
// the user yet, preserving candidate order.
func (s *LedgerStore) FilterNewEmailIDs(ctx context.Context, userID int64, candidates []string) ([]string, error) {
	existing := make(map[string]struct{}, len(candidates))

	for start := 0; start < len(candidates); start += dedupChunkSize {
		end := min(start+dedupChunkSize, len(candidates))
		chunk := candidates[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, userID)
		for _, id := range chunk {
			args = append(args, id)
		}

		query := `SELECT email_id FROM ledger WHERE user_id = ? AND email_id IN (` + placeholders(len(chunk)) + `)`
		if err := s.collectEmailIDs(ctx, existing, query, args...); err != nil {
			return nil, fmt.Errorf("failed to query existing email ids: %w", err)
		}
	}

	fresh := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		if _, ok := existing[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh, nil
}

func (s *LedgerStore) collectEmailIDs(ctx context.Context, into map[string]struct{}, query string, args ...any) error {
	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		into[id] = struct{}{}
	}
	return rows.Err()
}

// List returns entries matching the filter, newest first, without bodies
func (s *LedgerStore) List(ctx context.Context, f LedgerFilter) ([]LedgerEntry, error) {
	query := ledgerSelect(false) + ` WHERE 1 = 1`
	var args []any

	if f.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *f.UserID)
	}
	if f.SourceID != nil {
		query += ` AND source_id = ?`
		args = append(args, *f.SourceID)
	}
	if !f.Start.IsZero() {
		query += ` AND date >= ?`
		args = append(args, f.Start.UTC())
	}
	if !f.End.IsZero() {
		query += ` AND date < ?`
		args = append(args, f.End.UTC())
	}
	if len(f.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(f.Statuses)) + `)`
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY date DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return s.list(ctx, query, args...)
}

// ListForExtraction returns the entries a re-extraction pass should visit:
// every CREATED entry, or the single entry ledgerID regardless of status.
// Bodies are included.
func (s *LedgerStore) ListForExtraction(ctx context.Context, ledgerID *int64) ([]LedgerEntry, error) {
	if ledgerID != nil {
		e, err := s.GetByID(ctx, *ledgerID)
		if err != nil {
			return nil, err
		}
		return []LedgerEntry{*e}, nil
	}
	return s.list(ctx, ledgerSelect(true)+` WHERE status = ? ORDER BY id`, StatusCreated)
}

func (s *LedgerStore) list(ctx context.Context, query string, args ...any) ([]LedgerEntry, error) {
	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// MarkExtracted stores an extraction result and moves the entry to EXTRACTED
func (s *LedgerStore) MarkExtracted(ctx context.Context, id int64, amount decimal.Decimal, payee *string) error {
	query := `
		UPDATE ledger
		SET amount_extract = ?, payee_extract = ?, status = ?, updated_at = ?
		WHERE id = ?`
	result, err := s.q.exec(ctx, query, amount, stringArg(payee), StatusExtracted, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to store extraction for ledger entry %d: %w", id, err)
	}
	return expectAffected(result)
}

// Update applies a status and/or category change
func (s *LedgerStore) Update(ctx context.Context, id int64, u LedgerUpdate) error {
	if u.Status != nil && !ValidLedgerStatus(*u.Status) {
		return fmt.Errorf("invalid ledger status %q", *u.Status)
	}

	query := `UPDATE ledger SET updated_at = ?`
	args := []any{time.Now().UTC()}
	if u.Status != nil {
		query += `, status = ?`
		args = append(args, *u.Status)
	}
	if u.CategoryID != nil {
		query += `, category_id = ?`
		args = append(args, *u.CategoryID)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	result, err := s.q.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update ledger entry %d: %w", id, err)
	}
	return expectAffected(result)
}

// Delete removes an entry
func (s *LedgerStore) Delete(ctx context.Context, id int64) error {
	result, err := s.q.exec(ctx, `DELETE FROM ledger WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ledger entry %d: %w", id, err)
	}
	return expectAffected(result)
}

// CountByEmailID returns how many entries of the user carry emailID
func (s *LedgerStore) CountByEmailID(ctx context.Context, userID int64, emailID string) (int, error) {
	var n int
	err := s.q.queryRow(ctx, `SELECT COUNT(*) FROM ledger WHERE user_id = ? AND email_id = ?`, userID, emailID).Scan(&n)
	return n, err
}
