package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source types
const (
	SourceTypeMail = "MAIL"
)

// Source statuses
const (
	SourceActive   = "ACTIVE"
	SourceInactive = "INACTIVE"
)

// Transaction types
const (
	TransactionDebit  = "DEBIT"
	TransactionCredit = "CREDIT"
)

// Ledger statuses
const (
	StatusCreated   = "CREATED"
	StatusExtracted = "EXTRACTED"
	StatusManual    = "MANUAL"
	StatusIgnore    = "IGNORE"
	StatusDuplicate = "DUPLICATE"
	StatusJunk      = "JUNK"
)

// VisibleStatuses are the ledger statuses shown by default in listings
var VisibleStatuses = []string{StatusCreated, StatusExtracted, StatusManual}

// ValidLedgerStatus reports whether s is a known ledger status
func ValidLedgerStatus(s string) bool {
	switch s {
	case StatusCreated, StatusExtracted, StatusManual, StatusIgnore, StatusDuplicate, StatusJunk:
		return true
	}
	return false
}

// ValidTransactionType reports whether s is DEBIT or CREDIT
func ValidTransactionType(s string) bool {
	return s == TransactionDebit || s == TransactionCredit
}

// User is a mailbox owner together with its OAuth credentials
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Picture      string     `json:"picture,omitempty"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	IDToken      string     `json:"-"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Category groups ledger entries
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ColorCode string    `json:"color_code"`
	CreatedAt time.Time `json:"created_at"`
}

// Source is one configured inbound transaction channel: a mailbox query plus
// the patterns used to pull amount and payee out of matching messages.
type Source struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	SourceName        string    `json:"source_name"`
	SourceType        string    `json:"source_type"`
	Query             string    `json:"query"`
	Label             string    `json:"label,omitempty"`
	Subject           string    `json:"subject,omitempty"`
	FromEmail         string    `json:"from_email,omitempty"`
	AmountRegex       string    `json:"amount_regex"`
	AmountRegexBackup string    `json:"amount_regex_backup"`
	PayeeRegex        string    `json:"payee_regex"`
	PayeeRegexBackup  string    `json:"payee_regex_backup"`
	DefaultCategoryID *int64    `json:"default_category_id,omitempty"`
	DefaultType       string    `json:"default_type"`
	RulePriority      int       `json:"rule_priority"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LedgerEntry is one transaction record, extracted from an email or entered manually
type LedgerEntry struct {
	ID                     int64               `json:"id"`
	Date                   time.Time           `json:"date"`
	UserID                 int64               `json:"user_id"`
	SourceID               *int64              `json:"source_id,omitempty"`
	EmailID                *string             `json:"email_id,omitempty"`
	EmailSubject           string              `json:"email_subject"`
	Body                   string              `json:"body,omitempty"`
	AmountExtract          decimal.NullDecimal `json:"amount_extract"`
	PayeeExtract           *string             `json:"payee_extract,omitempty"`
	TransactionTypeExtract string              `json:"transaction_type_extract"`
	CategoryID             *int64              `json:"category_id,omitempty"`
	Status                 string              `json:"status"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}
