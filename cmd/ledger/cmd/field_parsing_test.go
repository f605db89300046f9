package cmd

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"finance-ledger/internal/database"

	"github.com/shopspring/decimal"
)

func TestParseFields(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string returns default fields", "", []string{"id", "date", "amount", "type", "payee", "status"}},
		{"single field", "id", []string{"id"}},
		{"multiple fields", "id,amount,status", []string{"id", "amount", "status"}},
		{"fields with whitespace and case", "ID, Payee , status", []string{"id", "payee", "status"}},
		{"empty entries dropped", "id,,status,", []string{"id", "status"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseFields(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("parseFields(%q) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidateFields(t *testing.T) {
	tests := []struct {
		name        string
		fields      []string
		expectError bool
		errorText   string
	}{
		{"valid fields", []string{"id", "amount", "subject"}, false, ""},
		{"all fields", getAvailableFieldNames(), false, ""},
		{"invalid field", []string{"id", "tracking"}, true, "invalid field(s): tracking"},
		{"no fields", nil, true, "at least one field is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFields(tt.fields)
			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error for %v", tt.fields)
				}
				if !strings.Contains(err.Error(), tt.errorText) {
					t.Errorf("Expected error containing %q, got %q", tt.errorText, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestGetFieldValue(t *testing.T) {
	payee := "AMAZON"
	source := int64(4)
	entry := database.LedgerEntry{
		ID:                     12,
		Date:                   time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC),
		UserID:                 1,
		SourceID:               &source,
		EmailSubject:           "Alert",
		AmountExtract:          decimal.NewNullDecimal(decimal.RequireFromString("2500")),
		PayeeExtract:           &payee,
		TransactionTypeExtract: database.TransactionDebit,
		Status:                 database.StatusExtracted,
	}

	expected := map[string]string{
		"id":       "12",
		"date":     "2024-03-05",
		"amount":   "2500.00",
		"type":     "DEBIT",
		"payee":    "AMAZON",
		"status":   "EXTRACTED",
		"subject":  "Alert",
		"source":   "4",
		"category": "",
		"user":     "1",
	}
	for field, want := range expected {
		if got := getFieldValue(entry, field); got != want {
			t.Errorf("getFieldValue(%s) = %q, expected %q", field, got, want)
		}
	}

	entry.AmountExtract = decimal.NullDecimal{}
	if got := getFieldValue(entry, "amount"); got != "-" {
		t.Errorf("Expected '-' for a missing amount, got %q", got)
	}
}
