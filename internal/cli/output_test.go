package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"finance-ledger/internal/database"
	"finance-ledger/internal/workers"

	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }

func testEntries() []database.LedgerEntry {
	return []database.LedgerEntry{
		{
			ID:                     1,
			Date:                   time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
			EmailSubject:           "You have done a UPI txn",
			AmountExtract:          decimal.NewNullDecimal(decimal.RequireFromString("2500")),
			PayeeExtract:           strPtr("AMAZON"),
			TransactionTypeExtract: database.TransactionDebit,
			Status:                 database.StatusExtracted,
		},
		{
			ID:                     2,
			Date:                   time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC),
			EmailSubject:           "Refund processed",
			AmountExtract:          decimal.NewNullDecimal(decimal.RequireFromString("100.5")),
			TransactionTypeExtract: database.TransactionCredit,
			Status:                 database.StatusManual,
		},
		{
			ID:                     3,
			Date:                   time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC),
			EmailSubject:           "Account statement",
			TransactionTypeExtract: database.TransactionDebit,
			Status:                 database.StatusCreated,
		},
	}
}

func TestOutputFormatterPrintLedger(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		quiet    bool
		contains []string
	}{
		{
			name:     "table format",
			format:   "table",
			contains: []string{"ID", "AMOUNT", "PAYEE", "2500.00", "AMAZON", "EXTRACTED", "2024-03-05", "3 entries, debits 2500.00, credits 100.50"},
		},
		{
			name:     "json format",
			format:   "json",
			contains: []string{`"id": 1`, `"payee_extract": "AMAZON"`, `"status": "CREATED"`},
		},
		{
			name:     "quiet mode",
			format:   "table",
			quiet:    true,
			contains: []string{"1\n2\n3\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			formatter := NewOutputFormatterTo(&out, &out, tt.format, tt.quiet, false)
			if err := formatter.PrintLedger(testEntries()); err != nil {
				t.Fatalf("PrintLedger failed: %v", err)
			}

			for _, expected := range tt.contains {
				if !strings.Contains(out.String(), expected) {
					t.Errorf("Output should contain '%s', but got: %s", expected, out.String())
				}
			}
		})
	}
}

func TestOutputFormatterPrintLedger_Empty(t *testing.T) {
	var out bytes.Buffer
	formatter := NewOutputFormatterTo(&out, &out, "table", false, false)
	if err := formatter.PrintLedger(nil); err != nil {
		t.Fatalf("PrintLedger failed: %v", err)
	}
	if !strings.Contains(out.String(), "No ledger entries found.") {
		t.Errorf("Unexpected output: %s", out.String())
	}
}

func TestOutputFormatterUnsupportedFormat(t *testing.T) {
	var out bytes.Buffer
	formatter := NewOutputFormatterTo(&out, &out, "yaml", false, false)
	if err := formatter.PrintSources(nil); err == nil {
		t.Error("Expected an error for unsupported format")
	}
}

func TestOutputFormatterPrintSourceResult(t *testing.T) {
	var out bytes.Buffer
	formatter := NewOutputFormatterTo(&out, &out, "table", false, true)
	err := formatter.PrintSourceResult(&workers.SourceResult{
		SourceID:   4,
		SourceName: "HDFC alerts",
		Listed:     5,
		Ingested:   2,
		Extracted:  1,
		Failures:   []workers.MessageFailure{{EmailID: "m-3", Error: "fetch failed"}},
	})
	if err != nil {
		t.Fatalf("PrintSourceResult failed: %v", err)
	}

	for _, expected := range []string{"HDFC alerts", "Ingested:         2", "m-3: fetch failed"} {
		if !strings.Contains(out.String(), expected) {
			t.Errorf("Output should contain '%s', but got: %s", expected, out.String())
		}
	}
}

func TestOutputFormatterMessages(t *testing.T) {
	var out, errOut bytes.Buffer
	formatter := NewOutputFormatterTo(&out, &errOut, "table", false, true)

	formatter.PrintSuccess("Entry updated")
	formatter.PrintInfo("Nothing to do")
	formatter.PrintError(errors.New("boom"))

	if out.String() != "✓ Entry updated\nℹ Nothing to do\n" {
		t.Errorf("Unexpected stdout: %q", out.String())
	}
	if errOut.String() != "✗ Error: boom\n" {
		t.Errorf("Unexpected stderr: %q", errOut.String())
	}

	out.Reset()
	errOut.Reset()
	quiet := NewOutputFormatterTo(&out, &errOut, "table", true, true)
	quiet.PrintSuccess("Entry updated")
	quiet.PrintError(errors.New("boom"))
	if out.Len() != 0 || errOut.Len() != 0 {
		t.Errorf("Quiet mode should print nothing, got %q %q", out.String(), errOut.String())
	}
}

func TestTotals(t *testing.T) {
	debit, credit := Totals(testEntries())
	if debit.StringFixed(2) != "2500.00" {
		t.Errorf("Expected debits 2500.00, got %s", debit.StringFixed(2))
	}
	if credit.StringFixed(2) != "100.50" {
		t.Errorf("Expected credits 100.50, got %s", credit.StringFixed(2))
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is too long", 10, "this is..."},
		{"₹2500 debited", 8, "₹2500..."},
	}

	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q", tt.input, tt.maxLen, got, tt.expected)
		}
	}
}
