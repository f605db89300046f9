package cmd

import (
	"testing"

	cliapi "finance-ledger/internal/cli"
)

func TestShouldUseInteractiveMode(t *testing.T) {
	tests := []struct {
		name     string
		config   *cliapi.Config
		explicit bool
		isTTY    bool
		expected bool
	}{
		{"explicit flag without TTY", &cliapi.Config{Format: "table"}, true, false, true},
		{"explicit flag with json", &cliapi.Config{Format: "json"}, true, true, true},
		{"auto-detect table on TTY", &cliapi.Config{Format: "table"}, false, true, true},
		{"json disables interactive", &cliapi.Config{Format: "json"}, false, true, false},
		{"quiet disables interactive", &cliapi.Config{Format: "table", Quiet: true}, false, true, false},
		{"no TTY disables interactive", &cliapi.Config{Format: "table"}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldUseInteractiveMode(tt.config, tt.explicit, tt.isTTY); got != tt.expected {
				t.Errorf("shouldUseInteractiveMode() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestLedgerQuery(t *testing.T) {
	listStart, listEnd, listStatus, listSource = "2024-03-01", "2024-03-31", " all ", 2
	defer func() { listStart, listEnd, listStatus, listSource = "", "", "", 0 }()

	q, err := ledgerQuery()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if q.Start != "2024-03-01" || q.End != "2024-03-31" || q.Status != "all" || q.SourceID != 2 {
		t.Errorf("Unexpected query: %+v", q)
	}

	listEnd = "March"
	if _, err := ledgerQuery(); err == nil {
		t.Error("Expected an error for a malformed end date")
	}
}
