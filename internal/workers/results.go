package workers

import "time"

// MessageFailure records a message that could not be ingested
type MessageFailure struct {
	EmailID string `json:"email_id"`
	Error   string `json:"error"`
}

// SourceResult summarizes one source's ingestion run
type SourceResult struct {
	SourceID        int64            `json:"source_id"`
	SourceName      string           `json:"source_name,omitempty"`
	Query           string           `json:"query,omitempty"`
	Listed          int              `json:"listed"`
	AlreadyIngested int              `json:"already_ingested"`
	Ingested        int              `json:"ingested"`
	Extracted       int              `json:"extracted"`
	Duplicates      int              `json:"duplicates"`
	TokenRefreshes  int              `json:"token_refreshes"`
	Failures        []MessageFailure `json:"failures,omitempty"`
	Error           string           `json:"error,omitempty"`
	RuleError       string           `json:"rule_error,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`

	// NotFound is set when the source or its owner does not exist
	NotFound bool `json:"-"`
	// Locked is set when another run held the source
	Locked bool `json:"locked,omitempty"`
}

// Failed reports whether the source run was aborted
func (r *SourceResult) Failed() bool {
	return r.Error != ""
}

// RunSummary aggregates one pass over all active sources
type RunSummary struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Sources    []*SourceResult `json:"sources"`
	Cancelled  bool            `json:"cancelled,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// RunTotals are the summed counters of a run
type RunTotals struct {
	Sources         int `json:"sources"`
	FailedSources   int `json:"failed_sources"`
	Ingested        int `json:"ingested"`
	Extracted       int `json:"extracted"`
	MessageFailures int `json:"message_failures"`
}

// Totals sums the per-source counters
func (s *RunSummary) Totals() RunTotals {
	var t RunTotals
	for _, r := range s.Sources {
		t.Sources++
		if r.Failed() {
			t.FailedSources++
		}
		t.Ingested += r.Ingested
		t.Extracted += r.Extracted
		t.MessageFailures += len(r.Failures)
	}
	return t
}
