package email

import (
	"strings"
	"time"
)

// DefaultLookbackDays is the recency window used when none is given
const DefaultLookbackDays = 2

// BuildSearchQuery appends the recency filter "after:YYYY/MM/DD" to a
// source's query. Non-positive days fall back to DefaultLookbackDays.
func BuildSearchQuery(sourceQuery string, days int, now time.Time) string {
	if days <= 0 {
		days = DefaultLookbackDays
	}
	after := now.AddDate(0, 0, -days).Format("2006/01/02")
	return strings.TrimSpace(strings.TrimSpace(sourceQuery) + " after:" + after)
}
