package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// validateAndParseID validates that the argument is a non-empty, valid integer ID
func validateAndParseID(arg string) (int64, error) {
	if strings.TrimSpace(arg) == "" {
		return 0, fmt.Errorf("ID cannot be empty")
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ID '%s': must be a positive integer", arg)
	}

	return id, nil
}

// parseDate accepts YYYY-MM-DD and returns midnight UTC
func parseDate(raw string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s': use YYYY-MM-DD", raw)
	}
	return d, nil
}
