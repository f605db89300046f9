package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	cliapi "finance-ledger/internal/cli"
	"finance-ledger/internal/database"
)

// defaultFields represents the default fields to display in the table
var defaultFields = []string{"id", "date", "amount", "type", "payee", "status"}

// availableFields maps field names to their display names
var availableFields = map[string]string{
	"id":       "ID",
	"date":     "DATE",
	"amount":   "AMOUNT",
	"type":     "TYPE",
	"payee":    "PAYEE",
	"status":   "STATUS",
	"subject":  "SUBJECT",
	"source":   "SOURCE",
	"category": "CATEGORY",
	"user":     "USER",
}

// parseFields parses the fields flag and returns a slice of field names
func parseFields(fieldsFlag string) []string {
	if fieldsFlag == "" {
		return defaultFields
	}

	fields := strings.Split(fieldsFlag, ",")
	result := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.ToLower(strings.TrimSpace(field)); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// validateFields validates that all provided fields are valid
func validateFields(fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}

	var invalid []string
	for _, field := range fields {
		if _, exists := availableFields[field]; !exists {
			invalid = append(invalid, field)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid field(s): %s. Available fields: %s",
			strings.Join(invalid, ", "),
			strings.Join(getAvailableFieldNames(), ", "))
	}
	return nil
}

// getFieldDisplayName returns the display name for a field
func getFieldDisplayName(field string) string {
	if displayName, exists := availableFields[field]; exists {
		return displayName
	}
	return field
}

// getAvailableFieldNames returns the sorted field names
func getAvailableFieldNames() []string {
	names := make([]string, 0, len(availableFields))
	for name := range availableFields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

// getFieldValue returns the value for a specific field from a ledger entry
func getFieldValue(e database.LedgerEntry, field string) string {
	switch field {
	case "id":
		return strconv.FormatInt(e.ID, 10)
	case "date":
		return e.Date.Format("2006-01-02")
	case "amount":
		return cliapi.FormatAmount(e)
	case "type":
		return e.TransactionTypeExtract
	case "payee":
		if e.PayeeExtract != nil {
			return *e.PayeeExtract
		}
		return ""
	case "status":
		return e.Status
	case "subject":
		return e.EmailSubject
	case "source":
		return optionalID(e.SourceID)
	case "category":
		return optionalID(e.CategoryID)
	case "user":
		return strconv.FormatInt(e.UserID, 10)
	default:
		return ""
	}
}
