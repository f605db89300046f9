package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d+)?|\.\d+)`)

// ParseAmount converts an extracted amount string such as "1,234.50" to a
// decimal. Thousands separators are dropped and the leading number is used,
// so "1234.50 INR" parses as 1234.50. Text that does not start with a number
// is an error.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	num := leadingNumber.FindString(cleaned)
	if num == "" {
		return decimal.Zero, fmt.Errorf("unparseable amount %q", s)
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q: %w", s, err)
	}
	return d, nil
}

// Outcome is an extraction result with its amount parsed
type Outcome struct {
	Result
	Value     decimal.Decimal
	HasAmount bool
	// ParseErr is set when a pattern matched text that is not a number
	ParseErr error
}

// Evaluate runs the rules and parses the extracted amount
func (r *Rules) Evaluate(body string) Outcome {
	out := Outcome{Result: r.Extract(body)}
	if out.Result.Amount == nil {
		return out
	}
	amount, err := ParseAmount(*out.Result.Amount)
	if err != nil {
		out.ParseErr = err
		return out
	}
	out.Value = amount
	out.HasAmount = true
	return out
}
