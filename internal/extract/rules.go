// Package extract pulls transaction amount and payee strings out of
// notification text using per-source regular expressions.
package extract

import (
	"fmt"
	"regexp"
	"strings"
)

var delimiters = regexp.MustCompile(`^/|/$`)

// CleanPattern strips one leading and one trailing slash delimiter, so
// "/foo/" and "foo" compile to the same expression.
func CleanPattern(pattern string) string {
	return delimiters.ReplaceAllString(pattern, "")
}

// PatternError reports which configured pattern failed to compile
type PatternError struct {
	Field   string
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid %s pattern %q: %v", e.Field, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Pattern is a compiled extraction expression. A nil Pattern never matches.
type Pattern struct {
	source string
	re     *regexp.Regexp
}

// CompilePattern cleans and compiles a stored pattern. Blank patterns yield
// a nil Pattern and no error.
func CompilePattern(pattern string) (*Pattern, error) {
	cleaned := CleanPattern(strings.TrimSpace(pattern))
	if cleaned == "" {
		return nil, nil
	}
	re, err := regexp.Compile(cleaned)
	if err != nil {
		return nil, err
	}
	return &Pattern{source: cleaned, re: re}, nil
}

func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

// match returns the full match, or the first capture group when
// preferGroup is set and the group matched something.
func (p *Pattern) match(body string, preferGroup bool) (string, bool) {
	if p == nil {
		return "", false
	}
	m := p.re.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	if preferGroup && len(m) > 1 && m[1] != "" {
		return m[1], true
	}
	return m[0], true
}

// Rules is the compiled pattern set of one source
type Rules struct {
	AmountPrimary *Pattern
	AmountBackup  *Pattern
	PayeePrimary  *Pattern
	PayeeBackup   *Pattern
}

// CompileRules compiles the four patterns of a source. The returned error is
// a *PatternError naming the first field that failed.
func CompileRules(amount, amountBackup, payee, payeeBackup string) (*Rules, error) {
	r := &Rules{}
	fields := []struct {
		name    string
		pattern string
		dst     **Pattern
	}{
		{"amount", amount, &r.AmountPrimary},
		{"amount backup", amountBackup, &r.AmountBackup},
		{"payee", payee, &r.PayeePrimary},
		{"payee backup", payeeBackup, &r.PayeeBackup},
	}

	for _, f := range fields {
		p, err := CompilePattern(f.pattern)
		if err != nil {
			return nil, &PatternError{Field: f.name, Pattern: f.pattern, Err: err}
		}
		*f.dst = p
	}
	return r, nil
}

// Result holds the extracted strings; nil means no pattern matched
type Result struct {
	Amount *string `json:"amount"`
	Payee  *string `json:"payee"`
}

// Extract applies the rules to body. The amount prefers the primary
// pattern's first capture group, then its full match, then the backup's
// full match. The payee uses full matches only.
func (r *Rules) Extract(body string) Result {
	var res Result
	if r == nil {
		return res
	}

	if amount, ok := r.AmountPrimary.match(body, true); ok {
		res.Amount = &amount
	} else if amount, ok := r.AmountBackup.match(body, false); ok {
		res.Amount = &amount
	}

	if payee, ok := r.PayeePrimary.match(body, false); ok {
		res.Payee = &payee
	} else if payee, ok := r.PayeeBackup.match(body, false); ok {
		res.Payee = &payee
	}

	return res
}

// Extract compiles the four patterns and applies them to body
func Extract(body, amount, amountBackup, payee, payeeBackup string) (Result, error) {
	rules, err := CompileRules(amount, amountBackup, payee, payeeBackup)
	if err != nil {
		return Result{}, err
	}
	return rules.Extract(body), nil
}
