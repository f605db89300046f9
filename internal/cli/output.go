package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"finance-ledger/internal/database"
	"finance-ledger/internal/workers"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/shopspring/decimal"
)

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format   string
	quiet    bool
	out      io.Writer
	errOut   io.Writer
	renderer *lipgloss.Renderer
}

// NewOutputFormatter creates a formatter writing to stdout and stderr
func NewOutputFormatter(format string, quiet, noColor bool) *OutputFormatter {
	return NewOutputFormatterTo(os.Stdout, os.Stderr, format, quiet, noColor)
}

// NewOutputFormatterTo creates a formatter on explicit writers. Colors are
// used only when out is a terminal and noColor is unset.
func NewOutputFormatterTo(out, errOut io.Writer, format string, quiet, noColor bool) *OutputFormatter {
	r := lipgloss.NewRenderer(out)
	if noColor || !isTerminal(out) {
		r.SetColorProfile(termenv.Ascii)
	}
	return &OutputFormatter{format: format, quiet: quiet, out: out, errOut: errOut, renderer: r}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

var statusColors = map[string]lipgloss.Color{
	database.StatusExtracted: "10",
	database.StatusManual:    "12",
	database.StatusCreated:   "11",
	database.StatusIgnore:    "8",
	database.StatusDuplicate: "8",
	database.StatusJunk:      "9",
}

func (f *OutputFormatter) status(s string) string {
	color, ok := statusColors[s]
	if !ok {
		return s
	}
	return f.renderer.NewStyle().Foreground(color).Render(s)
}

func (f *OutputFormatter) bold(s string) string {
	return f.renderer.NewStyle().Bold(true).Render(s)
}

func (f *OutputFormatter) printJSON(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintLedger prints a list of ledger entries
func (f *OutputFormatter) PrintLedger(entries []database.LedgerEntry) error {
	if f.quiet {
		for _, e := range entries {
			fmt.Fprintf(f.out, "%d\n", e.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return f.printJSON(entries)
	case "table":
		return f.printLedgerTable(entries)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

func (f *OutputFormatter) printLedgerTable(entries []database.LedgerEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(f.out, "No ledger entries found.")
		return nil
	}

	w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tAMOUNT\tTYPE\tPAYEE\tSTATUS\tSUBJECT")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.Date.Format("2006-01-02"),
			FormatAmount(e),
			e.TransactionTypeExtract,
			truncate(deref(e.PayeeExtract), 24),
			e.Status,
			truncate(e.EmailSubject, 32))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	debit, credit := Totals(entries)
	fmt.Fprintf(f.out, "\n%d entries, debits %s, credits %s\n", len(entries), debit.StringFixed(2), credit.StringFixed(2))
	return nil
}

// PrintLedgerEntry prints a single ledger entry
func (f *OutputFormatter) PrintLedgerEntry(e *database.LedgerEntry) error {
	if f.quiet {
		fmt.Fprintf(f.out, "%d\n", e.ID)
		return nil
	}

	switch f.format {
	case "json":
		return f.printJSON(e)
	case "table":
		fmt.Fprintf(f.out, "%s %d\n", f.bold("Ledger Entry"), e.ID)
		fmt.Fprintf(f.out, "Date:     %s\n", e.Date.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(f.out, "Amount:   %s\n", FormatAmount(*e))
		fmt.Fprintf(f.out, "Type:     %s\n", e.TransactionTypeExtract)
		fmt.Fprintf(f.out, "Payee:    %s\n", orDash(deref(e.PayeeExtract)))
		fmt.Fprintf(f.out, "Status:   %s\n", f.status(e.Status))
		fmt.Fprintf(f.out, "Subject:  %s\n", e.EmailSubject)
		fmt.Fprintf(f.out, "User:     %d\n", e.UserID)
		if e.SourceID != nil {
			fmt.Fprintf(f.out, "Source:   %d\n", *e.SourceID)
		}
		if e.CategoryID != nil {
			fmt.Fprintf(f.out, "Category: %d\n", *e.CategoryID)
		}
		if e.EmailID != nil {
			fmt.Fprintf(f.out, "Email ID: %s\n", *e.EmailID)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSources prints configured sources
func (f *OutputFormatter) PrintSources(sources []database.Source) error {
	if f.quiet {
		for _, s := range sources {
			fmt.Fprintf(f.out, "%d\n", s.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return f.printJSON(sources)
	case "table":
		if len(sources) == 0 {
			fmt.Fprintln(f.out, "No sources found.")
			return nil
		}
		w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tUSER\tSTATUS\tPRIORITY\tQUERY")
		for _, s := range sources {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%s\n",
				s.ID, truncate(s.SourceName, 20), s.SourceType, s.UserID, s.Status, s.RulePriority, truncate(s.Query, 40))
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintCategories prints categories
func (f *OutputFormatter) PrintCategories(cats []database.Category) error {
	if f.quiet {
		for _, c := range cats {
			fmt.Fprintf(f.out, "%d\n", c.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return f.printJSON(cats)
	case "table":
		if len(cats) == 0 {
			fmt.Fprintln(f.out, "No categories found.")
			return nil
		}
		w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOLOR")
		for _, c := range cats {
			fmt.Fprintf(w, "%d\t%s\t%s\n", c.ID, c.Name, orDash(c.ColorCode))
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSourceResult prints the outcome of a single-source ingestion
func (f *OutputFormatter) PrintSourceResult(res *workers.SourceResult) error {
	if f.quiet {
		fmt.Fprintf(f.out, "%d\n", res.Ingested)
		return nil
	}

	switch f.format {
	case "json":
		return f.printJSON(res)
	case "table":
		name := res.SourceName
		if name == "" {
			name = strconv.FormatInt(res.SourceID, 10)
		}
		fmt.Fprintf(f.out, "%s %s\n", f.bold("Source"), name)
		fmt.Fprintf(f.out, "Listed:           %d\n", res.Listed)
		fmt.Fprintf(f.out, "Already ingested: %d\n", res.AlreadyIngested)
		fmt.Fprintf(f.out, "Ingested:         %d\n", res.Ingested)
		fmt.Fprintf(f.out, "Extracted:        %d\n", res.Extracted)
		if res.Duplicates > 0 {
			fmt.Fprintf(f.out, "Duplicates:       %d\n", res.Duplicates)
		}
		if res.RuleError != "" {
			fmt.Fprintf(f.out, "Rule error:       %s\n", res.RuleError)
		}
		if res.Error != "" {
			fmt.Fprintf(f.out, "Error:            %s\n", res.Error)
		}
		for _, mf := range res.Failures {
			fmt.Fprintf(f.out, "  %s: %s\n", mf.EmailID, mf.Error)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintReextract prints a re-extraction summary
func (f *OutputFormatter) PrintReextract(s *workers.ReextractSummary) error {
	if f.quiet {
		fmt.Fprintf(f.out, "%d\n", s.Extracted)
		return nil
	}
	if f.format == "json" {
		return f.printJSON(s)
	}
	fmt.Fprintf(f.out, "Scanned %d, extracted %d, unmatched %d, skipped %d, errors %d\n",
		s.Scanned, s.Extracted, s.Unmatched, s.Skipped, s.Errors)
	return nil
}

// PrintAdminStatus prints the scheduler state
func (f *OutputFormatter) PrintAdminStatus(s *AdminStatus) error {
	if f.format == "json" {
		return f.printJSON(s)
	}

	state := "running"
	switch {
	case !s.Running:
		state = "stopped"
	case s.Paused:
		state = "paused"
	}
	fmt.Fprintf(f.out, "Scheduler: %s\n", f.bold(state))
	fmt.Fprintf(f.out, "Runs:      %d\n", s.Metrics.TotalRuns)
	fmt.Fprintf(f.out, "Ingested:  %d\n", s.Metrics.MessagesIngested)
	fmt.Fprintf(f.out, "Extracted: %d\n", s.Metrics.MessagesExtracted)
	if !s.Metrics.LastRun.IsZero() {
		fmt.Fprintf(f.out, "Last run:  %s\n", s.Metrics.LastRun.Format("2006-01-02 15:04:05"))
	}
	if s.Metrics.LastError != "" {
		fmt.Fprintf(f.out, "Last error: %s\n", s.Metrics.LastError)
	}
	if s.Totals != nil {
		fmt.Fprintf(f.out, "Last run totals: %d sources (%d failed), %d ingested, %d extracted\n",
			s.Totals.Sources, s.Totals.FailedSources, s.Totals.Ingested, s.Totals.Extracted)
	}
	return nil
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Fprintf(f.out, "%s %s\n", f.renderer.NewStyle().Foreground(lipgloss.Color("10")).Render("✓"), message)
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	if !f.quiet {
		fmt.Fprintf(f.errOut, "%s %v\n", f.renderer.NewStyle().Foreground(lipgloss.Color("9")).Render("✗ Error:"), err)
	}
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Fprintf(f.out, "ℹ %s\n", message)
	}
}

// FormatAmount renders the extracted amount, or "-" when none was found
func FormatAmount(e database.LedgerEntry) string {
	if !e.AmountExtract.Valid {
		return "-"
	}
	return e.AmountExtract.Decimal.StringFixed(2)
}

// Totals sums extracted debit and credit amounts. Rows without an amount
// are skipped.
func Totals(entries []database.LedgerEntry) (debit, credit decimal.Decimal) {
	for _, e := range entries {
		if !e.AmountExtract.Valid {
			continue
		}
		switch e.TransactionTypeExtract {
		case database.TransactionCredit:
			credit = credit.Add(e.AmountExtract.Decimal)
		default:
			debit = debit.Add(e.AmountExtract.Decimal)
		}
	}
	return debit, credit
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// truncate shortens s to maxLen runes
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
