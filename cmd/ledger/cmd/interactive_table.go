package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	cliapi "finance-ledger/internal/cli"
	"finance-ledger/internal/database"
)

// ledgerAPI is the part of the API client the interactive table drives
type ledgerAPI interface {
	ListLedger(ctx context.Context, q cliapi.LedgerQuery) ([]database.LedgerEntry, error)
	GetLedgerBody(ctx context.Context, id int64) (string, error)
	UpdateLedgerEntry(ctx context.Context, id int64, req *cliapi.UpdateLedgerRequest) (*database.LedgerEntry, error)
	DeleteLedgerEntry(ctx context.Context, id int64) error
}

// KeyMap represents the key bindings for the interactive table
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Reload  key.Binding
	Details key.Binding
	Ignore  key.Binding
	Junk    key.Binding
	Restore key.Binding
	Delete  key.Binding
	Help    key.Binding
	Quit    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Reload:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Details: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Ignore:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "ignore")),
		Junk:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "junk")),
		Restore: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "back to created")),
		Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Confirm: key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "confirm")),
		Cancel:  key.NewBinding(key.WithKeys("n", "N", "esc"), key.WithHelp("n/esc", "cancel")),
	}
}

// InteractiveTable represents the interactive table model
type InteractiveTable struct {
	ctx               context.Context
	table             table.Model
	entries           []database.LedgerEntry
	client            ledgerAPI
	query             cliapi.LedgerQuery
	fields            []string
	keys              KeyMap
	loading           bool
	spinner           spinner.Model
	err               error
	message           string
	detail            string
	showHelp          bool
	quitting          bool
	useColor          bool
	showDeleteConfirm bool
	deleteTarget      int64
}

// NewInteractiveTable creates a new interactive table
func NewInteractiveTable(ctx context.Context, entries []database.LedgerEntry, client ledgerAPI, query cliapi.LedgerQuery, fieldsFlag string, useColor bool) (*InteractiveTable, error) {
	fields := parseFields(fieldsFlag)
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	columns := make([]table.Column, len(fields))
	for i, field := range fields {
		columns[i] = table.Column{
			Title: getFieldDisplayName(field),
			Width: calculateColumnWidth(field, entries),
		}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(entriesToRows(entries, fields)),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	if useColor {
		styles := table.DefaultStyles()
		styles.Header = styles.Header.
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(false)
		styles.Selected = styles.Selected.
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Bold(false)
		t.SetStyles(styles)
	}

	return &InteractiveTable{
		ctx:      ctx,
		table:    t,
		entries:  entries,
		client:   client,
		query:    query,
		fields:   fields,
		keys:     DefaultKeyMap(),
		spinner:  s,
		useColor: useColor,
	}, nil
}

// runInteractiveTable blocks until the user quits the table
func runInteractiveTable(ctx context.Context, entries []database.LedgerEntry, client *cliapi.Client, fieldsFlag string, config *cliapi.Config) error {
	q, err := ledgerQuery()
	if err != nil {
		return err
	}
	useColor := !config.NoColor && isatty.IsTerminal(os.Stdout.Fd())
	m, err := NewInteractiveTable(ctx, entries, client, q, fieldsFlag, useColor)
	if err != nil {
		return err
	}

	_, err = tea.NewProgram(*m, tea.WithContext(ctx)).Run()
	return err
}

// Init initializes the interactive table
func (m InteractiveTable) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m InteractiveTable) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showDeleteConfirm {
			switch {
			case key.Matches(msg, m.keys.Confirm):
				return m.confirmDelete()
			case key.Matches(msg, m.keys.Cancel):
				m.showDeleteConfirm = false
				m.deleteTarget = 0
				m.message = "Delete cancelled"
				return m, nil
			}
			return m, nil
		}

		if m.detail != "" {
			if key.Matches(msg, m.keys.Cancel) || key.Matches(msg, m.keys.Quit) || key.Matches(msg, m.keys.Details) {
				m.detail = ""
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Reload):
			return m.startLoading(m.reload())
		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		case key.Matches(msg, m.keys.Details):
			return m.handleDetails()
		case key.Matches(msg, m.keys.Ignore):
			return m.handleSetStatus(database.StatusIgnore)
		case key.Matches(msg, m.keys.Junk):
			return m.handleSetStatus(database.StatusJunk)
		case key.Matches(msg, m.keys.Restore):
			return m.handleSetStatus(database.StatusCreated)
		case key.Matches(msg, m.keys.Delete):
			return m.handleDelete()
		}

	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		return m, nil

	case statusCompleteMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.message = fmt.Sprintf("Error updating entry: %v", msg.err)
			return m, nil
		}
		m = m.replaceEntry(*msg.entry)
		m.message = fmt.Sprintf("Entry %d marked %s", msg.entry.ID, msg.entry.Status)
		return m, nil

	case deleteCompleteMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.message = fmt.Sprintf("Error deleting entry: %v", msg.err)
			return m, nil
		}
		m = m.removeEntry(msg.id)
		m.message = "Entry deleted successfully"
		return m, nil

	case bodyCompleteMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.message = fmt.Sprintf("Error fetching body: %v", msg.err)
			return m, nil
		}
		m.detail = m.detailView(msg.id, msg.body)
		return m, nil

	case reloadCompleteMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.message = fmt.Sprintf("Error reloading: %v", msg.err)
			return m, nil
		}
		m.entries = msg.entries
		m.table.SetRows(entriesToRows(m.entries, m.fields))
		m.clampCursor()
		m.message = fmt.Sprintf("Reloaded %d entries", len(m.entries))
		return m, nil

	case spinner.TickMsg:
		if m.loading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

// View renders the interactive table
func (m InteractiveTable) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	if m.showHelp {
		b.WriteString(m.helpView())
		b.WriteString("\n")
	}

	if m.loading {
		b.WriteString(fmt.Sprintf("%s Loading...\n", m.spinner.View()))
	}

	if m.detail != "" {
		b.WriteString(m.detail)
		b.WriteString("\n")
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}

	if m.showDeleteConfirm {
		b.WriteString(m.colored(fmt.Sprintf("Delete ledger entry %d? (y/N): ", m.deleteTarget), "208"))
		b.WriteString("\n")
	}

	if m.message != "" {
		color := "82"
		if m.err != nil {
			color = "196"
		}
		b.WriteString(m.colored(m.message, color))
		b.WriteString("\n")
	}

	b.WriteString(m.statusLine())
	return b.String()
}

func (m InteractiveTable) colored(s, color string) string {
	if !m.useColor {
		return s
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(s)
}

func (m InteractiveTable) helpView() string {
	var help strings.Builder
	help.WriteString("Help:\n")
	for _, k := range []key.Binding{
		m.keys.Up, m.keys.Down, m.keys.Details, m.keys.Ignore, m.keys.Junk,
		m.keys.Restore, m.keys.Delete, m.keys.Reload, m.keys.Help, m.keys.Quit,
	} {
		h := k.Help()
		help.WriteString(fmt.Sprintf("  %-10s - %s\n", h.Key, h.Desc))
	}
	return help.String()
}

func (m InteractiveTable) statusLine() string {
	if m.detail != "" {
		return "Detail View | Press esc to return to the ledger"
	}
	if len(m.entries) == 0 {
		return "No ledger entries found"
	}

	debit, credit := cliapi.Totals(m.entries)
	return fmt.Sprintf("Entry %d of %d | Debits %s | Credits %s | Press ? for help",
		m.table.Cursor()+1, len(m.entries), debit.StringFixed(2), credit.StringFixed(2))
}

func (m InteractiveTable) detailView(id int64, body string) string {
	var e *database.LedgerEntry
	for i := range m.entries {
		if m.entries[i].ID == id {
			e = &m.entries[i]
			break
		}
	}
	if e == nil {
		return body
	}

	payee := ""
	if e.PayeeExtract != nil {
		payee = *e.PayeeExtract
	}
	return fmt.Sprintf(`Ledger Entry %d
Date:    %s
Amount:  %s %s
Payee:   %s
Status:  %s
Subject: %s

%s`,
		e.ID,
		e.Date.Format("2006-01-02 15:04:05"),
		cliapi.FormatAmount(*e), e.TransactionTypeExtract,
		payee,
		e.Status,
		e.EmailSubject,
		body)
}

// calculateColumnWidth calculates the width for a column based on its content
func calculateColumnWidth(field string, entries []database.LedgerEntry) int {
	width := len(getFieldDisplayName(field))

	samples := min(len(entries), 10)
	for i := 0; i < samples; i++ {
		if n := utf8.RuneCountInString(getFieldValue(entries[i], field)); n > width {
			width = n
		}
	}

	return max(8, min(width, 40))
}

func entriesToRows(entries []database.LedgerEntry, fields []string) []table.Row {
	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		row := make(table.Row, len(fields))
		for j, field := range fields {
			row[j] = getFieldValue(e, field)
		}
		rows[i] = row
	}
	return rows
}

type statusCompleteMsg struct {
	entry *database.LedgerEntry
	err   error
}

type deleteCompleteMsg struct {
	id  int64
	err error
}

type bodyCompleteMsg struct {
	id   int64
	body string
	err  error
}

type reloadCompleteMsg struct {
	entries []database.LedgerEntry
	err     error
}

// selected returns the entry under the cursor
func (m InteractiveTable) selected() (database.LedgerEntry, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.entries) {
		return database.LedgerEntry{}, false
	}
	return m.entries[i], true
}

func (m InteractiveTable) startLoading(cmd tea.Cmd) (InteractiveTable, tea.Cmd) {
	m.loading = true
	m.message = ""
	m.err = nil
	return m, tea.Batch(m.spinner.Tick, cmd)
}

func (m InteractiveTable) handleDetails() (InteractiveTable, tea.Cmd) {
	e, ok := m.selected()
	if !ok {
		m.message = "No entry selected"
		return m, nil
	}
	client, ctx := m.client, m.ctx
	return m.startLoading(func() tea.Msg {
		body, err := client.GetLedgerBody(ctx, e.ID)
		return bodyCompleteMsg{id: e.ID, body: body, err: err}
	})
}

func (m InteractiveTable) handleSetStatus(status string) (InteractiveTable, tea.Cmd) {
	e, ok := m.selected()
	if !ok {
		m.message = "No entry selected"
		return m, nil
	}
	if e.Status == status {
		m.message = fmt.Sprintf("Entry %d is already %s", e.ID, status)
		return m, nil
	}
	client, ctx := m.client, m.ctx
	return m.startLoading(func() tea.Msg {
		entry, err := client.UpdateLedgerEntry(ctx, e.ID, &cliapi.UpdateLedgerRequest{Status: &status})
		return statusCompleteMsg{entry: entry, err: err}
	})
}

func (m InteractiveTable) handleDelete() (InteractiveTable, tea.Cmd) {
	e, ok := m.selected()
	if !ok {
		m.message = "No entry selected"
		return m, nil
	}
	m.showDeleteConfirm = true
	m.deleteTarget = e.ID
	m.message = ""
	m.err = nil
	return m, nil
}

func (m InteractiveTable) confirmDelete() (InteractiveTable, tea.Cmd) {
	m.showDeleteConfirm = false
	id, client, ctx := m.deleteTarget, m.client, m.ctx
	return m.startLoading(func() tea.Msg {
		return deleteCompleteMsg{id: id, err: client.DeleteLedgerEntry(ctx, id)}
	})
}

func (m InteractiveTable) reload() tea.Cmd {
	client, ctx, q := m.client, m.ctx, m.query
	return func() tea.Msg {
		entries, err := client.ListLedger(ctx, q)
		return reloadCompleteMsg{entries: entries, err: err}
	}
}

func (m InteractiveTable) replaceEntry(updated database.LedgerEntry) InteractiveTable {
	entries := make([]database.LedgerEntry, len(m.entries))
	copy(entries, m.entries)
	for i := range entries {
		if entries[i].ID == updated.ID {
			entries[i] = updated
		}
	}
	m.entries = entries
	m.table.SetRows(entriesToRows(m.entries, m.fields))
	return m
}

func (m InteractiveTable) removeEntry(id int64) InteractiveTable {
	entries := make([]database.LedgerEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.ID != id {
			entries = append(entries, e)
		}
	}
	m.entries = entries
	m.table.SetRows(entriesToRows(m.entries, m.fields))
	m.clampCursor()
	return m
}

func (m *InteractiveTable) clampCursor() {
	if len(m.entries) == 0 {
		m.table.SetCursor(0)
		return
	}
	if m.table.Cursor() >= len(m.entries) {
		m.table.SetCursor(len(m.entries) - 1)
	}
}
