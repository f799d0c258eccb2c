package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dtrlanz/markhor/internal/journal"
)

const watchInterval = 2 * time.Second

type historyMsg []journal.Entry
type watchTickMsg time.Time
type watchErrMsg error

// WatchModel is the BubbleTea model for the live history board. It polls the
// journal directly, so it works whether or not a host is serving.
type WatchModel struct {
	lister HistoryLister
	filter journal.Filter

	width  int
	height int

	table     table.Model
	theme     Theme
	lastErr   string
	refreshed time.Time
}

// NewWatch builds the watch board over a journal reader.
func NewWatch(lister HistoryLister, filter journal.Filter) WatchModel {
	t := table.New(
		table.WithColumns(watchColumns(0)),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return WatchModel{
		lister: lister,
		filter: filter,
		table:  t,
		theme:  NewDefaultTheme(),
	}
}

func watchColumns(width int) []table.Column {
	plugin := 20
	if width > 90 {
		plugin = width - 70
	}
	return []table.Column{
		{Title: "ST", Width: 2},
		{Title: "Plugin", Width: plugin},
		{Title: "Method", Width: 14},
		{Title: "ID", Width: 10},
		{Title: "Exit", Width: 4},
		{Title: "Duration", Width: 10},
		{Title: "Age", Width: 8},
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(
		fetchHistory(m.lister, m.filter),
		tea.EnterAltScreen,
	)
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width - 4)
		m.table.SetHeight(msg.Height - 8)
		m.table.SetColumns(watchColumns(msg.Width - 4))

	case historyMsg:
		m.table.SetRows(m.entriesToRows(msg))
		m.refreshed = time.Now()
		m.lastErr = ""
		return m, tea.Tick(watchInterval, func(t time.Time) tea.Msg { return watchTickMsg(t) })

	case watchTickMsg:
		return m, fetchHistory(m.lister, m.filter)

	case watchErrMsg:
		m.lastErr = msg.Error()
		return m, tea.Tick(watchInterval, func(t time.Time) tea.Msg { return watchTickMsg(t) })
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m WatchModel) entriesToRows(entries []journal.Entry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		id := e.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, table.Row{
			m.theme.statusSymbol(e.Status),
			e.Plugin,
			e.Method,
			id,
			fmt.Sprintf("%d", e.ExitCode),
			e.Duration.Round(time.Millisecond).String(),
			renderAge(time.Since(e.CreatedAt)),
		})
	}
	return rows
}

func renderAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// fetchHistory reads the journal off the update loop.
func fetchHistory(lister HistoryLister, filter journal.Filter) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		entries, err := lister.List(ctx, filter)
		if err != nil {
			return watchErrMsg(err)
		}
		return historyMsg(entries)
	}
}

func (m WatchModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	title := "Exchange History"
	if m.filter.Plugin != "" {
		title += m.theme.Dim.Render("  ·  " + m.filter.Plugin)
	}
	header := m.theme.Border.Width(m.width - 2).Render(m.theme.Title.Render(title))
	body := m.theme.Border.Width(m.width - 2).Render(m.table.View())

	var errBar string
	if m.lastErr != "" {
		errBar = m.theme.StatusFailed.Render(" ⚠ " + m.lastErr)
	}

	footer := m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll")
	if !m.refreshed.IsZero() {
		footer += m.theme.Dim.Render("  ·  refreshed " + m.refreshed.Format("15:04:05"))
	}

	parts := []string{header, body}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, footer)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
