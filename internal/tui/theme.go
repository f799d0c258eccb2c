// Package tui implements the markhor terminal interfaces: the interactive
// chat client and the live history board.
package tui

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the TUI surfaces.
// Even with a single default theme, this keeps all colors in one place
// and makes future theme support trivial.
type Theme struct {
	// Status colors
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusQueued  lipgloss.Style

	// UI elements
	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	// Chat roles
	You    lipgloss.Style
	Plugin lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusQueued:  lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		You:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Plugin: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E5C07B")),
	}
}

// statusSymbol renders the one-cell status marker used in history rows.
func (t Theme) statusSymbol(status string) string {
	switch status {
	case "succeeded":
		return t.StatusOK.Render("●")
	case "running":
		return t.StatusRunning.Render("◉")
	case "queued":
		return t.StatusQueued.Render("○")
	case "timed_out":
		return t.StatusFailed.Render("◑")
	case "spawn_failed", "malformed_response":
		return t.StatusFailed.Render("◔")
	default:
		return t.StatusFailed.Render("∅")
	}
}
