package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/manifest"
)

var (
	pickerTitleStyle      = lipgloss.NewStyle().MarginLeft(2)
	pickerPaginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	pickerHelpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	pickerQuitTextStyle   = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

type pluginItem struct {
	name string
	desc string
}

func (i pluginItem) Title() string       { return i.name }
func (i pluginItem) Description() string { return i.desc }
func (i pluginItem) FilterValue() string { return i.name }

// PickerModel lets the user choose among the plugins that declare a method.
type PickerModel struct {
	list     list.Model
	choice   string
	quitting bool
}

// NewPicker lists the enabled plugins declaring the given method.
func NewPicker(cfg *config.Config, registry *manifest.Registry, method string) PickerModel {
	var items []list.Item
	for _, name := range registry.Names() {
		p, _ := registry.Get(name)
		if !cfg.PluginEnabled(name) || !p.SupportsMethod(method) {
			continue
		}
		desc := p.Description
		if desc == "" {
			desc = fmt.Sprintf("version %s", p.Version)
		}
		items = append(items, pluginItem{name: name, desc: desc})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = fmt.Sprintf("Select a plugin for %q (Enter to confirm)", method)
	l.Styles.Title = pickerTitleStyle
	l.Styles.PaginationStyle = pickerPaginationStyle
	l.Styles.HelpStyle = pickerHelpStyle

	return PickerModel{list: l}
}

func (m PickerModel) Init() tea.Cmd {
	return nil
}

func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			if item, ok := m.list.SelectedItem().(pluginItem); ok {
				m.choice = item.name
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m PickerModel) View() string {
	if m.quitting {
		return pickerQuitTextStyle.Render("Cancelled.")
	}
	if m.choice != "" {
		return pickerQuitTextStyle.Render("Selected " + m.choice + ".")
	}
	return "\n" + m.list.View()
}

// Choice returns the selected plugin name, empty when cancelled.
func (m PickerModel) Choice() string {
	return m.choice
}
