package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type replyMsg struct {
	content string
	elapsed time.Duration
}

type chatErrMsg struct{ err error }

// ChatModel is the BubbleTea model for the interactive chat client.
type ChatModel struct {
	session *Session
	plugin  string
	model   string

	width  int
	height int
	ready  bool

	viewport viewport.Model
	input    textinput.Model
	theme    Theme

	transcript []string
	waiting    bool
	lastErr    string
	elapsed    time.Duration
}

// NewChat builds the chat UI around a session. The model name is display
// only; the session owns what actually goes on the wire.
func NewChat(session *Session, plugin, model string) ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message"
	ti.CharLimit = 4096
	ti.Focus()

	return ChatModel{
		session: session,
		plugin:  plugin,
		model:   model,
		input:   ti,
		theme:   NewDefaultTheme(),
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.EnterAltScreen)
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.waiting = true
			m.lastErr = ""
			m.transcript = append(m.transcript, m.theme.You.Render("you")+"  "+text)
			m.refreshViewport()
			return m, sendMessage(m.session, text)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		bodyHeight := msg.Height - 9
		if bodyHeight < 3 {
			bodyHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, bodyHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = bodyHeight
		}
		m.input.Width = msg.Width - 8
		m.refreshViewport()

	case replyMsg:
		m.waiting = false
		m.elapsed = msg.elapsed
		m.transcript = append(m.transcript, m.theme.Plugin.Render(m.plugin)+"  "+msg.content, "")
		m.refreshViewport()
		return m, nil

	case chatErrMsg:
		m.waiting = false
		m.lastErr = msg.err.Error()
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *ChatModel) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.transcript, "\n"))
	m.viewport.GotoBottom()
}

// sendMessage runs the blocking plugin call off the update loop.
func sendMessage(session *Session, text string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		reply, err := session.Send(context.Background(), text)
		if err != nil {
			return chatErrMsg{err: err}
		}
		return replyMsg{content: reply, elapsed: time.Since(start)}
	}
}

func (m ChatModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := m.plugin
	if m.model != "" {
		title += m.theme.Dim.Render("  ·  " + m.model)
	}
	header := m.theme.Border.Width(m.width - 2).Render(m.theme.Title.Render(title))

	body := m.theme.Border.Width(m.width - 2).Render(m.viewport.View())

	var status string
	switch {
	case m.waiting:
		status = m.theme.StatusRunning.Render(" waiting for " + m.plugin + "...")
	case m.lastErr != "":
		status = m.theme.StatusFailed.Render(" error: " + m.lastErr)
	default:
		if u := m.session.LastUsage(); u.TotalTokens > 0 {
			status = m.theme.Dim.Render(fmt.Sprintf(" tokens: %d prompt / %d reply / %d total  ·  %s",
				u.PromptTokens, u.ResponseTokens, u.TotalTokens,
				m.elapsed.Round(time.Millisecond)))
		}
	}

	inputView := m.theme.Border.Width(m.width - 2).Render(m.input.View())
	help := m.theme.Dim.Render(" [enter] Send • [esc] Quit")

	parts := []string{header, body, inputView}
	if status != "" {
		parts = append(parts, status)
	}
	parts = append(parts, help)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
