package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/tui/mocks"
)

func TestWatchModelPopulatesRows(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	entries := []journal.Entry{
		{
			ID:        "abcdef123456",
			Plugin:    "gemini-chat",
			Method:    "chat",
			Status:    "succeeded",
			ExitCode:  0,
			Duration:  1200 * time.Millisecond,
			CreatedAt: time.Now().Add(-30 * time.Second),
		},
		{
			ID:        "fedcba654321",
			Plugin:    "echo",
			Method:    "echo",
			Status:    "timed_out",
			ExitCode:  -1,
			Duration:  60 * time.Second,
			CreatedAt: time.Now().Add(-2 * time.Minute),
		},
	}

	lister := mocks.NewMockHistoryLister(ctrl)
	lister.EXPECT().
		List(gomock.Any(), journal.Filter{Plugin: "gemini-chat"}).
		Return(entries, nil)

	m := NewWatch(lister, journal.Filter{Plugin: "gemini-chat"})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(WatchModel)

	msg := fetchHistory(m.lister, m.filter)()
	history, ok := msg.(historyMsg)
	require.True(t, ok, "expected historyMsg, got %T", msg)

	next, tick := m.Update(history)
	m = next.(WatchModel)
	assert.NotNil(t, tick, "a refresh should schedule the next poll")

	rows := m.table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "gemini-chat", rows[0][1])
	assert.Equal(t, "chat", rows[0][2])
	assert.Equal(t, "abcdef12", rows[0][3])
	assert.Equal(t, "1.2s", rows[0][5])
	assert.Equal(t, "30s", rows[0][6])
	assert.Equal(t, "-1", rows[1][4])

	assert.Contains(t, m.View(), "Exchange History")
}

func TestWatchModelListError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lister := mocks.NewMockHistoryLister(ctrl)
	lister.EXPECT().
		List(gomock.Any(), journal.Filter{}).
		Return(nil, errors.New("database is locked"))

	m := NewWatch(lister, journal.Filter{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(WatchModel)

	msg := fetchHistory(m.lister, m.filter)()
	errM, ok := msg.(watchErrMsg)
	require.True(t, ok, "expected watchErrMsg, got %T", msg)

	next, retry := m.Update(errM)
	m = next.(WatchModel)
	assert.NotNil(t, retry, "errors should schedule a retry")
	assert.Contains(t, m.View(), "database is locked")
}

func TestWatchModelTickFetches(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lister := mocks.NewMockHistoryLister(ctrl)
	lister.EXPECT().
		List(gomock.Any(), journal.Filter{}).
		Return([]journal.Entry{}, nil)

	m := NewWatch(lister, journal.Filter{})
	_, cmd := m.Update(watchTickMsg(time.Now()))
	require.NotNil(t, cmd)

	msg := cmd()
	_, ok := msg.(historyMsg)
	assert.True(t, ok, "tick should trigger a fetch, got %T", msg)
}

func TestWatchModelQuitKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := NewWatch(mocks.NewMockHistoryLister(ctrl), journal.Filter{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestRenderAge(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		expected string
	}{
		{"seconds", 30 * time.Second, "30s"},
		{"minutes", 5 * time.Minute, "5m"},
		{"hours", 3 * time.Hour, "3h"},
		{"days", 49 * time.Hour, "2d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, renderAge(tt.age))
		})
	}
}
