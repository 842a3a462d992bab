// Package tui implements the read-only live view behind `workgraph watch
// --tui`: a bubbletea Model/Update/View loop over a bubbles list.Model,
// styled with lipgloss. It is purely observational and never mutates the
// graph itself.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/workgraph/workgraph/internal/watch"
)

// Update is one refreshed snapshot plus the events that produced it,
// pushed in over a channel by the CLI's fsnotify/poll loop (cmd/workgraph's
// watch command owns and closes the channel).
type Update struct {
	Snapshot watch.Snapshot
	Events   []watch.Event
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	readyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	footStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	eventStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
)

type taskItem struct {
	id     string
	status string
	ready  bool
}

func (i taskItem) Title() string {
	if i.ready {
		return readyStyle.Render("> " + i.id)
	}
	return "  " + i.id
}
func (i taskItem) Description() string { return i.status }
func (i taskItem) FilterValue() string { return i.id }

const maxEventLines = 8

// WatchModel is the bubbletea model behind `workgraph watch --tui`: a live
// readiness/coordinator view rendered from the same watch.Snapshot
// diff stream the plain-text watch mode prints.
type WatchModel struct {
	updates  <-chan Update
	list     list.Model
	events   []watch.Event
	taskCnt  int
	readyCnt int
	width    int
	height   int
	quitting bool
}

// NewWatchModel builds a WatchModel that receives snapshots over updates.
func NewWatchModel(updates <-chan Update) WatchModel {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "tasks"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	return WatchModel{updates: updates, list: l}
}

func (m WatchModel) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

type updateMsg Update
type updatesClosedMsg struct{}

func waitForUpdate(ch <-chan Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return updateMsg(u)
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		listHeight := msg.Height - maxEventLines - 6
		if listHeight < 3 {
			listHeight = 3
		}
		m.list.SetSize(msg.Width, listHeight)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case updateMsg:
		m.applyUpdate(Update(msg))
		return m, waitForUpdate(m.updates)

	case updatesClosedMsg:
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *WatchModel) applyUpdate(u Update) {
	m.taskCnt = u.Snapshot.TaskCount
	m.readyCnt = len(u.Snapshot.Ready)

	items := make([]list.Item, 0, len(u.Snapshot.Statuses))
	for _, id := range sortedKeys(u.Snapshot.Statuses) {
		items = append(items, taskItem{
			id:     id,
			status: string(u.Snapshot.Statuses[id]),
			ready:  u.Snapshot.Ready[id],
		})
	}
	m.list.SetItems(items)

	m.events = append(m.events, u.Events...)
	if len(m.events) > maxEventLines {
		m.events = m.events[len(m.events)-maxEventLines:]
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}
	header := titleStyle.Render(fmt.Sprintf("workgraph watch — %d tasks, %d ready", m.taskCnt, m.readyCnt))

	var eventLines []string
	for _, e := range m.events {
		eventLines = append(eventLines, eventStyle.Render(fmt.Sprintf("[%s] %s", e.Category, e.Message)))
	}
	eventsBox := strings.Join(eventLines, "\n")

	footer := footStyle.Render("q: quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, m.list.View(), eventsBox, footer)
}
