// Package watchtui renders a live view of the agents in a working
// directory: the agent tree on the left and the selected agent's log on the
// right.
package watchtui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/agusx1211/brood/internal/registry"
	"github.com/agusx1211/brood/internal/roster"
	"github.com/agusx1211/brood/internal/theme"
)

const listWidth = 40

// Source supplies the data the view renders.
type Source interface {
	List() ([]roster.Agent, error)
	Body(id string) (string, error)
}

type snapshotMsg struct {
	agents []roster.Agent
	body   string
	err    error
}

type tickMsg time.Time

// Model is the bubbletea model for `brood watch`.
type Model struct {
	src      Source
	interval time.Duration
	keys     KeyMap

	width, height int
	agents        []roster.Agent
	selected      string
	body          string
	follow        bool
	err           error

	spin spinner.Model
	view viewport.Model
}

// NewModel returns a model polling src every interval.
func NewModel(src Source, interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = theme.StatusInProgress
	return Model{
		src:      src,
		interval: interval,
		keys:     DefaultKeyMap(),
		follow:   true,
		spin:     sp,
		view:     viewport.New(80, 20),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.load())
}

func (m Model) load() tea.Cmd {
	src, selected := m.src, m.selected
	return func() tea.Msg {
		agents, err := src.List()
		if err != nil {
			return snapshotMsg{err: err}
		}
		if selected == "" && len(agents) > 0 {
			selected = agents[len(agents)-1].ID
		}
		var body string
		if selected != "" {
			body, _ = src.Body(selected)
		}
		return snapshotMsg{agents: agents, body: body}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.view.Width = max(10, m.width-listWidth-4)
		m.view.Height = max(3, m.height-4)
		m.setContent()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			return m.move(-1)
		case key.Matches(msg, m.keys.Down):
			return m.move(1)
		case key.Matches(msg, m.keys.Follow):
			m.follow = true
			m.view.GotoBottom()
			return m, nil
		case key.Matches(msg, m.keys.PageUp):
			m.follow = false
			m.view.PageUp()
			return m, nil
		case key.Matches(msg, m.keys.PageDown):
			m.view.PageDown()
			m.follow = m.view.AtBottom()
			return m, nil
		}

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.agents = msg.agents
			if m.selected == "" && len(m.agents) > 0 {
				m.selected = m.agents[len(m.agents)-1].ID
			}
			m.body = msg.body
			m.setContent()
		}
		return m, m.tick()

	case tickMsg:
		return m, m.load()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) move(delta int) (tea.Model, tea.Cmd) {
	if len(m.agents) == 0 {
		return m, nil
	}
	i := m.index() + delta
	i = max(0, min(i, len(m.agents)-1))
	if m.agents[i].ID == m.selected {
		return m, nil
	}
	m.selected = m.agents[i].ID
	m.body = ""
	m.follow = true
	m.setContent()
	return m, m.load()
}

func (m Model) index() int {
	for i, a := range m.agents {
		if a.ID == m.selected {
			return i
		}
	}
	return 0
}

func (m *Model) setContent() {
	var lines []string
	for _, line := range strings.Split(m.body, "\n") {
		lines = append(lines, ansi.Wrap(line, m.view.Width, " "))
	}
	m.view.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.view.GotoBottom()
	}
}

func (m Model) View() string {
	header := theme.Header.Render("brood watch")
	if m.err != nil {
		header += " " + theme.StatusFailed.Render(m.err.Error())
	}

	left := lipgloss.NewStyle().
		Width(listWidth).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorSurface2).
		Render(m.renderList())
	right := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorSurface2).
		Render(m.view.View())

	help := theme.Dim.Render("↑/↓ select  pgup/pgdn scroll  G follow  q quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, lipgloss.JoinHorizontal(lipgloss.Top, left, right), help)
}

func (m Model) renderList() string {
	if len(m.agents) == 0 {
		return theme.Dim.Render("no agents yet")
	}
	var b strings.Builder
	for _, a := range m.agents {
		icon := theme.StatusStyle(a.Status).Render(theme.StatusIcon(a.Status))
		if a.Status == registry.StatusInProgress && a.Alive {
			icon = m.spin.View()
		}
		indent := strings.Repeat("  ", max(0, a.Depth-1))
		label := a.ID
		if a.Type != "" {
			label += " " + theme.Dim.Render(a.Type)
		}
		line := fmt.Sprintf("%s%s %s", indent, icon, label)
		if a.ID == m.selected {
			line = theme.Label.Render("›") + line
		} else {
			line = " " + line
		}
		b.WriteString(ansi.Truncate(line, listWidth, "…"))
		b.WriteString("\n")
		if a.Task != "" {
			b.WriteString(theme.Dim.Render(ansi.Truncate("   "+indent+a.Task, listWidth, "…")))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
