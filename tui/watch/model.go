// Package watch renders a live terminal view of all tracked operations,
// driven entirely by facade subscriptions.
package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/patchforge/opsync/pkg/client"
	"github.com/patchforge/opsync/pkg/status"
)

type keyMap struct {
	ToggleAll key.Binding
	Quit      key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ToggleAll, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.ToggleAll, k.Quit}}
}

var keys = keyMap{
	ToggleAll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "toggle all/active"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

type changeMsg struct{}
type closedMsg struct{}
type tickMsg time.Time

// Model is the bubbletea model for the watch view.
type Model struct {
	facade  *client.Facade
	updates chan struct{}
	bar     progress.Model
	help    help.Model
	keys    keyMap
	showAll bool
	width   int
}

// New creates a watch model over a started facade.
func New(facade *client.Facade) Model {
	return Model{
		facade:  facade,
		updates: facade.Subscribe(),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		help:    help.New(),
		keys:    keys,
		showAll: true,
		width:   80,
	}
}

// Run starts the watch UI and blocks until the user quits.
func Run(facade *client.Facade) error {
	p := tea.NewProgram(New(facade), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), tick())
}

func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-m.updates; !ok {
			return closedMsg{}
		}
		return changeMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.ToggleAll):
			m.showAll = !m.showAll
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = barWidth(msg.Width)
	case changeMsg:
		return m, m.waitForChange()
	case closedMsg:
		return m, tea.Quit
	case tickMsg:
		// Redraw so the age column stays current.
		return m, tick()
	}
	return m, nil
}

func barWidth(total int) int {
	w := total / 4
	if w < 10 {
		w = 10
	}
	if w > 40 {
		w = 40
	}
	return w
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Faint(true)
	idStyle     = lipgloss.NewStyle().Bold(true)
	detailStyle = lipgloss.NewStyle().Faint(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	statusStyles = map[status.Status]lipgloss.Style{
		status.StatusIdle:        lipgloss.NewStyle().Faint(true),
		status.StatusDownloading: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		status.StatusProcessing:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		status.StatusUploading:   lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		status.StatusCompleted:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		status.StatusError:       lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		status.StatusCancelled:   lipgloss.NewStyle().Faint(true),
	}
)

func (m Model) View() string {
	var ops []*status.Operation
	var title string
	if m.showAll {
		ops = m.facade.GetAllOperations()
		title = "opsync · all operations"
	} else {
		ops = m.facade.GetActiveOperations()
		title = "opsync · active operations"
	}

	s := titleStyle.Render(title) + "\n\n"

	if len(ops) == 0 {
		s += detailStyle.Render("  no operations") + "\n"
	} else {
		s += headerStyle.Render(fmt.Sprintf("  %-12s %-20s %-12s %-14s %s", "ID", "LABEL", "STATUS", "PHASE", "PROGRESS")) + "\n"
		for _, op := range ops {
			s += m.renderOperation(op)
		}
	}

	s += "\n" + m.help.View(m.keys)
	return s
}

func (m Model) renderOperation(op *status.Operation) string {
	style, ok := statusStyles[op.Status]
	if !ok {
		style = lipgloss.NewStyle()
	}

	line := fmt.Sprintf("  %s %s %s %s %s %3.0f%%\n",
		pad(idStyle.Render(op.ID), 12),
		pad(op.LabelName, 20),
		pad(style.Render(string(op.Status)), 12),
		pad(op.Phase.Name, 14),
		m.bar.ViewAs(op.OverallProgress),
		op.OverallProgress*100,
	)

	if op.Status == status.StatusError && op.ErrorMessage != "" {
		line += "    " + errStyle.Render("✗ "+op.ErrorMessage) + "\n"
	} else if op.Phase.Detail != "" {
		line += "    " + detailStyle.Render(op.Phase.Detail) + "\n"
	}
	return line
}

// pad right-pads rendered text to a display width, tolerating ANSI sequences.
func pad(rendered string, width int) string {
	w := lipgloss.Width(rendered)
	for w < width {
		rendered += " "
		w++
	}
	return rendered
}
