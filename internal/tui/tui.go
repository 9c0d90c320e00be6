package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"inscription-contest/internal/monitor"
)

func padToWidth(s string, width int) string {
	current := runewidth.StringWidth(s)
	if current >= width {
		return s
	}
	return s + strings.Repeat(" ", width-current)
}

func formatInfoLine(text string, width int) string {
	if width < 2 {
		return padToWidth(text, width)
	}
	return "│" + padToWidth(text, width-2) + "│"
}

// UpdateMsg is sent when the monitor publishes a fresh status snapshot.
type UpdateMsg struct {
	Status monitor.Status
}

// Model holds the TUI state
type Model struct {
	status monitor.Status
	width  int
	height int
}

// NewModel creates a new TUI model
func NewModel() Model {
	return Model{}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case UpdateMsg:
		m.status = msg.Status
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := m.renderHeader()
	competition := m.renderCompetition()
	return lipgloss.JoinVertical(lipgloss.Left, header, competition)
}

// renderHeader renders the chain progress section
func (m Model) renderHeader() string {
	st := m.status

	runningStr := "stopped"
	if st.Running {
		runningStr = "running"
	}
	hashStr := st.LastProcessedHash
	if len(hashStr) > 16 {
		hashStr = hashStr[:16] + "..."
	}
	lastCheckedStr := "never"
	if !st.LastChecked.IsZero() {
		lastCheckedStr = st.LastChecked.Format("15:04:05")
	}

	lines := []string{
		fmt.Sprintf("monitor: %s  chain=%d processed=%d behind=%d",
			runningStr, st.ObservedHeight, st.LastProcessedBlock, st.BlocksBehind),
		fmt.Sprintf("last hash: %s  checked: %s", hashStr, lastCheckedStr),
		fmt.Sprintf("blocks without launch: %d  last launch: block %d",
			st.BlocksWithoutLaunch, st.LastLaunchBlock),
	}

	var rows []string
	for _, l := range lines {
		rows = append(rows, formatInfoLine(" "+l, m.width))
	}

	topBorder := "┌" + strings.Repeat("─", m.width-2) + "┐"
	separator := "├" + strings.Repeat("─", m.width-2) + "┤"
	return topBorder + "\n" + strings.Join(rows, "\n") + "\n" + separator
}

// renderCompetition renders the contest counts and current front-runner
func (m Model) renderCompetition() string {
	es := m.status.Engine
	if es == nil {
		return formatInfoLine(" waiting for engine status...", m.width) + "\n" +
			"└" + strings.Repeat("─", m.width-2) + "┘"
	}

	lines := []string{
		fmt.Sprintf("active=%d leaders=%d inscribing=%d expired=%d inscribed=%d",
			es.TotalActive, es.CurrentLeaders, es.CurrentlyInscribing,
			es.TotalExpired, es.TotalInscribed),
	}
	if es.Top != nil {
		lines = append(lines, fmt.Sprintf("top: %s  votes=%d status=%s blocks as leader=%d",
			es.Top.Ticker, es.Top.TotalVotes, es.Top.Status, es.Top.BlocksAsLeader))
	} else {
		lines = append(lines, "top: none")
	}
	for i, c := range es.Contenders {
		lines = append(lines, fmt.Sprintf("  #%d %-10s votes=%-8d %s",
			i+1, runewidth.Truncate(c.Ticker, 10, "…"), c.TotalVotes, c.Status))
	}

	var rows []string
	for _, l := range lines {
		rows = append(rows, formatInfoLine(" "+l, m.width))
	}

	bottomBorder := "└" + strings.Repeat("─", m.width-2) + "┘"
	return strings.Join(rows, "\n") + "\n" + bottomBorder
}

// Run starts the TUI program
func Run(updateCh <-chan monitor.Status) error {
	m := NewModel()
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Start goroutine to receive updates
	go func() {
		for st := range updateCh {
			p.Send(UpdateMsg{Status: st})
		}
		// Channel closed, quit TUI
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
