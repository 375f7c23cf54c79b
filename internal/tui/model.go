package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// QuitMsg signals the TUI should exit (run finished).
type QuitMsg struct{}

// Status is a point-in-time view of the supervised run.
type Status struct {
	RunID string
	State string
	Dir   string

	Elapsed   time.Duration
	Remaining time.Duration // < 0 = manual stop

	FrameCount   int
	FrameRate    float64
	IntervalP50  time.Duration
	IntervalP95  time.Duration
	CaptureAlive bool
	LoggerAlive  bool
}

// Config holds TUI configuration.
type Config struct {
	// Fetch returns the latest run status on each tick.
	Fetch func() Status

	// OnStop requests a manual run stop (quit keys).
	OnStop func()
}

// Model represents the TUI state.
type Model struct {
	fetch  func() Status
	onStop func()

	status     Status
	lastUpdate time.Time

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		fetch:      cfg.Fetch,
		onStop:     cfg.OnStop,
		lastUpdate: time.Now(),
		width:      80,
		height:     24,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// Request a run stop; the program quits when the run
			// finishes and sends QuitMsg.
			if m.onStop != nil {
				m.onStop()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.fetch != nil {
			m.status = m.fetch()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// SendQuit tells a running program to exit.
func SendQuit(p *tea.Program) {
	p.Send(QuitMsg{})
}
