package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// render renders the dashboard.
func (m Model) render() string {
	sections := []string{
		m.renderHeader(),
		m.renderTiming(),
		m.renderFrames(),
		m.renderSubprocesses(),
		m.renderFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	state := m.status.State
	if state == "" {
		state = "starting"
	}
	header := fmt.Sprintf(" go-exposure-run │ run %s │ %s ",
		m.status.RunID,
		state,
	)
	return headerStyle.Render(header)
}

func (m Model) renderTiming() string {
	remaining := "manual stop"
	if m.status.Remaining >= 0 {
		remaining = formatDuration(m.status.Remaining)
	}

	body := fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Elapsed:"),
		valueStyle.Render(formatDuration(m.status.Elapsed)),
		labelStyle.Render("Remaining:"),
		valueStyle.Render(remaining),
	)
	return sectionStyle.Render(titleStyle.Render("Timing") + "\n" + body)
}

func (m Model) renderFrames() string {
	lines := fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Captured:"),
		valueStyle.Render(fmt.Sprintf("%d", m.status.FrameCount)),
		labelStyle.Render("Rate:"),
		valueStyle.Render(fmt.Sprintf("%.1f/s", m.status.FrameRate)),
	)
	if m.status.IntervalP50 > 0 {
		lines += fmt.Sprintf("\n%s %s   %s %s",
			labelStyle.Render("Interval P50:"),
			valueStyle.Render(m.status.IntervalP50.String()),
			labelStyle.Render("P95:"),
			valueStyle.Render(m.status.IntervalP95.String()),
		)
	}
	return sectionStyle.Render(titleStyle.Render("Frames") + "\n" + lines)
}

func (m Model) renderSubprocesses() string {
	body := fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("capture:"),
		liveness(m.status.CaptureAlive),
		labelStyle.Render("logger:"),
		liveness(m.status.LoggerAlive),
	)
	state := stateStyle(m.status.State).Render(m.status.State)
	return sectionStyle.Render(titleStyle.Render("Run") + "\n" + body + "\n" +
		labelStyle.Render("state:") + " " + state + "   " +
		labelStyle.Render("dir:") + " " + valueStyle.Render(m.status.Dir))
}

func (m Model) renderFooter() string {
	return footerStyle.Render(" q: stop run   (shutdown is ordered: capture, then logger) ")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
