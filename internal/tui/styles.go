// Package tui provides a live terminal dashboard for an acquisition run.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It shows the run's state, elapsed and remaining time, frame
// production, and subprocess liveness.
package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors based on a modern dark theme
var (
	colorPrimary = lipgloss.Color("#7C3AED") // Purple
	colorAccent  = lipgloss.Color("#F59E0B") // Amber

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText)

	goodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	badStyle = lipgloss.NewStyle().
			Foreground(colorError)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)
)

// stateStyle picks a style for a run state name.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "done":
		return goodStyle
	case "failed":
		return badStyle
	case "stopping", "processing":
		return warnStyle
	default:
		return valueStyle
	}
}

// liveness renders a subprocess liveness marker.
func liveness(alive bool) string {
	if alive {
		return goodStyle.Render("● running")
	}
	return labelStyle.Render("○ stopped")
}
