package tui

import (
	"github.com/charmbracelet/lipgloss"

	"xarchiver/pkg/orchestrator"
)

var (
	// Color palette
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	neonRed     = lipgloss.Color("#FF0000")
	darkBg      = lipgloss.Color("#0A0E27")
	darkBg2     = lipgloss.Color("#1A1E37")
	dimWhite    = lipgloss.Color("#B0B0B0")

	baseStyle = lipgloss.NewStyle().
			Background(darkBg).
			Foreground(dimWhite)

	logoStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true).
			Padding(1, 0).
			Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Background(darkBg2).
			Padding(1, 2)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(neonYellow)

	successStyle = lipgloss.NewStyle().
			Foreground(neonGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(neonRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(neonOrange).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(dimWhite).
			Faint(true)

	itemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666"))

	logMessageStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(1, 0, 0, 2)

	titleStyle = lipgloss.NewStyle().
			Background(neonMagenta).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)
)

// StateStyle returns the style used to render a state
func StateStyle(state orchestrator.State) lipgloss.Style {
	switch state {
	case orchestrator.StateSucceeded:
		return successStyle
	case orchestrator.StateFailed:
		return errorStyle
	case orchestrator.StateSkipped:
		return mutedStyle
	case orchestrator.StateFetchingAssets, orchestrator.StatePersisting:
		return statsValueStyle
	default:
		return statsLabelStyle
	}
}

// StateIcon returns the marker shown next to a finished URL
func StateIcon(state orchestrator.State) string {
	switch state {
	case orchestrator.StateSucceeded:
		return "✓"
	case orchestrator.StateFailed:
		return "✗"
	case orchestrator.StateSkipped:
		return "•"
	default:
		return "…"
	}
}
