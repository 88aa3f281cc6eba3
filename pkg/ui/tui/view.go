package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"xarchiver/pkg/orchestrator"
)

// pipeline lists the active states in the order a URL passes through them
var pipeline = []orchestrator.State{
	orchestrator.StateNavigating,
	orchestrator.StateExtracting,
	orchestrator.StateFetchingAssets,
	orchestrator.StatePersisting,
}

const logo = `
██╗  ██╗ █████╗ ██████╗  ██████╗██╗  ██╗██╗██╗   ██╗███████╗██████╗
╚██╗██╔╝██╔══██╗██╔══██╗██╔════╝██║  ██║██║██║   ██║██╔════╝██╔══██╗
 ╚███╔╝ ███████║██████╔╝██║     ███████║██║██║   ██║█████╗  ██████╔╝
 ██╔██╗ ██╔══██║██╔══██╗██║     ██╔══██║██║╚██╗ ██╔╝██╔══╝  ██╔══██╗
██╔╝ ██╗██║  ██║██║  ██║╚██████╗██║  ██║██║ ╚████╔╝ ███████╗██║  ██║
╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═══╝  ╚══════╝╚═╝  ╚═╝`

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, logoStyle.Width(m.width).Render(logo))

	width := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderBatchPanel(width),
		m.renderCurrentPanel(width),
		m.renderRecentPanel(width),
	)
	right := m.renderLogsPanel(width)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

// renderBatchPanel renders counters, progress and timing
func (m *Model) renderBatchPanel(width int) string {
	title := titleStyle.Render(" BATCH ")
	s := m.Stats()

	bar := m.bar
	bar.Width = width - 8
	if bar.Width < 10 {
		bar.Width = 10
	}

	lines := []string{
		bar.ViewAs(s.Fraction()),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Progress:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", s.Done, s.Total))),
		fmt.Sprintf("%s %s  %s %s  %s %s",
			statsLabelStyle.Render("Archived:"), successStyle.Render(fmt.Sprint(s.Succeeded)),
			statsLabelStyle.Render("Skipped:"), mutedStyle.Render(fmt.Sprint(s.Skipped)),
			statsLabelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprint(s.Failed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(s.Elapsed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("ETA:"), statsValueStyle.Render(formatDuration(s.ETA))),
	}

	m.mu.RLock()
	paused, finished := m.isPaused, m.finished
	m.mu.RUnlock()
	if finished {
		lines = append(lines, successStyle.Render("✓ Batch complete, press q to exit"))
	} else if paused {
		lines = append(lines, warningStyle.Render("⏸  PAUSED"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

// renderCurrentPanel renders the URL in flight and its pipeline position
func (m *Model) renderCurrentPanel(width int) string {
	title := titleStyle.Render(" CURRENT ")

	item, ok := m.Current()
	if !ok {
		content := mutedStyle.Render("Idle")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var steps []string
	passed := true
	for _, st := range pipeline {
		label := strings.ReplaceAll(string(st), "_", " ")
		switch {
		case st == item.State:
			steps = append(steps, m.spinner.View()+StateStyle(st).Render(label))
			passed = false
		case passed && item.State != "":
			steps = append(steps, successStyle.Render("✓ "+label))
		default:
			steps = append(steps, mutedStyle.Render("  "+label))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		statsValueStyle.Render(truncate(item.URL, width-6)),
		strings.Join(steps, "\n"),
	)
	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

// renderRecentPanel renders the last few finished URLs
func (m *Model) renderRecentPanel(width int) string {
	title := titleStyle.Render(" RECENT ")

	recent := m.Recent(5)
	if len(recent) == 0 {
		content := mutedStyle.Render("Nothing finished yet")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var lines []string
	for _, item := range recent {
		text := item.Folder
		if item.State == orchestrator.StateFailed {
			text = item.URL + " " + item.Error
		} else if text == "" {
			text = item.URL
		}
		line := StateStyle(item.State).Render(StateIcon(item.State)) + " " + truncate(text, width-10)
		lines = append(lines, itemStyle.Render(line))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

// renderLogsPanel renders the logs panel
func (m *Model) renderLogsPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 15
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		message := logMessageStyle.Render(truncate(log.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = mutedStyle.Render("No logs yet...")
	}

	logsHeight := m.height - 12
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderHelp renders the help panel
func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Quit (cancels the batch)
    p/P      - Pause/Resume between URLs
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Markers:
    ` + successStyle.Render("✓") + `        - Archived
    ` + mutedStyle.Render("•") + `        - Already archived
    ` + errorStyle.Render("✗") + `        - Failed
    ⏸        - Paused
`

	return panelStyle.Width(m.width).Render(help)
}

// formatDuration formats a duration as mm:ss or hh:mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
