package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"xarchiver/pkg/orchestrator"
	"xarchiver/pkg/report"
)

// Message types for the TUI

// URLStartMsg is sent when a URL is picked up
type URLStartMsg struct {
	URL   string
	Index int
	Total int
}

// URLStateMsg is sent on every state transition
type URLStateMsg struct {
	URL   string
	State orchestrator.State
}

// URLDoneMsg is sent when a URL reaches a terminal state
type URLDoneMsg struct {
	URL     string
	State   orchestrator.State
	Outcome report.Outcome
}

// BatchDoneMsg is sent once the whole batch has finished
type BatchDoneMsg struct {
	Result orchestrator.BatchResult
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case URLStartMsg:
		m.StartURL(msg.URL, msg.Index, msg.Total)
		m.AddLogMessage("INFO", fmt.Sprintf("[%d/%d] %s", msg.Index+1, msg.Total, msg.URL))
		return m, nil

	case URLStateMsg:
		m.SetState(msg.URL, msg.State)
		return m, nil

	case URLDoneMsg:
		m.FinishURL(msg.URL, msg.State, msg.Outcome)
		switch msg.State {
		case orchestrator.StateSucceeded:
			m.AddLogMessage("SUCCESS", "Archived: "+msg.Outcome.Folder)
		case orchestrator.StateSkipped:
			m.AddLogMessage("INFO", "Already archived: "+msg.URL)
		default:
			m.AddLogMessage("ERROR", "Failed: "+msg.URL+" - "+msg.Outcome.ErrorMsg)
		}
		return m, nil

	case BatchDoneMsg:
		m.Finish(msg.Result)
		m.AddLogMessage("SUCCESS", fmt.Sprintf("Batch finished: %d archived, %d skipped, %d failed",
			msg.Result.Succeeded, msg.Result.Skipped, msg.Result.Failed))
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "p", "P":
		if m.TogglePause() {
			m.AddLogMessage("WARN", "Batch paused after the current URL")
		} else {
			m.AddLogMessage("INFO", "Batch resumed")
		}
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.ClearLogs()
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
