package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"xarchiver/pkg/orchestrator"
	"xarchiver/pkg/report"
)

// TUI is the full-screen batch view. It satisfies orchestrator.Observer and
// orchestrator.Pauser so a batch can drive it and be held by it.
type TUI struct {
	program *tea.Program
	model   *Model
}

var (
	_ orchestrator.Observer = (*TUI)(nil)
	_ orchestrator.Pauser   = (*TUI)(nil)
)

// NewTUI creates a new TUI instance
func NewTUI() *TUI {
	model := NewModel()
	return &TUI{
		program: tea.NewProgram(model, tea.WithAltScreen()),
		model:   model,
	}
}

// Start runs the TUI until the user quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) OnStart(url string, index, total int) {
	t.Send(URLStartMsg{URL: url, Index: index, Total: total})
}

func (t *TUI) OnState(url string, state orchestrator.State) {
	t.Send(URLStateMsg{URL: url, State: state})
}

func (t *TUI) OnDone(url string, state orchestrator.State, outcome report.Outcome) {
	t.Send(URLDoneMsg{URL: url, State: state, Outcome: outcome})
}

// Complete shows the batch summary
func (t *TUI) Complete(result orchestrator.BatchResult) {
	t.Send(BatchDoneMsg{Result: result})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}

// IsPaused returns whether the batch is paused
func (t *TUI) IsPaused() bool {
	return t.model.IsPaused()
}
