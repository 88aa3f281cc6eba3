package tui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"xarchiver/pkg/orchestrator"
	"xarchiver/pkg/report"
)

// Item is one URL of the batch as the TUI sees it
type Item struct {
	URL      string
	State    orchestrator.State
	Folder   string
	Attempts int
	Error    string
	Started  time.Time
	Finished time.Time
}

// Stats summarises the batch so far
type Stats struct {
	Total     int
	Done      int
	Succeeded int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
	ETA       time.Duration
}

// Model represents the TUI model
type Model struct {
	// UI components
	spinner spinner.Model
	bar     progress.Model

	// Batch state
	items   map[string]*Item
	order   []string
	current string
	total   int

	succeeded int
	skipped   int
	failed    int
	finished  bool

	sessionStartTime time.Time
	now              func() time.Time

	// UI state
	width          int
	height         int
	showHelp       bool
	isPaused       bool
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a new TUI model
func NewModel() *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	return &Model{
		spinner:          s,
		bar:              progress.New(progress.WithDefaultGradient()),
		items:            make(map[string]*Item),
		sessionStartTime: time.Now(),
		now:              time.Now,
		maxLogMessages:   50,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// StartURL registers url as the one being processed
func (m *Model) StartURL(url string, index, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total = total
	m.current = url
	item, ok := m.items[url]
	if !ok {
		item = &Item{URL: url}
		m.items[url] = item
		m.order = append(m.order, url)
	}
	item.Started = m.now()
}

// SetState records a state transition
func (m *Model) SetState(url string, state orchestrator.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item, ok := m.items[url]; ok {
		item.State = state
	}
}

// FinishURL records the terminal state and outcome of url
func (m *Model) FinishURL(url string, state orchestrator.State, outcome report.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[url]
	if !ok {
		item = &Item{URL: url}
		m.items[url] = item
		m.order = append(m.order, url)
	}
	item.State = state
	item.Folder = outcome.Folder
	item.Attempts = outcome.RetryAttempts
	item.Error = outcome.ErrorMsg
	item.Finished = m.now()

	switch state {
	case orchestrator.StateSucceeded:
		m.succeeded++
	case orchestrator.StateSkipped:
		m.skipped++
	default:
		m.failed++
	}
	if m.current == url {
		m.current = ""
	}
}

// Finish marks the batch as complete
func (m *Model) Finish(result orchestrator.BatchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finished = true
	m.current = ""
	if result.Total > m.total {
		m.total = result.Total
	}
}

// TogglePause flips the paused flag and returns the new value
func (m *Model) TogglePause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.isPaused = !m.isPaused
	return m.isPaused
}

// IsPaused reports whether the user paused the batch
func (m *Model) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := dimWhite
	switch level {
	case "ERROR":
		color = neonRed
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// ClearLogs drops all log messages
func (m *Model) ClearLogs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logMessages = nil
}

// Current returns the item being processed, if any
func (m *Model) Current() (Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[m.current]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Recent returns up to n finished items, newest first
func (m *Model) Recent(n int) []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recent []Item
	for i := len(m.order) - 1; i >= 0 && len(recent) < n; i-- {
		item := m.items[m.order[i]]
		if item.State.Terminal() {
			recent = append(recent, *item)
		}
	}
	return recent
}

// Stats returns the batch counters and timing
func (m *Model) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Total:     m.total,
		Succeeded: m.succeeded,
		Skipped:   m.skipped,
		Failed:    m.failed,
		Elapsed:   m.now().Sub(m.sessionStartTime),
	}
	s.Done = s.Succeeded + s.Skipped + s.Failed
	if s.Done > 0 && s.Total > s.Done {
		s.ETA = s.Elapsed / time.Duration(s.Done) * time.Duration(s.Total-s.Done)
	}
	return s
}

// Fraction returns the completed share of the batch in [0,1]
func (s Stats) Fraction() float64 {
	if s.Total == 0 {
		return 0
	}
	f := float64(s.Done) / float64(s.Total)
	if f > 1 {
		return 1
	}
	return f
}
