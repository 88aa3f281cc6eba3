package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"xarchiver/pkg/orchestrator"
	"xarchiver/pkg/report"
)

// stateLabels are the short names shown on the progress line
var stateLabels = map[orchestrator.State]string{
	orchestrator.StateNavigating:     "loading",
	orchestrator.StateExtracting:     "extracting",
	orchestrator.StateFetchingAssets: "images",
	orchestrator.StatePersisting:     "saving",
}

// ProgressDisplay prints a single updating progress line for a batch. In
// verbose mode every finished URL gets its own line instead.
type ProgressDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	total     int
	done      int
	succeeded int
	skipped   int
	failed    int
	current   string
	state     orchestrator.State
	startTime time.Time
	verbose   bool
	now       func() time.Time
}

// NewProgressDisplay creates a display writing to out
func NewProgressDisplay(out io.Writer, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:       out,
		startTime: time.Now(),
		verbose:   verbose,
		now:       time.Now,
	}
}

// OnStart records the URL being processed
func (p *ProgressDisplay) OnStart(url string, index, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = url
	p.state = ""
	if !p.verbose {
		p.printProgress()
	}
}

// OnState updates the current step
func (p *ProgressDisplay) OnState(url string, state orchestrator.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = state
	if !p.verbose && !state.Terminal() {
		p.printProgress()
	}
}

// OnDone counts the finished URL
func (p *ProgressDisplay) OnDone(url string, state orchestrator.State, outcome report.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	switch state {
	case orchestrator.StateSucceeded:
		p.succeeded++
	case orchestrator.StateSkipped:
		p.skipped++
	default:
		p.failed++
	}

	if p.verbose {
		p.printDone(url, state, outcome)
		return
	}
	p.printProgress()
}

func (p *ProgressDisplay) printProgress() {
	progress := 0.0
	if p.total > 0 {
		progress = float64(p.done) / float64(p.total)
	}
	const barWidth = 20
	filled := int(progress * barWidth)
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("[%s] %d/%d • %s", bar, p.done, p.total, p.eta())
	if label, ok := stateLabels[p.state]; ok && p.current != "" {
		line += fmt.Sprintf(" • %s %s", Cyan(label), shorten(p.current, 48))
	}
	if p.failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", p.failed))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

func (p *ProgressDisplay) printDone(url string, state orchestrator.State, outcome report.Outcome) {
	switch state {
	case orchestrator.StateSucceeded:
		fmt.Fprintf(p.out, "%s %s → %s\n", Green("✓"), url, Dim(outcome.Folder))
	case orchestrator.StateSkipped:
		fmt.Fprintf(p.out, "%s %s %s\n", Dim("•"), url, Dim("(already archived)"))
	default:
		fmt.Fprintf(p.out, "%s %s %s\n", Red("✗"), url, Red(outcome.ErrorMsg))
	}
}

// Complete prints the batch summary
func (p *ProgressDisplay) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := p.now().Sub(p.startTime)
	fmt.Fprintf(p.out, "\n\n%s Archived %d of %d posts\n", Green("✓"), p.succeeded, p.total)
	fmt.Fprintf(p.out, "  %s %d skipped, %d failed in %s\n", Dim("•"), p.skipped, p.failed, formatDuration(elapsed))
}

func (p *ProgressDisplay) eta() string {
	if p.done == 0 || p.total <= p.done {
		return "--"
	}
	elapsed := p.now().Sub(p.startTime)
	perItem := elapsed / time.Duration(p.done)
	return formatDuration(perItem * time.Duration(p.total-p.done))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
