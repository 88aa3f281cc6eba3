package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"xarchiver/pkg/orchestrator"
	"xarchiver/pkg/report"
)

var _ orchestrator.Observer = (*ProgressDisplay)(nil)

func TestProgressDisplayCounts(t *testing.T) {
	var out bytes.Buffer
	p := NewProgressDisplay(&out, false)

	p.OnStart("https://x.com/a/status/1", 0, 3)
	p.OnState("https://x.com/a/status/1", orchestrator.StateNavigating)
	assert.Contains(t, out.String(), "loading")

	p.OnDone("https://x.com/a/status/1", orchestrator.StateSucceeded, report.Outcome{Succeeded: true})
	p.OnStart("https://x.com/a/status/2", 1, 3)
	p.OnDone("https://x.com/a/status/2", orchestrator.StateSkipped, report.Outcome{Succeeded: true})
	p.OnStart("https://x.com/a/status/3", 2, 3)
	p.OnDone("https://x.com/a/status/3", orchestrator.StateFailed, report.Outcome{ErrorMsg: "no_content"})

	assert.Equal(t, 3, p.done)
	assert.Equal(t, 1, p.succeeded)
	assert.Equal(t, 1, p.skipped)
	assert.Equal(t, 1, p.failed)
	assert.Contains(t, out.String(), "3/3")
	assert.Contains(t, out.String(), "1 failed")

	p.Complete()
	assert.Contains(t, out.String(), "Archived 1 of 3 posts")
	assert.Contains(t, out.String(), "1 skipped, 1 failed")
}

func TestProgressDisplayVerbose(t *testing.T) {
	var out bytes.Buffer
	p := NewProgressDisplay(&out, true)

	p.OnStart("https://x.com/a/status/1", 0, 2)
	p.OnDone("https://x.com/a/status/1", orchestrator.StateSucceeded, report.Outcome{Folder: "a_post_1_2024-05-01"})
	p.OnStart("https://x.com/a/status/2", 1, 2)
	p.OnDone("https://x.com/a/status/2", orchestrator.StateFailed, report.Outcome{ErrorMsg: "navigation_timeout: gave up"})

	assert.Contains(t, out.String(), "a_post_1_2024-05-01")
	assert.Contains(t, out.String(), "navigation_timeout: gave up")
	assert.NotContains(t, out.String(), "━")
}

func TestProgressDisplayETA(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := NewProgressDisplay(&bytes.Buffer{}, true)
	p.startTime = start
	p.now = func() time.Time { return start.Add(20 * time.Second) }

	assert.Equal(t, "--", p.eta())
	p.total = 4
	p.done = 2
	assert.Equal(t, "20s", p.eta())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h30m", formatDuration(90*time.Minute))
}
