package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xarchiver/pkg/adapter"
	"xarchiver/pkg/assets"
	"xarchiver/pkg/browser"
	"xarchiver/pkg/config"
	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/index"
	"xarchiver/pkg/logger"
	"xarchiver/pkg/metadata"
	"xarchiver/pkg/records"
	"xarchiver/pkg/report"
)

const postURL = "https://x.com/alice/status/222"

const postFolder = "alice_dev_Shipping_the_new_archive_format_today_222_2024-05-01"

const postPage = `<html><head>
<title>Alice on X: "Shipping the new archive format today" / X</title>
</head><body>
<article id="main"><div data-testid="User-Name"><span>Alice</span> <span>@alice_dev</span></div>
<a href="/alice/status/222"><time datetime="2024-05-01T09:30:00.000Z">May 1</time></a>
<div data-testid="tweetText">Shipping the new archive format today</div>
<img src="https://pbs.twimg.com/media/abc?format=png&name=small">
</article>
</body></html>`

const imageOnlyPage = `<html><head><title>X</title></head><body>
<article><div data-testid="User-Name"><span>@bob</span></div>
<a href="/bob/status/333"><time datetime="2024-02-02T00:00:00.000Z">Feb 2</time></a>
<img src="https://pbs.twimg.com/media/only.jpg">
</article></body></html>`

type fakePage struct {
	mu          sync.Mutex
	html        string
	navFailures int
	navErr      error
	navCalls    int
	scrolls     int
	cookies     []browser.Cookie
	onNavigate  func()
}

func (p *fakePage) Navigate(ctx context.Context, u, waitUntil string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navCalls++
	if p.onNavigate != nil {
		p.onNavigate()
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("navigate %s: %w", u, err)
		}
	}
	if p.navCalls <= p.navFailures {
		if p.navErr != nil {
			return p.navErr
		}
		return fmt.Errorf("navigate %s: %w", u, context.DeadlineExceeded)
	}
	return nil
}

func (p *fakePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (p *fakePage) EvaluateScroll(ctx context.Context, deltaPixels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return nil
}

func (p *fakePage) GetCurrentHTML(ctx context.Context) (string, error) {
	return p.html, nil
}

func (p *fakePage) GetCookies(ctx context.Context) ([]browser.Cookie, error) {
	return p.cookies, nil
}

func (p *fakePage) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	return nil
}

func (p *fakePage) PrintPDF(ctx context.Context, fileURL string) ([]byte, error) {
	return []byte("%PDF-1.4 " + fileURL), nil
}

func (p *fakePage) Close() error { return nil }

type fakeFetcher struct {
	calls int
	refs  int
}

func (f *fakeFetcher) Fetch(ctx context.Context, refs []*adapter.ImageRef, destDir string, force bool) assets.Summary {
	f.calls++
	f.refs += len(refs)
	for _, ref := range refs {
		ref.LocalPath = "assets/" + assets.LocalName(ref.SourceURL)
		ref.Node.SetAttr("src", ref.LocalPath)
	}
	return assets.Summary{Total: len(refs), Fetched: len(refs)}
}

type recordingObserver struct {
	mu     sync.Mutex
	states map[string][]State
	done   []State
}

func (r *recordingObserver) OnStart(string, int, int) {}

func (r *recordingObserver) OnState(u string, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states == nil {
		r.states = make(map[string][]State)
	}
	r.states[u] = append(r.states[u], s)
}

func (r *recordingObserver) OnDone(_ string, s State, _ report.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, s)
}

type failingMirror struct {
	panics bool
}

func (m failingMirror) Upload(context.Context, string, string) (int, error) {
	if m.panics {
		panic("bucket exploded")
	}
	return 0, errors.New("access denied")
}

type captureNotifier struct {
	results []BatchResult
}

func (c *captureNotifier) NotifyBatch(r BatchResult) {
	c.results = append(c.results, r)
}

type harness struct {
	dir      string
	page     *fakePage
	ledger   *records.Store
	fetcher  *fakeFetcher
	observer *recordingObserver
	notifier *captureNotifier
	jar      http.CookieJar
	orch     *Orchestrator
}

func newHarness(t *testing.T, html string, navFailures, ceiling int, mirror Mirror) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = dir
	cfg.Output.SavePDF = true

	ledger, err := records.Open(cfg.RecordsPath(), records.WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	h := &harness{
		dir:      dir,
		page:     &fakePage{html: html, navFailures: navFailures},
		ledger:   ledger,
		fetcher:  &fakeFetcher{},
		observer: &recordingObserver{},
		notifier: &captureNotifier{},
		jar:      jar,
	}

	opts := OptionsFromConfig(cfg)
	opts.NavigationRetries = ceiling
	opts.RetryBaseDelay = time.Millisecond
	opts.ScrollSteps = 2
	opts.ScrollPause = 0
	opts.HydrationPause = 0

	h.orch = New(Deps{
		Ledger:   ledger,
		Adapters: adapter.NewRegistry(cfg),
		Page:     h.page,
		Assets:   h.fetcher,
		Mirror:   mirror,
		Report:   report.NewWriter(cfg.FailuresPath(), logger.NewNopLogger()),
		Observer: h.observer,
		Notifier: h.notifier,
		Cookies:  jar,
		Logger:   logger.NewNopLogger(),
	}, opts)
	return h
}

func TestNavigationRecoversWithinCeiling(t *testing.T) {
	h := newHarness(t, postPage, 2, 3, nil)
	h.page.cookies = []browser.Cookie{{Name: "ct0", Value: "tok", Domain: ".x.com", Path: "/"}}

	result := h.orch.Run(context.Background(), []string{postURL}, false)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 3, h.page.navCalls)
	assert.Equal(t, 2, h.page.scrolls)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Succeeded)
	assert.Equal(t, 3, result.Outcomes[0].RetryAttempts)
	assert.Equal(t, postFolder, result.Outcomes[0].Folder)

	assert.Equal(t, []State{StateNavigating, StateExtracting, StateFetchingAssets, StatePersisting, StateSucceeded},
		h.observer.states[postURL])
	assert.Equal(t, 1, h.fetcher.refs)

	articleDir := filepath.Join(h.dir, postFolder)
	html, err := os.ReadFile(filepath.Join(articleDir, postFolder+".html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), `src="assets/`)
	assert.FileExists(t, filepath.Join(articleDir, postFolder+".md"))
	assert.FileExists(t, filepath.Join(articleDir, postFolder+".pdf"))
	assert.NoFileExists(t, filepath.Join(articleDir, postFolder+".epub"))
	assert.DirExists(t, filepath.Join(articleDir, assets.Dir))

	meta, err := metadata.Load(articleDir)
	require.NoError(t, err)
	assert.Equal(t, records.StatusSuccess, meta.Status)
	assert.Equal(t, "alice_dev", meta.Author)

	rec, ok := h.ledger.Get(postURL)
	require.True(t, ok)
	assert.Equal(t, records.StatusSuccess, rec.Status)
	assert.Equal(t, postFolder, rec.FolderName)

	assert.FileExists(t, filepath.Join(h.dir, index.FileName))
	assert.NoFileExists(t, filepath.Join(h.dir, "failures.json"))

	u, _ := url.Parse("https://x.com/")
	require.Len(t, h.jar.Cookies(u), 1)
	assert.Equal(t, "ct0", h.jar.Cookies(u)[0].Name)

	require.Len(t, h.notifier.results, 1)
	assert.Equal(t, 1, h.notifier.results[0].Succeeded)
}

func TestNavigationExhaustsCeiling(t *testing.T) {
	h := newHarness(t, postPage, 2, 2, nil)

	result := h.orch.Run(context.Background(), []string{postURL}, false)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, h.page.navCalls)
	require.Len(t, result.Outcomes, 1)
	out := result.Outcomes[0]
	assert.False(t, out.Succeeded)
	assert.Equal(t, errs.KindNavigationTimeout, out.Reason)
	assert.Equal(t, 2, out.RetryAttempts)
	assert.NotContains(t, h.observer.states[postURL], StateExtracting)

	rec, ok := h.ledger.Get(postURL)
	require.True(t, ok)
	assert.Equal(t, records.StatusFailed, rec.Status)
	assert.Contains(t, rec.FailureReason, string(errs.KindNavigationTimeout))

	failures, err := report.Load(filepath.Join(h.dir, "failures.json"))
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, postURL, failures[0].URL)
	assert.Equal(t, h.orch.deps.Report.RunID(), failures[0].RunID)
}

func TestNavigationErrorKind(t *testing.T) {
	h := newHarness(t, postPage, 5, 2, nil)
	h.page.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	state, out := h.orch.Process(context.Background(), postURL, false)
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, errs.KindNavigationError, out.Reason)
}

func TestSuccessfulURLIsSkipped(t *testing.T) {
	h := newHarness(t, postPage, 0, 3, nil)

	first := h.orch.Run(context.Background(), []string{postURL}, false)
	require.Equal(t, 1, first.Succeeded)

	second := h.orch.Run(context.Background(), []string{postURL}, false)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, h.page.navCalls)
	assert.Equal(t, []State{StateSkipped}, h.observer.states[postURL][5:])

	forced := h.orch.Run(context.Background(), []string{postURL}, true)
	assert.Equal(t, 1, forced.Succeeded)
	assert.Equal(t, 2, h.page.navCalls)
}

func TestUnknownHostFailsWithoutNavigation(t *testing.T) {
	h := newHarness(t, postPage, 0, 3, nil)

	state, out := h.orch.Process(context.Background(), "https://example.com/post/1", false)
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, errs.KindNoAdapter, out.Reason)
	assert.Zero(t, h.page.navCalls)
}

func TestMissingContentBlock(t *testing.T) {
	h := newHarness(t, `<html><body><p>Something went wrong</p></body></html>`, 0, 3, nil)

	state, out := h.orch.Process(context.Background(), postURL, false)
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, errs.KindNoContent, out.Reason)
	assert.Zero(t, h.fetcher.calls)

	rec, ok := h.ledger.Get(postURL)
	require.True(t, ok)
	assert.Equal(t, records.StatusFailed, rec.Status)
}

func TestPersistenceFailures(t *testing.T) {
	for name, mirror := range map[string]failingMirror{
		"error": {},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, postPage, 0, 3, mirror)

			state, out := h.orch.Process(context.Background(), postURL, false)
			assert.Equal(t, StateFailed, state)
			assert.Equal(t, errs.KindPersistence, out.Reason)
			assert.False(t, h.ledger.IsDownloaded(postURL))
		})
	}
}

func TestImageOnlyPostWritesDebugDump(t *testing.T) {
	h := newHarness(t, imageOnlyPage, 0, 3, nil)

	state, out := h.orch.Process(context.Background(), "https://x.com/bob/status/333", false)
	require.Equal(t, StateSucceeded, state)
	assert.True(t, strings.Contains(out.Folder, metadata.ImageOnly))

	dump, err := os.ReadFile(filepath.Join(h.dir, DebugDir, out.Folder+".html"))
	require.NoError(t, err)
	assert.Contains(t, string(dump), "only.jpg")
}

func TestRunStopsWhenCancelled(t *testing.T) {
	h := newHarness(t, postPage, 0, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := h.orch.Run(ctx, []string{postURL, "https://x.com/alice/status/223"}, false)
	assert.Equal(t, 2, result.Total)
	assert.Empty(t, result.Outcomes)
	assert.Zero(t, h.page.navCalls)
	require.Len(t, h.notifier.results, 1)
}

func TestCancelledURLIsNotRecordedAsFailed(t *testing.T) {
	h := newHarness(t, postPage, 0, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.page.onNavigate = cancel

	state, out := h.orch.Process(ctx, postURL, false)
	assert.Equal(t, StateInterrupted, state)
	assert.True(t, state.Terminal())
	assert.False(t, out.Succeeded)
	assert.Equal(t, 1, h.page.navCalls)

	_, ok := h.ledger.Get(postURL)
	assert.False(t, ok, "interrupted URL must not reach the ledger")
}

func TestRunStopsAtInterruptedURL(t *testing.T) {
	h := newHarness(t, postPage, 0, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.page.onNavigate = cancel

	result := h.orch.Run(ctx, []string{postURL, "https://x.com/alice/status/223"}, false)
	assert.Equal(t, 2, result.Total)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Outcomes)
	assert.Empty(t, h.observer.done)
	assert.Equal(t, 1, h.page.navCalls)
	assert.Equal(t, records.Stats{}, h.ledger.Stats())

	_, err := os.Stat(filepath.Join(h.dir, "failures.json"))
	assert.True(t, os.IsNotExist(err))
}

type pausingObserver struct {
	NopObserver
	mu     sync.Mutex
	checks int
}

func (p *pausingObserver) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks++
	return p.checks < 3
}

func TestRunWaitsWhilePaused(t *testing.T) {
	h := newHarness(t, postPage, 0, 3, nil)
	pauser := &pausingObserver{}
	h.orch.deps.Observer = Observers{h.observer, pauser}
	h.orch.opts.PauseCheck = time.Millisecond

	result := h.orch.Run(context.Background(), []string{postURL}, false)
	assert.Equal(t, 1, result.Succeeded)
	assert.GreaterOrEqual(t, pauser.checks, 3)
}
