package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"xarchiver/pkg/adapter"
	"xarchiver/pkg/assets"
	"xarchiver/pkg/browser"
	"xarchiver/pkg/config"
	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/export"
	"xarchiver/pkg/index"
	"xarchiver/pkg/logger"
	"xarchiver/pkg/metadata"
	"xarchiver/pkg/ratelimit"
	"xarchiver/pkg/records"
	"xarchiver/pkg/report"
	"xarchiver/pkg/retry"
	"xarchiver/pkg/storage"
)

// DebugDir holds raw page dumps for posts that yielded no title
const DebugDir = "debug"

// Ledger is the slice of the record store the orchestrator needs
type Ledger interface {
	IsDownloaded(url string) bool
	Upsert(u records.Update) (records.Record, error)
}

// Resolver maps a URL to its site adapter
type Resolver interface {
	Resolve(rawURL string) (adapter.SiteAdapter, error)
}

// AssetFetcher localizes the images of one document
type AssetFetcher interface {
	Fetch(ctx context.Context, refs []*adapter.ImageRef, destDir string, force bool) assets.Summary
}

// Mirror copies a finished article folder elsewhere
type Mirror interface {
	Upload(ctx context.Context, articleDir, folder string) (int, error)
}

// Deps are the collaborators of an Orchestrator. Mirror, Report, Observer,
// Notifier, Cookies and Limiter are optional.
type Deps struct {
	Ledger   Ledger
	Adapters Resolver
	Page     browser.Page
	Assets   AssetFetcher
	Markdown *export.MarkdownConverter
	Mirror   Mirror
	Report   *report.Writer
	Observer Observer
	Notifier Notifier
	Cookies  browser.CookieJar
	Limiter  ratelimit.Limiter
	Logger   logger.Logger
	Clock    func() time.Time
}

// Options tune one run
type Options struct {
	OutputDir         string
	WaitUntil         string
	NavigationTimeout time.Duration
	NavigationRetries int
	RetryBaseDelay    time.Duration
	ScrollSteps       int
	ScrollPixels      int
	ScrollPause       time.Duration
	HydrationPause    time.Duration
	SaveMarkdown      bool
	SavePDF           bool
	SaveEPUB          bool
	// PauseCheck is how often a paused observer is polled
	PauseCheck time.Duration
}

// OptionsFromConfig projects the run configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OutputDir:         cfg.Output.BaseDirectory,
		WaitUntil:         cfg.Browser.WaitUntil,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		NavigationRetries: cfg.Browser.NavigationRetries,
		RetryBaseDelay:    cfg.Download.RetryBaseDelay,
		ScrollSteps:       cfg.Browser.ScrollSteps,
		ScrollPixels:      cfg.Browser.ScrollPixels,
		ScrollPause:       cfg.Browser.ScrollPause,
		HydrationPause:    cfg.Browser.HydrationPause,
		SaveMarkdown:      cfg.Output.SaveMarkdown,
		SavePDF:           cfg.Output.SavePDF,
		SaveEPUB:          cfg.Output.SaveEPUB,
	}
}

// Orchestrator drives URLs through navigation, extraction, asset fetching
// and persistence, one at a time on a single page
type Orchestrator struct {
	deps Deps
	opts Options
	log  logger.Logger
	now  func() time.Time
}

// BatchResult summarizes Run
type BatchResult struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	Outcomes  []report.Outcome
	Elapsed   time.Duration
}

// Failures returns the failed outcomes in input order
func (b BatchResult) Failures() []report.Outcome {
	var out []report.Outcome
	for _, o := range b.Outcomes {
		if !o.Succeeded {
			out = append(out, o)
		}
	}
	return out
}

// New creates an orchestrator
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.Unlimited{}
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Markdown == nil {
		deps.Markdown = export.NewMarkdownConverter()
	}
	if opts.PauseCheck <= 0 {
		opts.PauseCheck = 250 * time.Millisecond
	}
	if opts.WaitUntil == "" {
		opts.WaitUntil = "domcontentloaded"
	}
	return &Orchestrator{
		deps: deps,
		opts: opts,
		log:  deps.Logger.WithField("component", "orchestrator"),
		now:  deps.Clock,
	}
}

// Run processes urls in order and then writes the failure report, rebuilds
// the index and notifies. Cancellation stops the batch; a URL in flight
// is left out of the ledger and the results.
func (o *Orchestrator) Run(ctx context.Context, urls []string, force bool) BatchResult {
	start := o.now()
	result := BatchResult{Total: len(urls)}

	for i, url := range urls {
		if !o.waitWhilePaused(ctx) || ctx.Err() != nil {
			o.log.WarnWithFields("Batch interrupted", map[string]interface{}{
				"processed": i,
				"total":     len(urls),
			})
			break
		}

		o.deps.Observer.OnStart(url, i, len(urls))
		state, outcome := o.Process(ctx, url, force)
		if state == StateInterrupted {
			o.log.WarnWithFields("Batch interrupted", map[string]interface{}{
				"processed": i,
				"total":     len(urls),
				"url":       url,
			})
			break
		}
		o.deps.Observer.OnDone(url, state, outcome)

		switch state {
		case StateSkipped:
			result.Skipped++
		case StateSucceeded:
			result.Succeeded++
		default:
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
		logger.LogBatchProgress(o.log, i+1, len(urls))
	}

	o.finish(&result, urls)
	result.Elapsed = o.now().Sub(start)
	if o.deps.Notifier != nil {
		o.deps.Notifier.NotifyBatch(result)
	}
	return result
}

// finish writes the failure report and the index
func (o *Orchestrator) finish(result *BatchResult, urls []string) {
	if o.deps.Report != nil && result.Failed > 0 {
		if _, err := o.deps.Report.Write(result.Outcomes); err != nil {
			o.log.WithError(err).Error("Failed to write failure report")
		}
	}

	n, err := index.Build(o.opts.OutputDir, urls)
	if err != nil {
		o.log.WithError(err).Error("Failed to rebuild index")
		return
	}
	o.log.InfoWithFields("Index rebuilt", map[string]interface{}{
		"articles": n,
		"path":     filepath.Join(o.opts.OutputDir, index.FileName),
	})
}

func (o *Orchestrator) waitWhilePaused(ctx context.Context) bool {
	p, ok := o.deps.Observer.(Pauser)
	if !ok {
		return true
	}
	for p.IsPaused() {
		if err := retry.Wait(ctx, o.opts.PauseCheck); err != nil {
			return false
		}
	}
	return true
}

// Process archives one URL and returns its terminal state and outcome.
// A URL already recorded as successful is skipped unless force is set.
func (o *Orchestrator) Process(ctx context.Context, url string, force bool) (State, report.Outcome) {
	url = strings.TrimSpace(url)
	if !force && o.deps.Ledger.IsDownloaded(url) {
		o.deps.Observer.OnState(url, StateSkipped)
		logger.LogArchive(o.log, url, "", string(StateSkipped), 0, nil)
		return StateSkipped, report.Outcome{
			URL:       url,
			Succeeded: true,
			Timestamp: o.now().Format(time.RFC3339),
		}
	}

	folder, attempts, err := o.archive(ctx, url, force)
	if err != nil {
		if ctx.Err() != nil {
			return o.interrupt(url, attempts, err)
		}
		return o.fail(url, folder, attempts, err)
	}

	o.deps.Observer.OnState(url, StateSucceeded)
	logger.LogArchive(o.log, url, folder, string(StateSucceeded), attempts, nil)
	return StateSucceeded, report.Success(url, folder, attempts, o.now())
}

func (o *Orchestrator) interrupt(url string, attempts int, err error) (State, report.Outcome) {
	o.deps.Observer.OnState(url, StateInterrupted)
	logger.LogArchive(o.log, url, "", string(StateInterrupted), attempts, err)
	return StateInterrupted, report.Outcome{
		URL:           url,
		ErrorMsg:      err.Error(),
		RetryAttempts: attempts,
		Timestamp:     o.now().Format(time.RFC3339),
	}
}

func (o *Orchestrator) fail(url, folder string, attempts int, err error) (State, report.Outcome) {
	kind := errs.KindOf(err)
	if kind == errs.KindUnknown {
		err = errs.Wrap(errs.KindPersistence, url, err)
		kind = errs.KindPersistence
	}

	update := records.Update{
		URL:           url,
		Status:        records.StatusFailed,
		FailureReason: records.String(failureReason(kind, err)),
		Source:        records.String("cli"),
	}
	if folder != "" {
		update.FolderName = records.String(folder)
	}
	if _, uerr := o.deps.Ledger.Upsert(update); uerr != nil {
		o.log.WithError(uerr).ErrorWithFields("Failed to record failure", map[string]interface{}{"url": url})
	}

	o.deps.Observer.OnState(url, StateFailed)
	logger.LogArchive(o.log, url, folder, string(StateFailed), attempts, err)

	outcome := report.Failure(url, err, attempts, o.now())
	outcome.Folder = folder
	return StateFailed, outcome
}

func failureReason(kind errs.Kind, err error) string {
	var typed *errs.Error
	if errors.As(err, &typed) && typed.Message != "" {
		return string(kind) + ": " + typed.Message
	}
	return string(kind)
}

// archive runs the per-URL state machine up to a committed success
func (o *Orchestrator) archive(ctx context.Context, url string, force bool) (string, int, error) {
	o.deps.Observer.OnState(url, StateNavigating)
	site, err := o.deps.Adapters.Resolve(url)
	if err != nil {
		return "", 0, err
	}

	attempts, err := o.navigate(ctx, url, site.WaitCondition())
	if err != nil {
		return "", attempts, err
	}
	o.settle(ctx, url)
	o.shareCookies(ctx)

	o.deps.Observer.OnState(url, StateExtracting)
	raw, err := o.deps.Page.GetCurrentHTML(ctx)
	if err != nil {
		return "", attempts, errs.Wrap(errs.KindNavigationError, url, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", attempts, errs.Wrap(errs.KindNoContent, url, err)
	}

	extractor := site.BuildExtractor(doc, url)
	if !extractor.IsValid() {
		return "", attempts, errs.New(errs.KindNoContent, url, "no content block found for this post")
	}
	meta := extractor.ExtractMetadata()
	folder := meta.FolderName
	if meta.TitleMissing {
		o.dumpDebug(folder, raw)
	}

	o.deps.Observer.OnState(url, StateFetchingAssets)
	clean, err := extractor.RenderCleanDocument()
	if err != nil {
		return folder, attempts, errs.Wrap(errs.KindNoContent, url, err)
	}
	cleanDoc, err := goquery.NewDocumentFromReader(strings.NewReader(clean))
	if err != nil {
		return folder, attempts, errs.Wrap(errs.KindNoContent, url, err)
	}

	articleDir := filepath.Join(o.opts.OutputDir, folder)
	refs := extractor.ListContentImages(cleanDoc)
	if o.deps.Assets != nil && len(refs) > 0 {
		fetchStart := o.now()
		s := o.deps.Assets.Fetch(ctx, refs, articleDir, force)
		logger.LogAssetSummary(o.log, url, s.Total, s.Fetched, s.Skipped, s.Failed, o.now().Sub(fetchStart))
	}
	if t, ok := extractor.(adapter.Tidier); ok {
		t.Tidy(cleanDoc)
	}

	o.deps.Observer.OnState(url, StatePersisting)
	meta = meta.WithStatus(records.StatusSuccess, "")
	if err := o.persist(ctx, url, meta, extractor, cleanDoc, articleDir); err != nil {
		return folder, attempts, err
	}

	if _, err := o.deps.Ledger.Upsert(meta.ToUpdate()); err != nil {
		o.log.WithError(err).ErrorWithFields("Failed to commit record", map[string]interface{}{"url": url})
	}
	return folder, attempts, nil
}

// navigate loads url until the adapter's wait condition holds, retrying
// timeouts and navigation errors up to the configured ceiling
func (o *Orchestrator) navigate(ctx context.Context, url string, wc adapter.WaitCondition) (int, error) {
	waitTimeout := wc.Timeout
	if waitTimeout <= 0 {
		waitTimeout = o.opts.NavigationTimeout
	}

	cfg := retry.Config{
		MaxAttempts: o.opts.NavigationRetries,
		Backoff:     retry.NewExponentialBackoff(o.opts.RetryBaseDelay),
		Name:        "navigate",
		Logger:      o.log,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			o.log.WarnWithFields("Navigation failed, retrying", map[string]interface{}{
				"url":     url,
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   err.Error(),
			})
		},
	}

	_, attempts, err := retry.Run(ctx, cfg, func(ctx context.Context, attempt int) retry.Result[struct{}] {
		if err := o.deps.Limiter.Wait(ctx); err != nil {
			return retry.Fatal[struct{}](errs.Wrap(errs.KindNavigationError, url, err))
		}
		err := o.deps.Page.Navigate(ctx, url, o.opts.WaitUntil, o.opts.NavigationTimeout)
		if err == nil && wc.Selector != "" {
			err = o.deps.Page.WaitForSelector(ctx, wc.Selector, waitTimeout)
		}
		if err == nil {
			return retry.Ok(struct{}{})
		}
		if ctx.Err() != nil {
			return retry.Fatal[struct{}](errs.Wrap(errs.KindNavigationError, url, ctx.Err()))
		}
		return retry.Retryable[struct{}](classifyNavigation(url, err))
	})
	if err != nil && errs.KindOf(err) == errs.KindUnknown {
		err = errs.Wrap(errs.KindNavigationError, url, err)
	}
	return attempts, err
}

func classifyNavigation(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindNavigationTimeout, url, err)
	}
	return errs.Wrap(errs.KindNavigationError, url, err)
}

// settle scrolls to trigger lazy content and waits for hydration. Errors
// here are logged and ignored.
func (o *Orchestrator) settle(ctx context.Context, url string) {
	for i := 0; i < o.opts.ScrollSteps; i++ {
		if err := o.deps.Page.EvaluateScroll(ctx, o.opts.ScrollPixels); err != nil {
			o.log.DebugWithFields("Scroll failed", map[string]interface{}{
				"url":   url,
				"step":  i + 1,
				"error": err.Error(),
			})
			break
		}
		if err := retry.Wait(ctx, o.opts.ScrollPause); err != nil {
			return
		}
	}
	_ = retry.Wait(ctx, o.opts.HydrationPause)
}

func (o *Orchestrator) shareCookies(ctx context.Context) {
	if o.deps.Cookies == nil {
		return
	}
	cookies, err := o.deps.Page.GetCookies(ctx)
	if err != nil {
		o.log.WithError(err).Debug("Failed to read browser cookies")
		return
	}
	browser.ShareCookies(o.deps.Cookies, cookies)
}

func (o *Orchestrator) dumpDebug(folder, raw string) {
	dir := filepath.Join(o.opts.OutputDir, DebugDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		o.log.WithError(err).Warn("Failed to create debug directory")
		return
	}
	path := filepath.Join(dir, folder+".html")
	if err := storage.WriteFileAtomic(path, []byte(raw), 0644); err != nil {
		o.log.WithError(err).Warn("Failed to write debug dump")
		return
	}
	o.log.InfoWithFields("No title extracted, raw page saved", map[string]interface{}{"path": path})
}

// persist writes every output of one article. Any error or panic becomes
// a persistence failure.
func (o *Orchestrator) persist(ctx context.Context, url string, meta metadata.ArticleMetadata, extractor adapter.Extractor, cleanDoc *goquery.Document, articleDir string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.KindPersistence, url, fmt.Sprintf("panic while saving: %v", r))
		}
	}()

	wrap := func(step string, cause error) error {
		return errs.Wrap(errs.KindPersistence, url, fmt.Errorf("%s: %w", step, cause))
	}

	if err := os.MkdirAll(filepath.Join(articleDir, assets.Dir), 0755); err != nil {
		return wrap("create folder", err)
	}

	html, err := cleanDoc.Html()
	if err != nil {
		return wrap("render html", err)
	}
	base := filepath.Join(articleDir, meta.FilenameBase)
	htmlPath := base + ".html"
	if err := storage.WriteFileAtomic(htmlPath, []byte(html), 0644); err != nil {
		return wrap("write html", err)
	}

	if o.opts.SaveMarkdown {
		if err := o.deps.Markdown.WriteMarkdown(base+".md", url, extractor.ContentBlocks(cleanDoc)); err != nil {
			return wrap("write markdown", err)
		}
	}
	if o.opts.SavePDF {
		if err := export.WritePDF(ctx, o.deps.Page, htmlPath, base+".pdf"); err != nil {
			return wrap("write pdf", err)
		}
	}
	if o.opts.SaveEPUB {
		if err := export.WriteEPUB(meta, html, articleDir, base+".epub"); err != nil {
			return wrap("write epub", err)
		}
	}

	if err := meta.Save(articleDir); err != nil {
		return wrap("write metadata", err)
	}

	if o.deps.Mirror != nil {
		if _, err := o.deps.Mirror.Upload(ctx, articleDir, meta.FolderName); err != nil {
			return wrap("mirror", err)
		}
	}
	return nil
}
