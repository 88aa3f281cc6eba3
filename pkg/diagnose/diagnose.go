// Package diagnose reloads one URL several times and keeps what the browser
// saw on each run. It is meant for posts that archive inconsistently, such
// as a login wall on one load and the post on the next.
package diagnose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"xarchiver/pkg/config"
	"xarchiver/pkg/logger"
	"xarchiver/pkg/retry"
	"xarchiver/pkg/storage"
)

// Page is the part of a browser tab a diagnosis needs
type Page interface {
	Navigate(ctx context.Context, url, waitUntil string, timeout time.Duration) error
	GetCurrentHTML(ctx context.Context) (string, error)
}

// Screenshotter is implemented by pages that can capture the viewport
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Options control a diagnosis
type Options struct {
	Runs      int
	Settle    time.Duration
	Timeout   time.Duration
	WaitUntil string
	Dir       string
	Selectors config.SelectorConfig
	Clock     func() time.Time
}

// Run is what one load of the URL produced. Err is set when the load failed;
// the remaining runs still happen.
type Run struct {
	Number         int
	Title          string
	Articles       int
	TweetTexts     int
	HTMLPath       string
	ScreenshotPath string
	Duration       time.Duration
	Err            error
}

// OK reports whether the page showed at least one article
func (r Run) OK() bool {
	return r.Err == nil && r.Articles > 0
}

// Diagnose loads url opts.Runs times on page. Each run's HTML, and a
// screenshot when the page supports it, is written to opts.Dir. onRun is
// called after every run and may be nil.
func Diagnose(ctx context.Context, page Page, url string, opts Options, log logger.Logger, onRun func(Run)) ([]Run, error) {
	if opts.Runs < 1 {
		opts.Runs = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Selectors.Article == "" {
		opts.Selectors.Article = "article"
	}
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create diagnosis directory: %w", err)
	}

	log = log.WithFields(map[string]interface{}{"component": "diagnose", "url": url})
	runs := make([]Run, 0, opts.Runs)
	for i := 1; i <= opts.Runs; i++ {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		run := loadOnce(ctx, page, url, i, opts)
		if run.Err != nil {
			log.WithError(run.Err).WarnWithFields("Diagnosis run failed", map[string]interface{}{"run": i})
		} else {
			log.InfoWithFields("Diagnosis run", map[string]interface{}{
				"run":         i,
				"title":       run.Title,
				"articles":    run.Articles,
				"tweet_texts": run.TweetTexts,
				"duration":    run.Duration.String(),
			})
		}
		runs = append(runs, run)
		if onRun != nil {
			onRun(run)
		}
	}
	return runs, nil
}

func loadOnce(ctx context.Context, page Page, url string, number int, opts Options) (run Run) {
	start := opts.Clock()
	run.Number = number
	defer func() { run.Duration = opts.Clock().Sub(start) }()

	if err := page.Navigate(ctx, url, opts.WaitUntil, opts.Timeout); err != nil {
		run.Err = fmt.Errorf("navigate: %w", err)
		return run
	}
	if err := retry.Wait(ctx, opts.Settle); err != nil {
		run.Err = err
		return run
	}

	raw, err := page.GetCurrentHTML(ctx)
	if err != nil {
		run.Err = fmt.Errorf("read page: %w", err)
		return run
	}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
		run.Title = strings.TrimSpace(doc.Find("title").First().Text())
		run.Articles = doc.Find(opts.Selectors.Article).Length()
		if opts.Selectors.TweetText != "" {
			run.TweetTexts = doc.Find(opts.Selectors.TweetText).Length()
		}
	}

	base := filepath.Join(opts.Dir, fmt.Sprintf("run_%d_%d", number, start.Unix()))
	if err := storage.WriteFileAtomic(base+".html", []byte(raw), 0644); err != nil {
		run.Err = fmt.Errorf("save html: %w", err)
		return run
	}
	run.HTMLPath = base + ".html"

	if shot, ok := page.(Screenshotter); ok {
		png, err := shot.Screenshot(ctx)
		if err != nil {
			run.Err = fmt.Errorf("screenshot: %w", err)
			return run
		}
		if err := storage.WriteFileAtomic(base+".png", png, 0644); err != nil {
			run.Err = fmt.Errorf("save screenshot: %w", err)
			return run
		}
		run.ScreenshotPath = base + ".png"
	}
	return run
}
