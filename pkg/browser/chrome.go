package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"xarchiver/pkg/config"
	"xarchiver/pkg/logger"
)

// networkIdleGrace approximates "networkidle" after the load event
const networkIdleGrace = 1500 * time.Millisecond

// ChromePage is a Page backed by a single Chrome tab
type ChromePage struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      logger.Logger
}

// Launch starts Chrome with cfg and opens one tab
func Launch(ctx context.Context, cfg config.BrowserConfig, log logger.Logger) (*ChromePage, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	// the first Run starts the browser
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.InfoWithFields("Browser launched", map[string]interface{}{
		"headless": cfg.Headless,
		"viewport": fmt.Sprintf("%dx%d", cfg.ViewportWidth, cfg.ViewportHeight),
	})

	return &ChromePage{ctx: tabCtx, cancel: cancel, allocCancel: allocCancel, logger: log}, nil
}

// run executes actions on the tab, bounded by timeout and by ctx
func (p *ChromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := p.ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && runCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

// Navigate loads url and waits for the requested lifecycle point
func (p *ChromePage) Navigate(ctx context.Context, url, waitUntil string, timeout time.Duration) error {
	actions := []chromedp.Action{chromedp.Navigate(url)}
	switch waitUntil {
	case "networkidle":
		actions = append(actions, chromedp.Sleep(networkIdleGrace))
	case "domcontentloaded", "commit":
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	return p.run(ctx, timeout, actions...)
}

// WaitForSelector waits until selector matches a node
func (p *ChromePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// EvaluateScroll scrolls the window vertically
func (p *ChromePage) EvaluateScroll(ctx context.Context, deltaPixels int) error {
	return p.run(ctx, 10*time.Second, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", deltaPixels), nil))
}

// GetCurrentHTML returns the serialized DOM
func (p *ChromePage) GetCurrentHTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, 30*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// GetCookies returns the cookies visible to the current page
func (p *ChromePage) GetCookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := p.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return cookies, nil
}

// SetCookies installs cookies in the browser
func (p *ChromePage) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			t := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &t
		}
		switch c.SameSite {
		case "Strict":
			param.SameSite = network.CookieSameSiteStrict
		case "Lax":
			param.SameSite = network.CookieSameSiteLax
		case "None":
			param.SameSite = network.CookieSameSiteNone
		}
		params = append(params, param)
	}

	return p.run(ctx, 10*time.Second, network.SetCookies(params))
}

// PrintPDF opens fileURL and prints it to A4 PDF with backgrounds
func (p *ChromePage) PrintPDF(ctx context.Context, fileURL string) ([]byte, error) {
	var pdf []byte
	err := p.run(ctx, 60*time.Second,
		chromedp.Navigate(fileURL),
		chromedp.Sleep(networkIdleGrace),
		chromedp.ActionFunc(func(ctx context.Context) error {
			const margin = 0.28 // inches, about 20px
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(margin).
				WithMarginBottom(margin).
				WithMarginLeft(margin).
				WithMarginRight(margin).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	return pdf, err
}

// Screenshot captures the visible viewport as PNG
func (p *ChromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var png []byte
	err := p.run(ctx, 30*time.Second, chromedp.CaptureScreenshot(&png))
	return png, err
}

// Close shuts the tab and the browser
func (p *ChromePage) Close() error {
	p.cancel()
	p.allocCancel()
	p.logger.Debug("Browser closed")
	return nil
}

var _ Page = (*ChromePage)(nil)
