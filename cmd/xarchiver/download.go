package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"xarchiver/pkg/adapter"
	"xarchiver/pkg/assets"
	"xarchiver/pkg/auth"
	"xarchiver/pkg/browser"
	"xarchiver/pkg/config"
	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/export"
	"xarchiver/pkg/httpclient"
	"xarchiver/pkg/logger"
	"xarchiver/pkg/mirror"
	"xarchiver/pkg/orchestrator"
	"xarchiver/pkg/ratelimit"
	"xarchiver/pkg/records"
	"xarchiver/pkg/report"
	"xarchiver/pkg/ui"
	"xarchiver/pkg/ui/tui"
	"xarchiver/pkg/urllist"
)

var (
	forceDownload bool
	saveMarkdown  bool
	savePDF       bool
	saveEPUB      bool
	scrollSteps   int
	navTimeout    int
	headless      bool
	cookiesFile   string
	outputDir     string
	accountName   string
	useTUI        bool
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <url|file>",
	Short: "Archive one post or every URL in a list file",
	Long: `Archive X posts into the output directory.

The argument is either a single post URL or a text file with one URL per
line. Blank lines and lines starting with # are ignored. URLs already marked
as successful in the ledger are skipped unless --force is given.

Session cookies come from, in order:
  - the --cookies file (JSON or Netscape format)
  - the cookies_file setting
  - credentials stored with 'xarchiver auth login'
  - XARCHIVER_AUTH_TOKEN and XARCHIVER_CT0`,
	Example: `  # Archive one post
  xarchiver download https://x.com/jack/status/20

  # Archive a list with Markdown and PDF copies
  xarchiver download urls.txt --markdown --pdf

  # Re-archive everything and watch the full-screen view
  xarchiver download urls.txt --force --tui`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	f := downloadCmd.Flags()
	f.BoolVarP(&forceDownload, "force", "f", false, "re-archive URLs already in the ledger")
	f.BoolVar(&saveMarkdown, "markdown", false, "also write a Markdown copy")
	f.BoolVar(&savePDF, "pdf", false, "also write a PDF copy")
	f.BoolVar(&saveEPUB, "epub", false, "also write an EPUB copy")
	f.IntVar(&scrollSteps, "scroll", 0, "scroll steps before capture to load lazy content")
	f.IntVar(&navTimeout, "timeout", 0, "navigation timeout in seconds")
	f.BoolVar(&headless, "headless", true, "run Chrome without a window")
	f.StringVar(&cookiesFile, "cookies", "", "cookie file exported from a logged-in browser")
	f.StringVarP(&outputDir, "output", "o", "", "output directory")
	f.StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	f.BoolVar(&useTUI, "tui", false, "use the interactive terminal UI")
}

// downloadFlags collects only the flags the user actually set
func downloadFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := cmd.Flags().Changed
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if cookiesFile != "" {
		flags["cookies"] = cookiesFile
	}
	if changed("scroll") {
		flags["scroll"] = scrollSteps
	}
	if changed("timeout") {
		flags["timeout"] = navTimeout
	}
	if changed("headless") {
		flags["headless"] = headless
	}
	if changed("markdown") {
		flags["markdown"] = saveMarkdown
	}
	if changed("pdf") {
		flags["pdf"] = savePDF
	}
	if changed("epub") {
		flags["epub"] = saveEPUB
	}
	return flags
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(downloadFlags(cmd))
	if err != nil {
		return err
	}
	if useTUI {
		// the TUI owns the terminal; only the log file keeps records
		if log, err = logger.NewWithWriter(&cfg.Logging, io.Discard); err != nil {
			return err
		}
		logger.SetLogger(log)
	}

	urls, err := urllist.Inputs(args[0])
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs found in %s", args[0])
	}

	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		return errs.Wrap(errs.KindConfig, "", fmt.Errorf("output directory is not writable: %w", err))
	}

	store, err := records.Open(cfg.RecordsPath(), records.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	logger.LogComponentStart(log, "download", map[string]interface{}{
		"urls":     len(urls),
		"output":   cfg.Output.BaseDirectory,
		"headless": cfg.Browser.Headless,
		"force":    forceDownload,
	})

	cookies, err := sessionCookies(cfg, log)
	if err != nil {
		return err
	}

	page, err := browser.Launch(ctx, cfg.Browser, log)
	if err != nil {
		return errs.Wrap(errs.KindConfig, "", fmt.Errorf("failed to launch browser: %w", err))
	}
	defer page.Close()
	if len(cookies) > 0 {
		if err := page.SetCookies(ctx, cookies); err != nil {
			return errs.Wrap(errs.KindConfig, "", fmt.Errorf("failed to inject cookies: %w", err))
		}
	} else {
		ui.PrintWarning("No session cookies found; X may show a login wall. Run 'xarchiver auth login'")
	}

	client := httpclient.New(cfg.Download.DownloadTimeout, cfg.Browser.UserAgent, log)
	browser.ShareCookies(client, cookies)

	limiter := ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute)
	fetcher := assets.NewFetcher(client, assets.FetcherConfig{
		Workers:        cfg.Download.ConcurrentDownloads,
		RetryAttempts:  cfg.Download.RetryAttempts,
		RetryBaseDelay: cfg.Download.RetryBaseDelay,
		Timeout:        cfg.Download.DownloadTimeout,
	}, limiter, log)

	reporter := report.NewWriter(cfg.FailuresPath(), log)
	runLog := log.WithField("run_id", reporter.RunID())

	deps := orchestrator.Deps{
		Ledger:   store,
		Adapters: adapter.NewRegistry(cfg),
		Page:     page,
		Assets:   fetcher,
		Markdown: export.NewMarkdownConverter(),
		Report:   reporter,
		Cookies:  client,
		Limiter:  limiter,
		Logger:   runLog,
	}
	if cfg.Mirror.Enabled {
		m, err := mirror.NewS3(ctx, cfg.Mirror, runLog)
		if err != nil {
			return errs.Wrap(errs.KindConfig, "", err)
		}
		deps.Mirror = m
	}
	notifier := ui.NewNotifier(cfg.Notifications)
	if useTUI {
		notifier.SetOutput(io.Discard)
	}
	deps.Notifier = notifier

	opts := orchestrator.OptionsFromConfig(cfg)

	var result orchestrator.BatchResult
	if useTUI {
		result, err = runWithTUI(ctx, deps, opts, urls)
		if err != nil {
			return err
		}
	} else {
		display := ui.NewProgressDisplay(os.Stdout, verbose)
		deps.Observer = display
		ui.PrintInfo("URLs", fmt.Sprintf("%d", len(urls)))
		result = orchestrator.New(deps, opts).Run(ctx, urls, forceDownload)
		display.Complete()
	}

	logger.LogMetrics(log, "download", map[string]interface{}{
		"elapsed_ms": result.Elapsed.Milliseconds(),
		"total":      result.Total,
		"succeeded":  result.Succeeded,
		"skipped":    result.Skipped,
		"failed":     result.Failed,
	})
	logger.LogComponentStop(log, "download", fmt.Sprintf("%d succeeded, %d skipped, %d failed",
		result.Succeeded, result.Skipped, result.Failed))

	if errors.Is(ctx.Err(), context.Canceled) {
		ui.PrintWarning("Interrupted; progress so far is saved in the ledger")
	}
	if result.Failed > 0 {
		ui.PrintWarning("Failures written to", reporter.Path())
		return fmt.Errorf("%d of %d URLs failed", result.Failed, result.Total)
	}
	return nil
}

// runWithTUI runs the batch in the background while the TUI owns the terminal.
// Quitting the TUI cancels the batch.
func runWithTUI(ctx context.Context, deps orchestrator.Deps, opts orchestrator.Options, urls []string) (orchestrator.BatchResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	terminal := tui.NewTUI()
	deps.Observer = terminal

	done := make(chan orchestrator.BatchResult, 1)
	go func() {
		result := orchestrator.New(deps, opts).Run(ctx, urls, forceDownload)
		terminal.Complete(result)
		done <- result
	}()

	if err := terminal.Start(); err != nil {
		cancel()
		<-done
		return orchestrator.BatchResult{}, fmt.Errorf("terminal UI failed: %w", err)
	}
	cancel()
	return <-done, nil
}

// sessionCookies loads the cookie file, falling back to stored credentials
func sessionCookies(cfg *config.Config, log logger.Logger) ([]browser.Cookie, error) {
	if cfg.Browser.CookiesFile != "" {
		cookies, err := browser.LoadCookies(cfg.Browser.CookiesFile)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfig, "", err)
		}
		if len(cookies) > 0 {
			log.WithFields(map[string]interface{}{
				"file":    cfg.Browser.CookiesFile,
				"cookies": len(cookies),
			}).Info("Loaded cookie file")
			return cookies, nil
		}
	}

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential storage unavailable")
		return nil, nil
	}

	var account *auth.Account
	if accountName != "" {
		account, err = manager.Retrieve(accountName)
		if err != nil {
			return nil, fmt.Errorf("account %q not found, see 'xarchiver auth list': %w", accountName, err)
		}
	} else {
		account, err = manager.RetrieveDefault()
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	if account.UserAgent != "" && cfg.Browser.UserAgent == "" {
		cfg.Browser.UserAgent = account.UserAgent
	}
	log.WithField("account", account.Username).Info("Using stored credentials")
	return browser.SessionCookies(account.AuthToken, account.CT0), nil
}
