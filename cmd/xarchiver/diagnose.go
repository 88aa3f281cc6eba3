package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"xarchiver/pkg/browser"
	"xarchiver/pkg/diagnose"
	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/orchestrator"
	"xarchiver/pkg/ui"
)

var (
	diagnoseRuns   int
	diagnoseSettle time.Duration
)

// diagnoseCmd reloads a URL and keeps what the browser saw each time
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <url>",
	Short: "Reload a post several times and save what the browser saw",
	Long: `Load one URL repeatedly with the configured browser and cookies. Each run
saves the page HTML and a screenshot to the debug folder of the output
directory and prints the page title and how many articles were found.

Use it when a post archives as Image_Only or fails only some of the time.`,
	Example: `  xarchiver diagnose https://x.com/jack/status/20 --runs 5`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)

	f := diagnoseCmd.Flags()
	f.IntVarP(&diagnoseRuns, "runs", "n", 3, "number of loads")
	f.DurationVar(&diagnoseSettle, "settle", 5*time.Second, "wait after each load before capturing")
	f.StringVarP(&outputDir, "output", "o", "", "output directory")
	f.StringVar(&cookiesFile, "cookies", "", "cookie file exported from a logged-in browser")
	f.StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	f.BoolVar(&headless, "headless", true, "run Chrome without a window")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(downloadFlags(cmd))
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

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
		ui.PrintInfo("Cookies", fmt.Sprint(len(cookies)))
	} else {
		ui.PrintWarning("No session cookies loaded")
	}

	dir := filepath.Join(cfg.Output.BaseDirectory, orchestrator.DebugDir)
	ui.PrintHighlight("Diagnosing " + args[0])
	ui.PrintInfo("Runs", fmt.Sprint(diagnoseRuns))
	ui.PrintInfo("Output", dir)

	runs, err := diagnose.Diagnose(ctx, page, args[0], diagnose.Options{
		Runs:      diagnoseRuns,
		Settle:    diagnoseSettle,
		Timeout:   cfg.Browser.NavigationTimeout,
		WaitUntil: cfg.Browser.WaitUntil,
		Dir:       dir,
		Selectors: cfg.Selectors,
	}, log, printRun)
	if err != nil {
		return err
	}

	ok := 0
	for _, r := range runs {
		if r.OK() {
			ok++
		}
	}
	if ok == len(runs) {
		ui.PrintSuccess(fmt.Sprintf("All %d runs found the post", ok))
		return nil
	}
	ui.PrintWarning(fmt.Sprintf("%d of %d runs found the post", ok, len(runs)))
	return nil
}

func printRun(r diagnose.Run) {
	fmt.Fprintf(ui.Output, "\n--- Run %d ---\n", r.Number)
	if r.Err != nil {
		ui.PrintError("Run failed", r.Err)
		return
	}
	ui.PrintInfo("Title", r.Title)
	ui.PrintInfo("Articles", fmt.Sprint(r.Articles))
	ui.PrintInfo("Tweet texts", fmt.Sprint(r.TweetTexts))
	ui.PrintInfo("HTML", filepath.Base(r.HTMLPath))
	if r.ScreenshotPath != "" {
		ui.PrintInfo("Screenshot", filepath.Base(r.ScreenshotPath))
	}
	ui.PrintInfo("Took", r.Duration.Round(time.Millisecond).String())
}
