// Package orchestrator archives a list of post URLs one at a time.
//
// Each URL moves through a small state machine:
//
//	Skipped                      already recorded as successful
//	Navigating                   adapter resolved, page loaded with retries
//	Extracting                   content block anchored, metadata built
//	FetchingAssets               images localized into <folder>/assets
//	Persisting                   html, md, pdf, epub and meta.json written
//	Succeeded | Failed           ledger updated
//
// A failing URL never stops the batch. After the last URL the failure
// report and the index page are written and the notifier is called.
package orchestrator
