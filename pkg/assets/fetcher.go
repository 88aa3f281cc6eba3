// Package assets downloads the images referenced by a clean document into
// the article's assets directory and rewrites the document to point at the
// local copies.
package assets

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"xarchiver/internal/downloader"
	"xarchiver/pkg/adapter"
	"xarchiver/pkg/logger"
	"xarchiver/pkg/ratelimit"
	"xarchiver/pkg/storage"
)

// Dir is the assets directory name inside an article folder
const Dir = "assets"

const (
	defaultExtension = ".jpg"
	// ErrorAttr marks images that could not be archived
	ErrorAttr = "data-archive-error"
)

var knownExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".avif": true, ".svg": true, ".bmp": true,
}

// Downloader opens remote assets; httpclient.Client implements it
type Downloader = downloader.AssetDownloader

// FetcherConfig controls concurrency, retries and timeouts
type FetcherConfig struct {
	Workers        int
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Timeout        time.Duration
}

// Summary counts the outcome of one Fetch call
type Summary struct {
	Total   int
	Fetched int
	Skipped int
	Failed  int
}

// Fetcher downloads document images through a worker pool
type Fetcher struct {
	client  Downloader
	cfg     FetcherConfig
	limiter ratelimit.Limiter
	logger  logger.Logger
}

// NewFetcher creates a Fetcher
func NewFetcher(client Downloader, cfg FetcherConfig, limiter ratelimit.Limiter, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Fetcher{client: client, cfg: cfg, limiter: limiter, logger: log}
}

// LocalName returns the file name an asset URL is stored under
func LocalName(sourceURL string) string {
	sum := md5.Sum([]byte(sourceURL))
	return hex.EncodeToString(sum[:]) + extensionOf(sourceURL)
}

// extensionOf infers the file extension from a format= query parameter or
// the URL path
func extensionOf(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return defaultExtension
	}
	if f := strings.ToLower(u.Query().Get("format")); f != "" {
		if ext := "." + f; knownExtensions[ext] {
			return normalizeExt(ext)
		}
	}
	if ext := strings.ToLower(path.Ext(u.Path)); knownExtensions[ext] {
		return normalizeExt(ext)
	}
	return defaultExtension
}

func normalizeExt(ext string) string {
	if ext == ".jpeg" {
		return ".jpg"
	}
	return ext
}

// Fetch downloads every ref into destDir/assets. Successful refs get
// LocalPath set and their node's src rewritten to assets/<file> with srcset
// dropped; failed refs keep the remote src and are marked with ErrorAttr.
// Partial failure is reported in the Summary, never as an error.
func (f *Fetcher) Fetch(ctx context.Context, refs []*adapter.ImageRef, destDir string, force bool) Summary {
	summary := Summary{Total: len(refs)}
	if len(refs) == 0 {
		return summary
	}
	store, err := storage.NewManager(filepath.Join(destDir, Dir))
	if err != nil {
		f.logger.WithError(err).Error("Failed to prepare assets directory")
		for _, ref := range refs {
			markFailed(ref, err.Error())
		}
		summary.Failed = len(refs)
		return summary
	}

	// identical URLs collapse into one job so no two workers share a destination
	byName := make(map[string][]*adapter.ImageRef)
	var jobs []downloader.DownloadJob
	for _, ref := range refs {
		name := LocalName(ref.SourceURL)
		if _, seen := byName[name]; !seen {
			jobs = append(jobs, downloader.DownloadJob{URL: ref.SourceURL, Name: name})
		}
		byName[name] = append(byName[name], ref)
	}

	pool := downloader.NewWorkerPool(ctx, downloader.Options{
		Workers:        f.cfg.Workers,
		RetryAttempts:  f.cfg.RetryAttempts,
		RetryBaseDelay: f.cfg.RetryBaseDelay,
		Timeout:        f.cfg.Timeout,
		Force:          force,
	}, f.client, store, f.limiter, f.logger)
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, job := range jobs {
			if err := pool.Submit(job); err != nil {
				return
			}
		}
	}()

	results := make(map[string]downloader.DownloadResult, len(jobs))
	for res := range pool.Results() {
		results[res.Job.Name] = res
	}

	for _, job := range jobs {
		res, ok := results[job.Name]
		for _, ref := range byName[job.Name] {
			switch {
			case !ok:
				markFailed(ref, "cancelled")
				summary.Failed++
			case res.Success:
				markFetched(ref, job.Name)
				if res.Skipped {
					summary.Skipped++
				} else {
					summary.Fetched++
				}
			default:
				markFailed(ref, res.Error.Error())
				summary.Failed++
			}
		}
	}

	return summary
}

func markFetched(ref *adapter.ImageRef, name string) {
	ref.LocalPath = path.Join(Dir, name)
	ref.Failed = false
	if ref.Node != nil {
		ref.Node.SetAttr("src", ref.LocalPath)
		ref.Node.RemoveAttr("srcset")
		ref.Node.RemoveAttr(ErrorAttr)
	}
}

func markFailed(ref *adapter.ImageRef, reason string) {
	ref.Failed = true
	ref.Reason = reason
	if ref.Node != nil {
		ref.Node.SetAttr(ErrorAttr, reason)
	}
}
