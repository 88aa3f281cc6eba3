package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"xarchiver/pkg/logger"
	"xarchiver/pkg/ratelimit"
	"xarchiver/pkg/retry"
)

// DownloadJob is one asset to fetch. Name is the destination file name and
// must be unique among jobs submitted to the same pool.
type DownloadJob struct {
	URL  string
	Name string
}

// DownloadResult represents the result of a download job
type DownloadResult struct {
	Job      DownloadJob
	Success  bool
	Skipped  bool
	Error    error
	Attempts int
	Duration time.Duration
	Size     int64
}

// AssetDownloader opens a remote asset
type AssetDownloader interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// AssetStorage stores downloaded assets
type AssetStorage interface {
	Exists(name string) bool
	SaveAsset(r io.Reader, name string) (int64, error)
}

// Options tune the per-job behaviour of the pool
type Options struct {
	Workers        int
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Timeout        time.Duration
	Force          bool
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	opts        Options
	jobQueue    chan DownloadJob
	resultQueue chan DownloadResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      AssetDownloader
	storage     AssetStorage
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewWorkerPool creates a new download worker pool bound to ctx
func NewWorkerPool(
	ctx context.Context,
	opts Options,
	client AssetDownloader,
	storage AssetStorage,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	if log == nil {
		log = logger.GetLogger()
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &WorkerPool{
		opts:        opts,
		jobQueue:    make(chan DownloadJob, opts.Workers*2),
		resultQueue: make(chan DownloadResult, opts.Workers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		storage:     storage,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.opts.Workers,
	})

	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for the workers and closes the results
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Submit adds a new download job to the queue
func (wp *WorkerPool) Submit(job DownloadJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel for consuming download results
func (wp *WorkerPool) Results() <-chan DownloadResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			wp.logger.DebugWithFields("Worker stopping - context cancelled", map[string]interface{}{
				"worker_id": id,
			})
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job DownloadJob, workerID int) DownloadResult {
	start := time.Now()
	result := DownloadResult{Job: job}

	if !wp.opts.Force && wp.storage.Exists(job.Name) {
		result.Success = true
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	cfg := retry.Config{
		MaxAttempts: wp.opts.RetryAttempts,
		Backoff:     retry.NewExponentialBackoff(wp.opts.RetryBaseDelay),
		Name:        "asset download",
		Logger:      wp.logger.WithField("url", job.URL),
	}

	size, attempts, err := retry.Run(wp.ctx, cfg, func(ctx context.Context, attempt int) retry.Result[int64] {
		if err := wp.rateLimiter.Wait(ctx); err != nil {
			return retry.Fatal[int64](err)
		}
		n, err := wp.fetch(ctx, job)
		return retry.Classify(n, err)
	})

	result.Attempts = attempts
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		wp.logger.WarnWithFields("Worker failed to download asset", map[string]interface{}{
			"worker_id": workerID,
			"url":       job.URL,
			"attempts":  attempts,
			"error":     err.Error(),
		})
		return result
	}

	result.Success = true
	result.Size = size
	wp.logger.DebugWithFields("Worker completed job successfully", map[string]interface{}{
		"worker_id": workerID,
		"name":      job.Name,
		"size":      size,
		"duration":  result.Duration,
		"queued":    wp.QueueSize(),
	})
	return result
}

// fetch runs one attempt under the per-fetch timeout
func (wp *WorkerPool) fetch(ctx context.Context, job DownloadJob) (int64, error) {
	if wp.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.opts.Timeout)
		defer cancel()
	}

	body, err := wp.client.Open(ctx, job.URL)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	return wp.storage.SaveAsset(body, job.Name)
}

// QueueSize returns the number of submitted jobs no worker has taken yet
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}
