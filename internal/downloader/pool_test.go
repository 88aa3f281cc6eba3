package downloader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/logger"
	"xarchiver/pkg/ratelimit"
)

// MockClient serves canned bodies and counts calls per URL
type MockClient struct {
	delay    time.Duration
	failures map[string]int
	failWith error
	mu       sync.Mutex
	calls    map[string]int
	total    int32
}

func NewMockClient() *MockClient {
	return &MockClient{failures: map[string]int{}, calls: map[string]int{}}
}

func (m *MockClient) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	atomic.AddInt32(&m.total, 1)
	m.mu.Lock()
	m.calls[url]++
	n := m.calls[url]
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= m.failures[url] {
		return nil, m.failWith
	}
	return io.NopCloser(strings.NewReader("asset:" + url)), nil
}

func (m *MockClient) Calls(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[url]
}

// MockStorage records saved names and flags concurrent writes to one name
type MockStorage struct {
	mu         sync.Mutex
	saved      map[string]string
	writing    map[string]bool
	concurrent bool
}

func NewMockStorage() *MockStorage {
	return &MockStorage{saved: map[string]string{}, writing: map[string]bool{}}
}

func (m *MockStorage) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.saved[name]
	return ok
}

func (m *MockStorage) SaveAsset(r io.Reader, name string) (int64, error) {
	m.mu.Lock()
	if m.writing[name] {
		m.concurrent = true
	}
	m.writing[name] = true
	m.mu.Unlock()

	data, err := io.ReadAll(r)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.writing, name)
	if err != nil {
		return 0, err
	}
	m.saved[name] = string(data)
	return int64(len(data)), nil
}

func runPool(t *testing.T, pool *WorkerPool, jobs []DownloadJob) []DownloadResult {
	t.Helper()
	pool.Start()

	var results []DownloadResult
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range pool.Results() {
			results = append(results, r)
		}
	}()

	for _, j := range jobs {
		require.NoError(t, pool.Submit(j))
	}
	pool.Stop()
	<-done
	return results
}

func testOptions() Options {
	return Options{Workers: 3, RetryAttempts: 3, RetryBaseDelay: time.Millisecond, Timeout: time.Second}
}

func TestWorkerPoolDownloadsAllJobs(t *testing.T) {
	client := NewMockClient()
	client.delay = 5 * time.Millisecond
	storage := NewMockStorage()
	pool := NewWorkerPool(context.Background(), testOptions(), client, storage, ratelimit.Unlimited{}, logger.NewNopLogger())

	var jobs []DownloadJob
	for i := 0; i < 10; i++ {
		jobs = append(jobs, DownloadJob{
			URL:  fmt.Sprintf("https://example.com/photo%d.jpg", i),
			Name: fmt.Sprintf("photo%d.jpg", i),
		})
	}

	results := runPool(t, pool, jobs)
	require.Len(t, results, 10)
	for _, r := range results {
		assert.True(t, r.Success, r.Job.Name)
		assert.False(t, r.Skipped)
		assert.Equal(t, 1, r.Attempts)
		assert.Equal(t, int64(len("asset:"+r.Job.URL)), r.Size)
	}
	assert.Len(t, storage.saved, 10)
	assert.False(t, storage.concurrent)
}

func TestWorkerPoolSkipsExistingFiles(t *testing.T) {
	client := NewMockClient()
	storage := NewMockStorage()
	storage.saved["a.jpg"] = "old"
	pool := NewWorkerPool(context.Background(), testOptions(), client, storage, nil, logger.NewNopLogger())

	results := runPool(t, pool, []DownloadJob{{URL: "https://example.com/a", Name: "a.jpg"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, int32(0), atomic.LoadInt32(&client.total))
}

func TestWorkerPoolForceRedownloads(t *testing.T) {
	client := NewMockClient()
	storage := NewMockStorage()
	storage.saved["a.jpg"] = "old"
	opts := testOptions()
	opts.Force = true
	pool := NewWorkerPool(context.Background(), opts, client, storage, nil, logger.NewNopLogger())

	results := runPool(t, pool, []DownloadJob{{URL: "https://example.com/a", Name: "a.jpg"}})
	require.Len(t, results, 1)
	assert.False(t, results[0].Skipped)
	assert.Equal(t, "asset:https://example.com/a", storage.saved["a.jpg"])
}

func TestWorkerPoolRetriesTransientErrors(t *testing.T) {
	client := NewMockClient()
	client.failWith = errs.New(errs.KindServerError, "", "bad gateway")
	client.failures["https://example.com/flaky"] = 2
	storage := NewMockStorage()
	pool := NewWorkerPool(context.Background(), testOptions(), client, storage, nil, logger.NewNopLogger())

	results := runPool(t, pool, []DownloadJob{{URL: "https://example.com/flaky", Name: "flaky.jpg"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 3, results[0].Attempts)
}

func TestWorkerPoolDoesNotRetryNotFound(t *testing.T) {
	client := NewMockClient()
	client.failWith = &errs.Error{Kind: errs.KindNotFound, Message: "resource not found", Code: 404}
	client.failures["https://example.com/gone"] = 10
	storage := NewMockStorage()
	pool := NewWorkerPool(context.Background(), testOptions(), client, storage, nil, logger.NewNopLogger())

	results := runPool(t, pool, []DownloadJob{{URL: "https://example.com/gone", Name: "gone.jpg"}})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(results[0].Error))
	assert.Equal(t, 1, client.Calls("https://example.com/gone"))
}

func TestWorkerPoolCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewWorkerPool(ctx, testOptions(), NewMockClient(), NewMockStorage(), nil, logger.NewNopLogger())
	pool.Start()
	err := pool.Submit(DownloadJob{URL: "https://example.com/a", Name: "a.jpg"})
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	pool.Stop()

	for range pool.Results() {
	}
}

func TestWorkerPoolQueueSize(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testOptions(), NewMockClient(), NewMockStorage(), nil, logger.NewNopLogger())
	assert.Equal(t, 0, pool.QueueSize())

	require.NoError(t, pool.Submit(DownloadJob{URL: "https://example.com/a", Name: "a.jpg"}))
	require.NoError(t, pool.Submit(DownloadJob{URL: "https://example.com/b", Name: "b.jpg"}))
	assert.Equal(t, 2, pool.QueueSize())

	results := runPool(t, pool, nil)
	assert.Len(t, results, 2)
	assert.Equal(t, 0, pool.QueueSize())
}
