package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/logger"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Logger:      logger.NewNopLogger(),
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.0,
	}

	tests := []struct {
		attempt     int
		expected    time.Duration
		description string
	}{
		{0, 0, "No attempt yet"},
		{1, 100 * time.Millisecond, "First attempt"},
		{2, 200 * time.Millisecond, "Second attempt"},
		{3, 400 * time.Millisecond, "Third attempt"},
		{4, 800 * time.Millisecond, "Fourth attempt"},
		{5, 1 * time.Second, "Fifth attempt (capped at max)"},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			if delay := backoff.NextDelay(test.attempt); delay != test.expected {
				t.Errorf("Expected delay %v, got %v", test.expected, delay)
			}
		})
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := NewExponentialBackoff(100 * time.Millisecond)

	for i := 0; i < 20; i++ {
		delay := backoff.NextDelay(2)
		if delay < 180*time.Millisecond || delay > 220*time.Millisecond {
			t.Fatalf("Delay %v outside jitter bounds", delay)
		}
	}
	if backoff.MaxDelay != 3*time.Second {
		t.Errorf("Expected max delay 3s, got %v", backoff.MaxDelay)
	}
}

func TestRunSucceedsAfterRetries(t *testing.T) {
	calls := 0
	value, attempts, err := Run(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) Result[string] {
		calls++
		if attempt < 3 {
			return Retryable[string](errors.New("not yet"))
		}
		return Ok("page")
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if value != "page" {
		t.Errorf("Expected 'page', got %q", value)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("Expected 3 attempts, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestRunExhaustsCeiling(t *testing.T) {
	timeout := errs.New(errs.KindNavigationTimeout, "https://x.com/a/status/1", "deadline")
	calls := 0
	_, attempts, err := Run(context.Background(), fastConfig(2), func(ctx context.Context, attempt int) Result[int] {
		calls++
		return Retryable[int](timeout)
	})

	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
	if errs.KindOf(err) != errs.KindNavigationTimeout {
		t.Errorf("Expected last kind to survive wrapping, got %s", errs.KindOf(err))
	}
	if attempts != 2 || calls != 2 {
		t.Errorf("Expected 2 attempts, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestRunStopsOnFatal(t *testing.T) {
	fatal := errs.New(errs.KindNoAdapter, "https://example.com", "no adapter")
	calls := 0
	_, attempts, err := Run(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) Result[int] {
		calls++
		return Fatal[int](fatal)
	})

	if err != fatal {
		t.Errorf("Expected the fatal error unchanged, got %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
}

func TestRunZeroCeilingStillAttemptsOnce(t *testing.T) {
	calls := 0
	_, _, err := Run(context.Background(), fastConfig(0), func(ctx context.Context, attempt int) Result[int] {
		calls++
		return Ok(1)
	})
	if err != nil || calls != 1 {
		t.Errorf("Expected one successful attempt, got calls=%d err=%v", calls, err)
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(5)
	cfg.Backoff = &ConstantBackoff{Delay: time.Second}

	calls := 0
	_, _, err := Run(ctx, cfg, func(ctx context.Context, attempt int) Result[int] {
		calls++
		cancel()
		return Retryable[int](errors.New("flaky"))
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected cancellation before second attempt, got %d calls", calls)
	}
}

func TestOnRetryCallback(t *testing.T) {
	var seen []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
	}

	Run(context.Background(), cfg, func(ctx context.Context, attempt int) Result[int] {
		return Retryable[int](errors.New("again"))
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("Expected OnRetry for attempts 1 and 2, got %v", seen)
	}
}

func TestDoClassifiesErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return errs.New(errs.KindNotFound, "", "gone")
	})
	if err == nil || calls != 1 {
		t.Errorf("Expected non-retryable error after one call, got calls=%d err=%v", calls, err)
	}

	calls = 0
	err = Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errs.New(errs.KindServerError, "", "502")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("Expected success on second call, got calls=%d err=%v", calls, err)
	}
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), true},
		{"rate limit", errs.New(errs.KindRateLimit, "", "429"), true},
		{"persistence", errs.New(errs.KindPersistence, "", "disk"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryIf(tt.err); got != tt.want {
				t.Errorf("DefaultRetryIf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Expected immediate return, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
