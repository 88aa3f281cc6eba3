// Package retry runs bounded retry loops with pluggable backoff.
//
// Each attempt reports an explicit Result: Ok, Retryable or Fatal. Run stops
// on Ok or Fatal, waits between Retryable attempts according to the backoff
// strategy, and gives up after MaxAttempts with an error wrapping both
// ErrExhausted and the last attempt's error, so errors.KindOf still sees the
// last failure kind.
//
//	page, attempts, err := retry.Run(ctx, retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.NewExponentialBackoff(time.Second),
//		Name:        "navigate",
//	}, func(ctx context.Context, attempt int) retry.Result[string] {
//		html, err := load(ctx)
//		if err != nil {
//			return retry.Retryable[string](err)
//		}
//		return retry.Ok(html)
//	})
package retry
