// Package ratelimit paces page navigations and asset requests so a batch does
// not hammer the origin.
//
// SlidingWindow tracks request times inside a rolling window; Wait blocks until
// the oldest request ages out or the context ends. PerMinute builds the limiter
// from the rate_limit.requests_per_minute setting.
package ratelimit
