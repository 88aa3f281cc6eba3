package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies why processing a URL failed
type Kind string

const (
	KindNoAdapter         Kind = "no_adapter"
	KindNavigationTimeout Kind = "navigation_timeout"
	KindNavigationError   Kind = "navigation_error"
	KindNoContent         Kind = "no_content"
	KindAssetFetch        Kind = "asset_fetch_failure"
	KindPersistence       Kind = "persistence_error"
	KindLedgerCorruption  Kind = "ledger_corruption"
	KindConfig            Kind = "config"
	KindNetwork           Kind = "network"
	KindRateLimit         Kind = "rate_limit"
	KindAuth              Kind = "auth"
	KindNotFound          Kind = "not_found"
	KindServerError       Kind = "server_error"
	KindUnknown           Kind = "unknown"
)

// Error is a typed failure carrying the URL it belongs to
type Error struct {
	Kind    Kind
	URL     string
	Message string
	Code    int
	Err     error
}

// New creates a typed error
func New(kind Kind, url, message string) *Error {
	return &Error{Kind: kind, URL: url, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(kind Kind, url string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, URL: url, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so errors.Is(err, &Error{Kind: k}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// KindOf extracts the Kind of err, or KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable checks if an error kind should be retried
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindNavigationTimeout, KindNavigationError, KindNetwork, KindRateLimit, KindServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
