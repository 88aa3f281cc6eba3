package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/logger"
)

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client is the shared HTTP client for asset downloads. It carries the
// browser session cookies and the configured user agent.
type Client struct {
	httpClient *http.Client
	jar        http.CookieJar
	headers    map[string]string
	mu         sync.RWMutex
	logger     logger.Logger
}

// New creates a client. timeout bounds a whole request including the body;
// zero leaves it to the request context.
func New(timeout time.Duration, userAgent string, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	// cookiejar.New only fails on a bad PublicSuffixList
	jar, _ := cookiejar.New(nil)

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		jar: jar,
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Referer":         "https://x.com/",
		},
		logger: log,
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// SetHeaders sets multiple headers at once
func (c *Client) SetHeaders(headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, value := range headers {
		c.headers[key] = value
	}
}

// SetCookies stores cookies for u in the client's jar
func (c *Client) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.jar.SetCookies(u, cookies)
}

// Cookies returns the cookies the jar would send to u
func (c *Client) Cookies(u *url.URL) []*http.Cookie {
	return c.jar.Cookies(u)
}

// Get performs a GET request with the configured headers
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &errs.Error{
			Kind:    errs.KindUnknown,
			URL:     rawURL,
			Message: fmt.Sprintf("failed to create request: %v", err),
			Err:     err,
		}
	}

	c.mu.RLock()
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	c.mu.RUnlock()

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    rawURL,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.DebugWithFields("HTTP request failed", map[string]interface{}{
			"url":      rawURL,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errs.Error{
			Kind:    errs.KindNetwork,
			URL:     rawURL,
			Message: fmt.Sprintf("network error: %v", err),
			Err:     err,
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// Open fetches rawURL and returns the body of a successful response. Any
// other status is closed and returned as a typed error.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := CheckStatus(resp); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.DebugWithFields("unexpected response status", map[string]interface{}{
			"url":    rawURL,
			"status": resp.StatusCode,
		})
		return nil, err
	}
	return resp.Body, nil
}

// CheckStatus maps an HTTP status onto the error taxonomy. 2xx is nil.
func CheckStatus(resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	rawURL := ""
	if resp.Request != nil && resp.Request.URL != nil {
		rawURL = resp.Request.URL.String()
	}

	e := &errs.Error{URL: rawURL, Code: code}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e.Kind, e.Message = errs.KindAuth, "authentication required"
	case code == http.StatusNotFound || code == http.StatusGone:
		e.Kind, e.Message = errs.KindNotFound, "resource not found"
	case code == http.StatusTooManyRequests:
		e.Kind, e.Message = errs.KindRateLimit, "rate limit exceeded"
	case code >= 500:
		e.Kind, e.Message = errs.KindServerError, "server error"
	default:
		e.Kind, e.Message = errs.KindUnknown, fmt.Sprintf("unexpected status code: %d", code)
	}
	return e
}
