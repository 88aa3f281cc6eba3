// Package browser drives the page automation the archiver renders posts
// with. Page is the seam the orchestrator and the PDF exporter depend on;
// ChromePage implements it with chromedp.
package browser

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Page is one automated browser tab
type Page interface {
	Navigate(ctx context.Context, url, waitUntil string, timeout time.Duration) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	EvaluateScroll(ctx context.Context, deltaPixels int) error
	GetCurrentHTML(ctx context.Context) (string, error)
	GetCookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	PrintPDF(ctx context.Context, fileURL string) ([]byte, error)
	Close() error
}

// Cookie is a browser cookie in the shape cookie exports use
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// URL returns the origin the cookie belongs to
func (c Cookie) URL() *url.URL {
	p := c.Path
	if p == "" {
		p = "/"
	}
	return &url.URL{Scheme: "https", Host: strings.TrimPrefix(c.Domain, "."), Path: p}
}

// HTTPCookie converts c for an http.CookieJar. An unknown SameSite value
// leaves the attribute unset.
func (c Cookie) HTTPCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if c.Expires > 0 {
		hc.Expires = time.Unix(int64(c.Expires), 0)
	}
	switch strings.ToLower(c.SameSite) {
	case "strict":
		hc.SameSite = http.SameSiteStrictMode
	case "none", "no_restriction":
		hc.SameSite = http.SameSiteNoneMode
	case "lax":
		hc.SameSite = http.SameSiteLaxMode
	}
	return hc
}

// CookieJar receives cookies for outgoing HTTP requests
type CookieJar interface {
	SetCookies(u *url.URL, cookies []*http.Cookie)
}

// ShareCookies copies cookies into jar grouped by origin
func ShareCookies(jar CookieJar, cookies []Cookie) {
	byOrigin := make(map[string][]*http.Cookie)
	origins := make(map[string]*url.URL)
	var order []string
	for _, c := range cookies {
		if c.Domain == "" {
			continue
		}
		u := c.URL()
		key := u.Host
		if _, ok := origins[key]; !ok {
			origins[key] = &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
			order = append(order, key)
		}
		byOrigin[key] = append(byOrigin[key], c.HTTPCookie())
	}
	for _, key := range order {
		jar.SetCookies(origins[key], byOrigin[key])
	}
}
