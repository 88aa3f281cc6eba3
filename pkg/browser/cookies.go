package browser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const httpOnlyPrefix = "#HttpOnly_"

// ignoredCookies are never injected; lang pins X to the exporter's locale
var ignoredCookies = map[string]bool{"lang": true}

// exportedCookie accepts both the Playwright and the EditThisCookie shapes
type exportedCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	Path           string   `json:"path"`
	Expires        *float64 `json:"expires"`
	ExpirationDate *float64 `json:"expirationDate"`
	HTTPOnly       bool     `json:"httpOnly"`
	Secure         bool     `json:"secure"`
	SameSite       string   `json:"sameSite"`
}

// LoadCookies reads a JSON or Netscape cookie file. A missing file yields no
// cookies and no error.
func LoadCookies(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	return ParseCookies(data)
}

// ParseCookies decodes a JSON array of cookies, falling back to the Netscape
// tab-separated format
func ParseCookies(data []byte) ([]Cookie, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var exported []exportedCookie
	if err := json.Unmarshal(trimmed, &exported); err == nil {
		return filterCookies(fromExported(exported)), nil
	} else if trimmed[0] == '[' || trimmed[0] == '{' {
		return nil, fmt.Errorf("failed to parse cookie JSON: %w", err)
	}

	cookies, err := parseNetscape(trimmed)
	if err != nil {
		return nil, err
	}
	return filterCookies(cookies), nil
}

func fromExported(in []exportedCookie) []Cookie {
	out := make([]Cookie, 0, len(in))
	for _, c := range in {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  -1,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: normalizeSameSite(c.SameSite),
		}
		switch {
		case c.Expires != nil:
			cookie.Expires = *c.Expires
		case c.ExpirationDate != nil:
			cookie.Expires = *c.ExpirationDate
		}
		if cookie.Path == "" {
			cookie.Path = "/"
		}
		out = append(out, cookie)
	}
	return out
}

func normalizeSameSite(s string) string {
	switch strings.ToLower(s) {
	case "strict":
		return "Strict"
	case "none", "no_restriction":
		return "None"
	case "lax":
		return "Lax"
	default:
		return ""
	}
}

// parseNetscape reads domain, flag, path, secure, expiry, name, value lines
func parseNetscape(data []byte) ([]Cookie, error) {
	var cookies []Cookie
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		httpOnly := strings.HasPrefix(line, httpOnlyPrefix)
		if httpOnly {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		expires, err := strconv.ParseInt(strings.TrimSpace(parts[4]), 10, 64)
		if err != nil {
			continue
		}
		cookies = append(cookies, Cookie{
			Domain:   parts[0],
			Path:     parts[2],
			Secure:   strings.EqualFold(parts[3], "TRUE"),
			Expires:  float64(expires),
			Name:     parts[5],
			Value:    parts[6],
			HTTPOnly: httpOnly,
			SameSite: "Lax",
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	return cookies, nil
}

func filterCookies(in []Cookie) []Cookie {
	out := in[:0]
	for _, c := range in {
		if c.Name == "" || ignoredCookies[c.Name] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SessionCookies builds the X session cookies from stored credentials
func SessionCookies(authToken, csrfToken string) []Cookie {
	var cookies []Cookie
	for _, domain := range []string{".x.com", ".twitter.com"} {
		if authToken != "" {
			cookies = append(cookies, Cookie{
				Name: "auth_token", Value: authToken, Domain: domain, Path: "/",
				Expires: -1, HTTPOnly: true, Secure: true, SameSite: "None",
			})
		}
		if csrfToken != "" {
			cookies = append(cookies, Cookie{
				Name: "ct0", Value: csrfToken, Domain: domain, Path: "/",
				Expires: -1, Secure: true, SameSite: "Lax",
			})
		}
	}
	return cookies
}
