package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/logger"
)

func TestOpenSendsHeadersAndCookies(t *testing.T) {
	var gotUA, gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if c, err := r.Cookie("auth_token"); err == nil {
			gotCookie = c.Value
		}
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	c := New(5*time.Second, "archiver-test", logger.NewNopLogger())
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	c.SetCookies(u, []*http.Cookie{{Name: "auth_token", Value: "secret"}})

	body, err := c.Open(context.Background(), server.URL+"/media/a.jpg")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
	assert.Equal(t, "archiver-test", gotUA)
	assert.Equal(t, "secret", gotCookie)
}

func TestOpenClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      errs.Kind
		retryable bool
	}{
		{http.StatusForbidden, errs.KindAuth, false},
		{http.StatusNotFound, errs.KindNotFound, false},
		{http.StatusTooManyRequests, errs.KindRateLimit, true},
		{http.StatusBadGateway, errs.KindServerError, true},
		{http.StatusTeapot, errs.KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c := New(5*time.Second, "", logger.NewNopLogger())
			_, err := c.Open(context.Background(), server.URL)
			require.Error(t, err)

			var typed *errs.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, tt.kind, typed.Kind)
			assert.Equal(t, tt.status, typed.Code)
			assert.Equal(t, tt.retryable, errs.IsRetryable(typed.Kind))
		})
	}
}

func TestOpenNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	c := New(time.Second, "", logger.NewNopLogger())
	_, err := c.Open(context.Background(), addr)
	require.Error(t, err)
	assert.Equal(t, errs.KindNetwork, errs.KindOf(err))
}

func TestSetHeaderOverridesDefaults(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Referer")
	}))
	defer server.Close()

	c := New(time.Second, "", logger.NewNopLogger())
	c.SetHeaders(map[string]string{"Referer": "https://twitter.com/"})

	body, err := c.Open(context.Background(), server.URL)
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, "https://twitter.com/", got)
}
