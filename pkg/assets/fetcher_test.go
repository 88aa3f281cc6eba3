package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xarchiver/pkg/adapter"
	"xarchiver/pkg/httpclient"
	"xarchiver/pkg/logger"
	"xarchiver/pkg/ratelimit"
)

type imageServer struct {
	*httptest.Server
	mu       sync.Mutex
	hits     map[string]int
	inflight map[string]int
	overlap  bool
}

func newImageServer(t *testing.T) *imageServer {
	s := &imageServer{hits: map[string]int{}, inflight: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.String()
		s.mu.Lock()
		s.hits[key]++
		s.inflight[key]++
		if s.inflight[key] > 1 {
			s.overlap = true
		}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			s.inflight[key]--
			s.mu.Unlock()
		}()

		switch {
		case strings.HasPrefix(r.URL.Path, "/missing"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasPrefix(r.URL.Path, "/slow"):
			time.Sleep(20 * time.Millisecond)
			w.Write([]byte("slow"))
		default:
			w.Write([]byte("img:" + r.URL.Path))
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *imageServer) totalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

func newFetcher() *Fetcher {
	client := httpclient.New(5*time.Second, "", logger.NewNopLogger())
	return NewFetcher(client, FetcherConfig{
		Workers:        4,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		Timeout:        2 * time.Second,
	}, ratelimit.Unlimited{}, logger.NewNopLogger())
}

func refsFor(t *testing.T, html string) (*goquery.Document, []*adapter.ImageRef) {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	var refs []*adapter.ImageRef
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, &adapter.ImageRef{Node: s, SourceURL: s.AttrOr("src", "")})
	})
	return doc, refs
}

func TestLocalName(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592.jpg", LocalName("hello"))
	assert.True(t, strings.HasSuffix(LocalName("https://pbs.twimg.com/media/a?format=png&name=small"), ".png"))
	assert.True(t, strings.HasSuffix(LocalName("https://example.com/a/b.webp"), ".webp"))
	assert.True(t, strings.HasSuffix(LocalName("https://example.com/a/b.JPEG"), ".jpg"))
	assert.True(t, strings.HasSuffix(LocalName("https://example.com/a/b.php"), ".jpg"))
	assert.Equal(t, LocalName("https://example.com/x.png"), LocalName("https://example.com/x.png"))
}

func TestFetchRewritesSources(t *testing.T) {
	srv := newImageServer(t)
	dir := t.TempDir()

	doc, refs := refsFor(t, `<article>
<img src="`+srv.URL+`/a.png" srcset="big 2x">
<img src="`+srv.URL+`/missing.jpg">
</article>`)

	summary := newFetcher().Fetch(context.Background(), refs, dir, false)
	assert.Equal(t, Summary{Total: 2, Fetched: 1, Failed: 1}, summary)

	ok := refs[0]
	assert.False(t, ok.Failed)
	assert.Equal(t, "assets/"+LocalName(srv.URL+"/a.png"), ok.LocalPath)

	img := doc.Find("img").First()
	assert.Equal(t, ok.LocalPath, img.AttrOr("src", ""))
	_, hasSrcset := img.Attr("srcset")
	assert.False(t, hasSrcset)

	data, err := os.ReadFile(filepath.Join(dir, ok.LocalPath))
	require.NoError(t, err)
	assert.Equal(t, "img:/a.png", string(data))

	bad := refs[1]
	assert.True(t, bad.Failed)
	assert.Equal(t, srv.URL+"/missing.jpg", doc.Find("img").Last().AttrOr("src", ""))
	assert.NotEmpty(t, doc.Find("img").Last().AttrOr(ErrorAttr, ""))

	// 404 is not retried
	srv.mu.Lock()
	assert.Equal(t, 1, srv.hits["/missing.jpg"])
	srv.mu.Unlock()
}

func TestFetchDeduplicatesIdenticalURLs(t *testing.T) {
	srv := newImageServer(t)
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("<div>")
	for i := 0; i < 8; i++ {
		b.WriteString(`<img src="` + srv.URL + `/slow.jpg">`)
	}
	b.WriteString("</div>")
	doc, refs := refsFor(t, b.String())

	summary := newFetcher().Fetch(context.Background(), refs, dir, false)
	assert.Equal(t, 8, summary.Total)
	assert.Equal(t, 8, summary.Fetched)
	assert.Equal(t, 1, srv.totalHits())
	assert.False(t, srv.overlap)

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		assert.Equal(t, "assets/"+LocalName(srv.URL+"/slow.jpg"), s.AttrOr("src", ""))
	})
}

func TestFetchRerunMakesNoNetworkCalls(t *testing.T) {
	srv := newImageServer(t)
	dir := t.TempDir()
	html := `<p><img src="` + srv.URL + `/a.jpg"><img src="` + srv.URL + `/b.gif"></p>`

	_, refs := refsFor(t, html)
	first := newFetcher().Fetch(context.Background(), refs, dir, false)
	require.Equal(t, 2, first.Fetched)
	require.Equal(t, 2, srv.totalHits())

	_, refs = refsFor(t, html)
	second := newFetcher().Fetch(context.Background(), refs, dir, false)
	assert.Equal(t, Summary{Total: 2, Skipped: 2}, second)
	assert.Equal(t, 2, srv.totalHits())
	for _, ref := range refs {
		assert.False(t, ref.Failed)
		assert.NotEmpty(t, ref.LocalPath)
	}
}

func TestFetchForceRedownloads(t *testing.T) {
	srv := newImageServer(t)
	dir := t.TempDir()
	html := `<p><img src="` + srv.URL + `/a.jpg"></p>`

	_, refs := refsFor(t, html)
	newFetcher().Fetch(context.Background(), refs, dir, false)

	_, refs = refsFor(t, html)
	summary := newFetcher().Fetch(context.Background(), refs, dir, true)
	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, 2, srv.totalHits())
}

func TestFetchNoRefs(t *testing.T) {
	dir := t.TempDir()
	summary := newFetcher().Fetch(context.Background(), nil, dir, false)
	assert.Equal(t, Summary{}, summary)

	_, err := os.Stat(filepath.Join(dir, Dir))
	assert.True(t, os.IsNotExist(err))
}
