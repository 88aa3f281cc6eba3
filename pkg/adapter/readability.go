package adapter

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"xarchiver/pkg/config"
	"xarchiver/pkg/metadata"
	"xarchiver/pkg/storage"
)

const readabilityBlock = "article.readability"

// Readability archives generic article pages on an allow list of hosts
type Readability struct {
	hosts   map[string]bool
	output  config.OutputConfig
	timeout time.Duration
	now     func() time.Time
}

// NewReadability creates the generic article adapter for hosts
func NewReadability(hosts []string, output config.OutputConfig, timeout time.Duration) *Readability {
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			set[h] = true
		}
	}
	return &Readability{hosts: set, output: output, timeout: timeout, now: time.Now}
}

// Kind identifies the adapter
func (r *Readability) Kind() Kind { return KindReadability }

// Name returns the adapter name
func (r *Readability) Name() string { return string(KindReadability) }

// CanHandle matches configured hosts and their subdomains
func (r *Readability) CanHandle(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for h := range r.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// WaitCondition waits for the document body
func (r *Readability) WaitCondition() WaitCondition {
	return WaitCondition{Selector: "body", Timeout: r.timeout}
}

// BuildExtractor runs readability over the rendered page
func (r *Readability) BuildExtractor(doc *goquery.Document, rawURL string) Extractor {
	e := &readabilityExtractor{adapter: r, doc: doc, url: rawURL}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		e.err = err
		return e
	}
	raw, err := doc.Html()
	if err != nil {
		e.err = err
		return e
	}
	e.article, e.err = readability.FromReader(strings.NewReader(raw), pageURL)
	return e
}

type readabilityExtractor struct {
	adapter *Readability
	doc     *goquery.Document
	url     string
	article readability.Article
	err     error
}

func (e *readabilityExtractor) IsValid() bool {
	return e.err == nil && strings.TrimSpace(e.article.Content) != ""
}

func (e *readabilityExtractor) ExtractMetadata() metadata.ArticleMetadata {
	now := e.adapter.now()
	if !e.IsValid() {
		return metadata.New(e.url, "", "", "", now).WithFolder(folderFromURL(e.url))
	}

	title := truncateRunes(strings.TrimSpace(e.article.Title), e.adapter.output.MaxTitleLength)
	author := strings.TrimSpace(e.article.Byline)
	if author == "" {
		author = strings.TrimSpace(e.article.SiteName)
	}
	date := e.publishedDate()

	meta := metadata.New(e.url, title, author, date, now)
	name := strings.Join([]string{meta.Author, truncateRunes(meta.Title, folderTitleRunes), meta.Date}, "_")
	return meta.WithFolder(storage.SanitizeFilename(name, e.adapter.output.MaxFilenameLength))
}

func (e *readabilityExtractor) publishedDate() string {
	for _, sel := range []string{
		"meta[property='article:published_time']",
		"meta[name='date']",
		"meta[itemprop='datePublished']",
	} {
		if v := strings.TrimSpace(e.doc.Find(sel).First().AttrOr("content", "")); v != "" {
			date, _, _ := strings.Cut(v, "T")
			return date
		}
	}
	return ""
}

func (e *readabilityExtractor) RenderCleanDocument() (string, error) {
	if e.err != nil {
		return "", e.err
	}
	body, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><article class="readability">` + e.article.Content + `</article></body></html>`))
	if err != nil {
		return "", err
	}
	sanitize(body)
	return render(body, readabilityBlock, e.article.Title, e.url)
}

func (e *readabilityExtractor) ContentBlocks(doc *goquery.Document) *goquery.Selection {
	return doc.Find(readabilityBlock)
}

func (e *readabilityExtractor) ListContentImages(doc *goquery.Document) []*ImageRef {
	return collectImages(e.ContentBlocks(doc), "img[src]", e.url, nil)
}
