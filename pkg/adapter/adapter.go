package adapter

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"xarchiver/pkg/config"
	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/metadata"
)

// Kind enumerates the adapters known to the archiver
type Kind string

const (
	KindXCom        Kind = "x.com"
	KindReadability Kind = "readability"
)

// WaitCondition is what the page must show before extraction starts
type WaitCondition struct {
	Selector string
	Timeout  time.Duration
}

// ImageRef is one image inside the clean document. The asset fetcher fills
// LocalPath or sets Failed and rewrites Node in place.
type ImageRef struct {
	Node      *goquery.Selection
	SourceURL string
	LocalPath string
	Failed    bool
	Reason    string
}

// SiteAdapter knows how to recognise and extract one family of pages
type SiteAdapter interface {
	Name() string
	CanHandle(rawURL string) bool
	WaitCondition() WaitCondition
	BuildExtractor(doc *goquery.Document, rawURL string) Extractor
}

// Extractor pulls metadata and content out of one rendered page
type Extractor interface {
	IsValid() bool
	ExtractMetadata() metadata.ArticleMetadata
	RenderCleanDocument() (string, error)
	// ContentBlocks returns the content blocks of a parsed clean document
	ContentBlocks(doc *goquery.Document) *goquery.Selection
	ListContentImages(doc *goquery.Document) []*ImageRef
}

// Tidier is implemented by extractors that strip site noise from the clean
// document once assets are in place
type Tidier interface {
	Tidy(doc *goquery.Document)
}

// Registry resolves URLs to adapters in registration order
type Registry struct {
	adapters []SiteAdapter
}

// NewRegistry builds the adapters enabled by cfg. X is always registered
// first so it wins over generic adapters.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{}
	r.Register(NewXCom(cfg.Selectors, cfg.Output, cfg.Browser.NavigationTimeout))
	if cfg.Adapters.Readability.Enabled {
		r.Register(NewReadability(cfg.Adapters.Readability.Hosts, cfg.Output, cfg.Browser.NavigationTimeout))
	}
	return r
}

// Register appends an adapter
func (r *Registry) Register(a SiteAdapter) {
	r.adapters = append(r.adapters, a)
}

// Adapters returns the registered adapters in order
func (r *Registry) Adapters() []SiteAdapter {
	out := make([]SiteAdapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// Resolve returns the first adapter that can handle rawURL
func (r *Registry) Resolve(rawURL string) (SiteAdapter, error) {
	for _, a := range r.adapters {
		if a.CanHandle(rawURL) {
			return a, nil
		}
	}
	return nil, errs.New(errs.KindNoAdapter, rawURL, "no adapter can handle this URL")
}

// hostOf returns the lower-cased host of an absolute http(s) URL
func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// folderFromURL names a folder after the URL path when nothing better exists
func folderFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "x_home"
	}
	p := strings.ReplaceAll(strings.Trim(u.Path, "/"), "/", "_")
	if p == "" {
		return "x_home"
	}
	return p
}

// joinedText returns the text nodes under sel, trimmed and joined by spaces
func joinedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(c)
		})
	}
	walk(sel)
	return strings.Join(parts, " ")
}

// collectImages lists img nodes under blocks, resolving sources against base
func collectImages(blocks *goquery.Selection, selector, base string, skip func(src string) bool) []*ImageRef {
	if selector == "" {
		selector = "img[src]"
	}
	baseURL, _ := url.Parse(base)

	var refs []*ImageRef
	blocks.Find(selector).Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		if skip != nil && skip(src) {
			return
		}
		if baseURL != nil {
			if ref, err := url.Parse(src); err == nil {
				src = baseURL.ResolveReference(ref).String()
			}
		}
		refs = append(refs, &ImageRef{Node: img, SourceURL: src})
	})
	return refs
}
