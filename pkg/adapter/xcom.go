package adapter

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"xarchiver/pkg/anchor"
	"xarchiver/pkg/config"
	"xarchiver/pkg/metadata"
	"xarchiver/pkg/storage"
)

var (
	statusIDPattern = regexp.MustCompile(`/status(?:es)?/(\d+)`)
	handlePattern   = regexp.MustCompile(`@(\w+)`)
	// X page titles look like: Name on X: "post text" / X
	pageTitlePattern = regexp.MustCompile(`[:：]\s*["“](.+?)["”]\s*/\s*X$`)
)

// hiddenPreviewSelector matches the duplicated link preview text X renders
// off screen
const hiddenPreviewSelector = ".r-1awozwy.r-13gxpu9"

const folderTitleRunes = 40

var xHosts = map[string]bool{
	"x.com":              true,
	"www.x.com":          true,
	"mobile.x.com":       true,
	"twitter.com":        true,
	"www.twitter.com":    true,
	"mobile.twitter.com": true,
}

// XCom handles x.com and twitter.com post pages
type XCom struct {
	selectors config.SelectorConfig
	output    config.OutputConfig
	timeout   time.Duration
	anchor    anchor.Anchor
	now       func() time.Time
}

// NewXCom creates the X adapter
func NewXCom(selectors config.SelectorConfig, output config.OutputConfig, timeout time.Duration) *XCom {
	if selectors.Article == "" {
		selectors.Article = "article"
	}
	return &XCom{
		selectors: selectors,
		output:    output,
		timeout:   timeout,
		anchor:    anchor.New(selectors.Article, StatusPermalink),
		now:       time.Now,
	}
}

// StatusPermalink is the href fragment of an X post
func StatusPermalink(id string) string {
	return "/status/" + id
}

// StatusID extracts the numeric post id from an X URL
func StatusID(rawURL string) string {
	m := statusIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// Kind identifies the adapter
func (x *XCom) Kind() Kind { return KindXCom }

// Name returns the adapter name
func (x *XCom) Name() string { return string(KindXCom) }

// CanHandle reports whether rawURL is on an X host
func (x *XCom) CanHandle(rawURL string) bool {
	return xHosts[hostOf(rawURL)]
}

// WaitCondition waits for the first post block
func (x *XCom) WaitCondition() WaitCondition {
	return WaitCondition{Selector: x.selectors.Article, Timeout: x.timeout}
}

// BuildExtractor binds the adapter to one rendered page
func (x *XCom) BuildExtractor(doc *goquery.Document, rawURL string) Extractor {
	main, ok := x.anchor.Select(doc, StatusID(rawURL))
	return &xExtractor{adapter: x, doc: doc, url: rawURL, main: main, valid: ok}
}

type xExtractor struct {
	adapter *XCom
	doc     *goquery.Document
	url     string
	main    *goquery.Selection
	valid   bool
}

func (e *xExtractor) IsValid() bool { return e.valid }

func (e *xExtractor) ExtractMetadata() metadata.ArticleMetadata {
	now := e.adapter.now()
	if !e.valid {
		return metadata.New(e.url, "", "", "", now).WithFolder(folderFromURL(e.url))
	}

	date := e.date()
	author := e.author()
	title := e.title()

	meta := metadata.New(e.url, title, author, date, now)
	return meta.WithFolder(e.folderName(meta))
}

func (e *xExtractor) date() string {
	sel := e.adapter.selectors.Time
	if sel == "" {
		sel = "time[datetime]"
	}
	dt, ok := e.main.Find(sel).First().Attr("datetime")
	if !ok || strings.TrimSpace(dt) == "" {
		return ""
	}
	date, _, _ := strings.Cut(strings.TrimSpace(dt), "T")
	return date
}

func (e *xExtractor) author() string {
	user := e.main.Find(e.adapter.selectors.UserName).First()
	if user.Length() == 0 {
		return ""
	}
	text := joinedText(user)
	if m := handlePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	name, _, _ := strings.Cut(text, "·")
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "")
}

func (e *xExtractor) title() string {
	limit := e.adapter.output.MaxTitleLength
	pageTitle := strings.TrimSpace(e.doc.Find("title").First().Text())
	if m := pageTitlePattern.FindStringSubmatch(pageTitle); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			return truncateRunes(t, limit)
		}
	}
	text := joinedText(e.main.Find(e.adapter.selectors.TweetText).First())
	return truncateRunes(text, limit)
}

func (e *xExtractor) folderName(meta metadata.ArticleMetadata) string {
	parts := []string{meta.Author, truncateRunes(meta.Title, folderTitleRunes)}
	if id := StatusID(e.url); id != "" {
		parts = append(parts, id)
	}
	parts = append(parts, meta.Date)
	return storage.SanitizeFilename(strings.Join(parts, "_"), e.adapter.output.MaxFilenameLength)
}

func (e *xExtractor) RenderCleanDocument() (string, error) {
	clean, err := cloneDocument(e.doc)
	if err != nil {
		return "", err
	}
	sanitize(clean)
	title := strings.TrimSpace(clean.Find("title").First().Text())
	return render(clean, e.adapter.selectors.Article, title, e.url)
}

func (e *xExtractor) ContentBlocks(doc *goquery.Document) *goquery.Selection {
	return doc.Find(e.adapter.selectors.Article)
}

func (e *xExtractor) ListContentImages(doc *goquery.Document) []*ImageRef {
	return collectImages(e.ContentBlocks(doc), e.adapter.selectors.Images, e.url, func(src string) bool {
		return strings.Contains(src, "profile_images")
	})
}

// Tidy drops the hidden link preview duplicates from every block
func (e *xExtractor) Tidy(doc *goquery.Document) {
	e.ContentBlocks(doc).Find(hiddenPreviewSelector).Remove()
}
