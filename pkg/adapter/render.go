package adapter

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var articleTemplate = template.Must(template.New("article").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="archived-from" content="{{.SourceURL}}">
<title>{{.Title}}</title>
{{range .Styles}}{{.}}
{{end}}</head>
<body>
<div class="archive-wrapper" style="max-width: 600px; margin: 0 auto; padding-top: 20px; font-family: TwitterChirp, -apple-system, BlinkMacSystemFont, sans-serif;">
{{range .Blocks}}<div class="archive-card" style="border: 1px solid rgb(239, 243, 244); border-radius: 16px; margin-bottom: 16px; padding: 16px;">
{{.}}
</div>
{{end}}</div>
</body>
</html>
`))

type page struct {
	Title     string
	SourceURL string
	Styles    []template.HTML
	Blocks    []template.HTML
}

// stripped tags never survive into an archived document
const strippedTags = "script, noscript, iframe, object, embed"

// cloneDocument parses a private copy so cleaning never touches the caller's tree
func cloneDocument(doc *goquery.Document) (*goquery.Document, error) {
	raw, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(raw))
}

// sanitize removes active content from doc in place. Inline styles and
// <style> elements are kept.
func sanitize(doc *goquery.Document) {
	doc.Find(strippedTags).Remove()

	doc.Find("meta[http-equiv]").Each(func(_ int, m *goquery.Selection) {
		if strings.EqualFold(strings.TrimSpace(m.AttrOr("http-equiv", "")), "refresh") {
			m.Remove()
		}
	})

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		var handlers []string
		for _, a := range node.Attr {
			if len(a.Key) > 2 && strings.EqualFold(a.Key[:2], "on") {
				handlers = append(handlers, a.Key)
			}
		}
		for _, name := range handlers {
			s.RemoveAttr(name)
		}
	})
}

// render writes the clean document for blocks found in doc
func render(doc *goquery.Document, candidateSelector, title, sourceURL string) (string, error) {
	p := page{Title: title, SourceURL: sourceURL}

	var outerErr error
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		h, err := goquery.OuterHtml(s)
		if err != nil {
			outerErr = err
			return
		}
		p.Styles = append(p.Styles, template.HTML(h))
	})
	doc.Find(candidateSelector).Each(func(_ int, s *goquery.Selection) {
		h, err := goquery.OuterHtml(s)
		if err != nil {
			outerErr = err
			return
		}
		p.Blocks = append(p.Blocks, template.HTML(h))
	})
	if outerErr != nil {
		return "", fmt.Errorf("failed to serialize content: %w", outerErr)
	}

	var buf bytes.Buffer
	if err := articleTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to render clean document: %w", err)
	}
	return buf.String(), nil
}
