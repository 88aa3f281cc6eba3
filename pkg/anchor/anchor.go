// Package anchor picks the one content block on a page that belongs to the
// requested resource.
//
// Social pages render the target post next to replies and quotes that share
// the same markup. Select walks the candidate blocks in document order and
// returns the first one holding a permalink to the resource id, falling back
// to the first candidate. The result depends only on the document and the id.
package anchor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PermalinkFunc returns the href fragment that identifies a resource id,
// e.g. "/status/123"
type PermalinkFunc func(id string) string

// Anchor selects candidate blocks for one site
type Anchor struct {
	CandidateSelector string
	Permalink         PermalinkFunc
}

// New creates an Anchor
func New(candidateSelector string, permalink PermalinkFunc) Anchor {
	return Anchor{CandidateSelector: candidateSelector, Permalink: permalink}
}

// Candidates returns every candidate block in document order
func (a Anchor) Candidates(doc *goquery.Document) *goquery.Selection {
	return doc.Find(a.CandidateSelector)
}

// Select returns the authoritative block for resourceID
func (a Anchor) Select(doc *goquery.Document, resourceID string) (*goquery.Selection, bool) {
	return Select(doc, a.CandidateSelector, resourceID, a.Permalink)
}

// Select returns the first candidate containing a link to resourceID, else
// the first candidate. ok is false when the page has no candidates.
func Select(doc *goquery.Document, candidateSelector, resourceID string, permalink PermalinkFunc) (*goquery.Selection, bool) {
	candidates := doc.Find(candidateSelector)
	if candidates.Length() == 0 {
		return nil, false
	}

	if resourceID != "" && permalink != nil {
		fragment := permalink(resourceID)
		var match *goquery.Selection
		candidates.EachWithBreak(func(_ int, block *goquery.Selection) bool {
			if linksTo(block, fragment) {
				match = block
				return false
			}
			return true
		})
		if match != nil {
			return match, true
		}
	}

	return candidates.First(), true
}

func linksTo(block *goquery.Selection, fragment string) bool {
	found := false
	block.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if containsFragment(href, fragment) {
			found = true
			return false
		}
		return true
	})
	return found
}

// containsFragment reports whether fragment occurs in href and is not
// followed by another digit, so /status/12 does not match /status/123
func containsFragment(href, fragment string) bool {
	if fragment == "" {
		return false
	}
	for start := 0; ; {
		i := strings.Index(href[start:], fragment)
		if i < 0 {
			return false
		}
		end := start + i + len(fragment)
		if end == len(href) || !isDigit(href[end]) {
			return true
		}
		start = start + i + 1
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
