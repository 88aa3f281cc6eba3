// Package index renders the browsable library page for an output directory.
package index

import (
	"bytes"
	"fmt"
	"html/template"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"xarchiver/pkg/metadata"
	"xarchiver/pkg/storage"
)

// FileName is the library page written at the output root
const FileName = "index.html"

var pageTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>X Articles Library</title>
<style>
body { background: #f3f4f6; margin: 0; padding: 32px; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; }
.library { max-width: 72rem; margin: 0 auto; background: #fff; border-radius: 8px; box-shadow: 0 4px 12px rgba(0,0,0,.08); overflow: hidden; }
.header, .footer { display: flex; justify-content: space-between; align-items: center; padding: 16px 24px; color: #6b7280; font-size: 14px; }
.header { border-bottom: 1px solid #e5e7eb; }
.header h1 { margin: 0; font-size: 24px; color: #1f2937; }
.footer { border-top: 1px solid #e5e7eb; background: #f9fafb; }
table { width: 100%; border-collapse: collapse; }
th { text-align: left; font-size: 12px; text-transform: uppercase; letter-spacing: .05em; color: #6b7280; background: #f9fafb; padding: 12px 24px; }
td { padding: 16px 24px; border-top: 1px solid #e5e7eb; font-size: 14px; vertical-align: top; }
tr:hover td { background: #f9fafb; }
a { color: #2563eb; text-decoration: none; }
a:hover { text-decoration: underline; }
.source { font-size: 12px; color: #60a5fa; }
.date { white-space: nowrap; color: #6b7280; }
</style>
</head>
<body>
<div class="library">
<div class="header"><h1>X Articles Library</h1><span>Last Updated: {{.Generated}}</span></div>
<table>
<thead><tr><th>Date</th><th>Topic</th><th>Author</th><th>Action</th></tr></thead>
<tbody>
{{range .Rows}}<tr>
<td class="date">{{.Date}}</td>
<td><div><a href="{{.Link}}">{{.Title}}</a></div><div><a class="source" href="{{.URL}}" target="_blank" rel="noopener">Original Source</a></div></td>
<td>{{.Author}}</td>
<td><a href="{{.Link}}">View Local</a></td>
</tr>
{{end}}</tbody>
</table>
<div class="footer">Total Articles: {{len .Rows}}</div>
</div>
</body>
</html>
`))

type row struct {
	Date   string
	Title  string
	Author string
	URL    string
	Link   string
}

type page struct {
	Generated string
	Rows      []row
}

// Build scans outputRoot and writes index.html. Entries follow the position
// of their URL in order, unknown URLs last; without an order they are sorted
// by date, newest first. It returns the number of entries.
func Build(outputRoot string, order []string) (int, error) {
	return BuildAt(outputRoot, order, time.Now())
}

// BuildAt is Build with an explicit generation time
func BuildAt(outputRoot string, order []string, now time.Time) (int, error) {
	entries, err := metadata.Scan(outputRoot, nil)
	if err != nil {
		return 0, err
	}

	Sort(entries, order)

	p := page{Generated: now.Format("2006-01-02 15:04")}
	for _, e := range entries {
		p.Rows = append(p.Rows, toRow(e))
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return 0, fmt.Errorf("failed to render index: %w", err)
	}

	if err := storage.WriteFileAtomic(filepath.Join(outputRoot, FileName), buf.Bytes(), 0644); err != nil {
		return 0, fmt.Errorf("failed to write index: %w", err)
	}
	return len(entries), nil
}

// Sort orders entries in place, stably
func Sort(entries []metadata.Entry, order []string) {
	if len(order) == 0 {
		sort.SliceStable(entries, func(i, j int) bool {
			return dateKey(entries[i]) > dateKey(entries[j])
		})
		return
	}

	position := make(map[string]int, len(order))
	for i, u := range order {
		u = strings.TrimSpace(u)
		if _, dup := position[u]; !dup {
			position[u] = i
		}
	}
	rank := func(e metadata.Entry) int {
		if i, ok := position[strings.TrimSpace(e.Meta.URL)]; ok {
			return i
		}
		return len(order)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return rank(entries[i]) < rank(entries[j])
	})
}

func dateKey(e metadata.Entry) string {
	if e.Meta.Date == "" || e.Meta.Date == metadata.NoDate {
		return "0000-00-00"
	}
	return e.Meta.Date
}

func toRow(e metadata.Entry) row {
	base := e.Meta.FilenameBase
	if base == "" {
		base = "article"
	}
	r := row{
		Date:   e.Meta.Date,
		Title:  e.Meta.Title,
		Author: e.Meta.Author,
		URL:    e.Meta.URL,
		Link:   path.Join(e.Name, base+".html"),
	}
	if r.Title == "" {
		r.Title = "Untitled"
	}
	if r.Author == "" {
		r.Author = metadata.UnknownAuthor
	}
	if r.Date == "" {
		r.Date = "Unknown"
	}
	return r
}
