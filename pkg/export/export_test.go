package export

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xarchiver/pkg/metadata"
)

var tinyGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00,
	0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00,
	0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02,
	0x44, 0x01, 0x00, 0x3b,
}

const cleanDoc = `<!DOCTYPE html><html><head><title>t</title></head><body>
<div class="archive-wrapper">
<div class="archive-card"><article><p>First <strong>post</strong></p><img src="assets/a.gif"></article></div>
<div class="archive-card"><article><p>A reply</p><img src="https://pbs.twimg.com/media/remote.jpg"></article></div>
</div></body></html>`

func TestMarkdownConvert(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cleanDoc))
	require.NoError(t, err)

	out, err := NewMarkdownConverter().Convert("https://x.com/a/status/1", doc.Find("article"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "# Source: https://x.com/a/status/1\n\n"))
	assert.Equal(t, 2, strings.Count(out, "\n\n---\n\n"))
	assert.Contains(t, out, "First **post**")
	assert.Contains(t, out, "![](assets/a.gif)")
	assert.Less(t, strings.Index(out, "First"), strings.Index(out, "A reply"))
}

func TestWriteMarkdown(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cleanDoc))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "a.md")

	require.NoError(t, NewMarkdownConverter().WriteMarkdown(path, "u", doc.Find("article")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "A reply")
}

type fakePrinter struct {
	gotURL string
	data   []byte
	err    error
}

func (f *fakePrinter) PrintPDF(ctx context.Context, fileURL string) ([]byte, error) {
	f.gotURL = fileURL
	return f.data, f.err
}

func TestWritePDF(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "a.html")
	pdfPath := filepath.Join(dir, "a.pdf")
	printer := &fakePrinter{data: []byte("%PDF-1.7")}

	require.NoError(t, WritePDF(context.Background(), printer, htmlPath, pdfPath))
	assert.True(t, strings.HasPrefix(printer.gotURL, "file://"))
	assert.True(t, strings.HasSuffix(printer.gotURL, "/a.html"))

	data, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
}

func TestWritePDFErrors(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "a.pdf")

	err := WritePDF(context.Background(), &fakePrinter{err: errors.New("crashed")}, "a.html", pdfPath)
	assert.ErrorContains(t, err, "crashed")

	err = WritePDF(context.Background(), &fakePrinter{}, "a.html", pdfPath)
	assert.Error(t, err)

	_, statErr := os.Stat(pdfPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteEPUB(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "a.gif"), tinyGIF, 0644))

	meta := metadata.New("https://x.com/a/status/1", "A title", "alice", "2024-05-01", time.Now())
	epubPath := filepath.Join(dir, "a.epub")
	require.NoError(t, WriteEPUB(meta, cleanDoc, dir, epubPath))

	r, err := zip.OpenReader(epubPath)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	var section string
	for _, f := range r.File {
		names = append(names, f.Name)
		if strings.HasSuffix(f.Name, "article.xhtml") {
			rc, err := f.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			section = string(data)
		}
	}

	assert.Contains(t, names, "mimetype")
	assert.Contains(t, strings.Join(names, " "), "a.gif")
	assert.Contains(t, section, "First")
	assert.NotContains(t, section, `src="assets/a.gif"`)
	assert.Contains(t, section, "https://pbs.twimg.com/media/remote.jpg")
}
