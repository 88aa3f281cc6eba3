// Package export renders an archived document into its secondary formats:
// Markdown, PDF and EPUB. The HTML file is always the source of truth; every
// exporter reads from it or from its parsed form.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	epub "github.com/go-shiori/go-epub"
	"github.com/google/uuid"

	"xarchiver/pkg/metadata"
	"xarchiver/pkg/storage"
)

// MarkdownConverter renders clean documents as Markdown
type MarkdownConverter struct {
	converter *md.Converter
}

// NewMarkdownConverter creates a converter with GitHub-flavoured defaults
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{converter: md.NewConverter("", true, nil)}
}

// Convert renders a source header followed by one section per block
func (m *MarkdownConverter) Convert(sourceURL string, blocks *goquery.Selection) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Source: %s\n\n", sourceURL)

	var convErr error
	blocks.EachWithBreak(func(_ int, block *goquery.Selection) bool {
		html, err := goquery.OuterHtml(block)
		if err != nil {
			convErr = err
			return false
		}
		text, err := m.converter.ConvertString(html)
		if err != nil {
			convErr = err
			return false
		}
		b.WriteString("\n\n---\n\n")
		b.WriteString(text)
		return true
	})
	if convErr != nil {
		return "", fmt.Errorf("failed to convert to markdown: %w", convErr)
	}
	b.WriteString("\n")
	return b.String(), nil
}

// WriteMarkdown converts blocks and writes the result atomically to path
func (m *MarkdownConverter) WriteMarkdown(path, sourceURL string, blocks *goquery.Selection) error {
	text, err := m.Convert(sourceURL, blocks)
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(path, []byte(text), 0644)
}

// PDFPrinter prints a local file to PDF; browser.Page implements it
type PDFPrinter interface {
	PrintPDF(ctx context.Context, fileURL string) ([]byte, error)
}

// WritePDF renders the HTML file at htmlPath through printer into pdfPath
func WritePDF(ctx context.Context, printer PDFPrinter, htmlPath, pdfPath string) error {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", htmlPath, err)
	}

	data, err := printer.PrintPDF(ctx, "file://"+filepath.ToSlash(abs))
	if err != nil {
		return fmt.Errorf("failed to print PDF: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("failed to print PDF: empty output")
	}
	return storage.WriteFileAtomic(pdfPath, data, 0644)
}

// WriteEPUB packages the clean document and its local images as an EPUB.
// Images still pointing at remote URLs are left as links.
func WriteEPUB(meta metadata.ArticleMetadata, cleanHTML, articleDir, epubPath string) error {
	book, err := epub.NewEpub(meta.Title)
	if err != nil {
		return fmt.Errorf("failed to create epub: %w", err)
	}
	book.SetAuthor(meta.Author)
	book.SetLang("en")
	book.SetIdentifier("urn:uuid:" + uuid.NewString())
	book.SetDescription(meta.URL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cleanHTML))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	var imgErr error
	doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := img.AttrOr("src", "")
		if strings.Contains(src, "://") || strings.HasPrefix(src, "data:") {
			return true
		}
		local := filepath.Join(articleDir, filepath.FromSlash(src))
		if _, err := os.Stat(local); err != nil {
			return true
		}
		internal, err := book.AddImage(local, filepath.Base(local))
		if err != nil {
			imgErr = err
			return false
		}
		img.SetAttr("src", internal)
		img.RemoveAttr("srcset")
		return true
	})
	if imgErr != nil {
		return fmt.Errorf("failed to add image: %w", imgErr)
	}

	body, err := doc.Find("body").Html()
	if err != nil {
		return fmt.Errorf("failed to serialize body: %w", err)
	}
	if _, err := book.AddSection(body, meta.Title, "article.xhtml", ""); err != nil {
		return fmt.Errorf("failed to add section: %w", err)
	}

	tmp := epubPath + ".tmp"
	if err := book.Write(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write epub: %w", err)
	}
	if err := os.Rename(tmp, epubPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move epub into place: %w", err)
	}
	return nil
}
