package index

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xarchiver/pkg/metadata"
)

func writeArticle(t *testing.T, root, folder, url, title, date string) {
	t.Helper()
	dir := filepath.Join(root, folder)
	require.NoError(t, os.MkdirAll(dir, 0755))
	meta := metadata.New(url, title, "alice", date, time.Now()).WithFolder(folder)
	require.NoError(t, meta.Save(dir))
}

func readIndex(t *testing.T, root string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, FileName))
	require.NoError(t, err)
	return string(data)
}

func TestBuildOrdersByDateWithoutOrder(t *testing.T) {
	root := t.TempDir()
	writeArticle(t, root, "old", "https://x.com/a/status/1", "Old post", "2023-01-01")
	writeArticle(t, root, "new", "https://x.com/a/status/2", "New post", "2024-01-01")
	writeArticle(t, root, "nodate", "https://x.com/a/status/3", "Undated", metadata.NoDate)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-an-article"), 0755))

	n, err := BuildAt(root, nil, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	html := readIndex(t, root)
	assert.Contains(t, html, "<title>X Articles Library</title>")
	assert.Contains(t, html, "Last Updated: 2024-06-01 08:00")
	assert.Contains(t, html, "Total Articles: 3")
	assert.Contains(t, html, `href="new/new.html"`)

	iNew := strings.Index(html, "New post")
	iOld := strings.Index(html, "Old post")
	iNone := strings.Index(html, "Undated")
	assert.Less(t, iNew, iOld)
	assert.Less(t, iOld, iNone)
}

func TestBuildFollowsURLOrder(t *testing.T) {
	root := t.TempDir()
	writeArticle(t, root, "a", "https://x.com/a/status/1", "First", "2024-01-01")
	writeArticle(t, root, "b", "https://x.com/a/status/2", "Second", "2023-01-01")
	writeArticle(t, root, "c", "https://x.com/a/status/3", "Unlisted", "2025-01-01")

	_, err := Build(root, []string{"https://x.com/a/status/2", " https://x.com/a/status/1 "})
	require.NoError(t, err)

	html := readIndex(t, root)
	assert.Less(t, strings.Index(html, "Second"), strings.Index(html, "First"))
	assert.Less(t, strings.Index(html, "First"), strings.Index(html, "Unlisted"))
}

func TestBuildEscapesMetadata(t *testing.T) {
	root := t.TempDir()
	writeArticle(t, root, "x", "https://x.com/a/status/1", `<script>alert("x")</script>`, "2024-01-01")

	_, err := Build(root, nil)
	require.NoError(t, err)

	html := readIndex(t, root)
	assert.NotContains(t, html, "<script>alert")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestBuildEmptyRoot(t *testing.T) {
	root := t.TempDir()
	n, err := Build(root, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, readIndex(t, root), "Total Articles: 0")
}

func TestSortIsStable(t *testing.T) {
	entries := []metadata.Entry{
		{Name: "a", Meta: metadata.ArticleMetadata{URL: "u1", Date: "2024-01-01"}},
		{Name: "b", Meta: metadata.ArticleMetadata{URL: "u2", Date: "2024-01-01"}},
		{Name: "c", Meta: metadata.ArticleMetadata{URL: "u3", Date: "2024-01-01"}},
	}
	Sort(entries, []string{"u3"})
	assert.Equal(t, []string{"c", "a", "b"}, []string{entries[0].Name, entries[1].Name, entries[2].Name})
}
