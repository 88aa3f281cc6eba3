// Package urllist reads and tidies the plain-text URL lists the archiver
// takes as input: one URL per line, optional quotes, # comments.
package urllist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"xarchiver/pkg/storage"
)

// quoteChars are stripped from both ends of a URL line
const quoteChars = "\"'“”"

// Normalize trims whitespace and surrounding quote characters
func Normalize(line string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(line), quoteChars))
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

// Parse returns the URLs in r in order of first appearance, skipping blank
// lines and comments
func Parse(r io.Reader) ([]string, error) {
	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if isComment(line) {
			continue
		}
		u := Normalize(line)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list: %w", err)
	}
	return urls, nil
}

// ReadFile parses the URL list at path
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Inputs resolves a command argument that is either a URL list file or a
// single URL
func Inputs(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err == nil && !info.IsDir() {
		return ReadFile(arg)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) && !strings.Contains(arg, "://") {
		return nil, fmt.Errorf("failed to read %s: %w", arg, err)
	}
	if u := Normalize(arg); u != "" {
		return []string{u}, nil
	}
	return nil, nil
}

// Dedupe removes repeated URL lines from data, keeping the first occurrence
// and every comment or blank line. It returns the new content and how many
// lines were dropped.
func Dedupe(data []byte) ([]byte, int) {
	var out bytes.Buffer
	seen := make(map[string]bool)
	removed := 0

	lines := strings.SplitAfter(string(data), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		if isComment(line) || strings.TrimSpace(line) == "" {
			out.WriteString(line)
			continue
		}
		u := Normalize(line)
		if seen[u] {
			removed++
			continue
		}
		seen[u] = true
		out.WriteString(line)
	}
	return out.Bytes(), removed
}

// Clean deduplicates the URL list at path in place. The file is rewritten
// only when something was removed.
func Clean(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat URL list: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read URL list: %w", err)
	}

	cleaned, removed := Dedupe(data)
	if removed == 0 {
		return 0, nil
	}
	if err := storage.WriteFileAtomic(path, cleaned, info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("failed to write URL list: %w", err)
	}
	return removed, nil
}
