package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"xarchiver/pkg/records"
	"xarchiver/pkg/storage"
)

// FileName is the per-article metadata file
const FileName = "meta.json"

// Placeholders used when a field cannot be extracted
const (
	NoDate        = "NoDate"
	UnknownAuthor = "Unknown"
	ImageOnly     = "Image_Only"
)

// ArticleMetadata describes one archived post. It is built once per
// successful extraction and treated as a value afterwards.
type ArticleMetadata struct {
	URL               string         `json:"url"`
	Title             string         `json:"title"`
	Author            string         `json:"author"`
	Date              string         `json:"date"`
	FolderName        string         `json:"folder_name"`
	FilenameBase      string         `json:"filename_base"`
	DownloadTimestamp string         `json:"download_time"`
	Status            records.Status `json:"status"`
	FailureReason     string         `json:"failure_reason"`
	Source            string         `json:"source"`
	// TitleMissing is set when extraction found no title and Title holds the
	// ImageOnly placeholder
	TitleMissing      bool           `json:"title_missing,omitempty"`
}

// New fills placeholders for empty fields and stamps the download time
func New(url, title, author, date string, now time.Time) ArticleMetadata {
	missing := title == ""
	if missing {
		title = ImageOnly
	}
	if author == "" {
		author = UnknownAuthor
	}
	if date == "" {
		date = NoDate
	}
	return ArticleMetadata{
		URL:               url,
		Title:             title,
		Author:            author,
		Date:              date,
		DownloadTimestamp: now.Format(time.RFC3339),
		Status:            records.StatusPending,
		Source:            "cli",
		TitleMissing:      missing,
	}
}

// WithFolder returns a copy naming the output folder; the HTML file shares its name
func (m ArticleMetadata) WithFolder(folder string) ArticleMetadata {
	m.FolderName = folder
	m.FilenameBase = folder
	return m
}

// WithStatus returns a copy with the given status and failure reason
func (m ArticleMetadata) WithStatus(status records.Status, reason string) ArticleMetadata {
	m.Status = status
	m.FailureReason = reason
	return m
}

// WithSource returns a copy with the given source tag
func (m ArticleMetadata) WithSource(source string) ArticleMetadata {
	m.Source = source
	return m
}

// DownloadedAt parses DownloadTimestamp
func (m ArticleMetadata) DownloadedAt() (time.Time, bool) {
	r := records.Record{LastUpdated: m.DownloadTimestamp}
	return r.UpdatedAt()
}

// ToUpdate projects the metadata onto a ledger write
func (m ArticleMetadata) ToUpdate() records.Update {
	status := m.Status
	if status == "" {
		status = records.StatusPending
	}
	return records.Update{
		URL:           m.URL,
		Status:        status,
		Title:         records.String(m.Title),
		Author:        records.String(m.Author),
		PublishedDate: records.String(m.Date),
		FolderName:    records.String(m.FolderName),
		FailureReason: records.String(m.FailureReason),
		Source:        records.String(m.Source),
	}
}

// Save writes meta.json into dir
func (m ArticleMetadata) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := storage.WriteFileAtomic(filepath.Join(dir, FileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load reads meta.json from dir
func Load(dir string) (ArticleMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return ArticleMetadata{}, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta ArticleMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return ArticleMetadata{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return meta, nil
}

// Exists checks if dir holds a meta.json
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}

// Entry is one archived folder found under an output root
type Entry struct {
	Dir     string
	Name    string
	ModTime time.Time
	Meta    ArticleMetadata
}

// Scan reads meta.json from every immediate subdirectory of root, sorted by
// folder name. Unreadable files are reported through skipped and left out.
func Scan(root string, skipped func(dir string, err error)) ([]Entry, error) {
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		dir := filepath.Join(root, de.Name())
		if !Exists(dir) {
			continue
		}
		meta, err := Load(dir)
		if err != nil {
			if skipped != nil {
				skipped(dir, err)
			}
			continue
		}
		var modTime time.Time
		if info, err := de.Info(); err == nil {
			modTime = info.ModTime()
		}
		entries = append(entries, Entry{Dir: dir, Name: de.Name(), ModTime: modTime, Meta: meta})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
