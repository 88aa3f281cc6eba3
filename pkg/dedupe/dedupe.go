// Package dedupe finds article folders that archive the same URL and
// optionally removes all but the newest copy.
package dedupe

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"xarchiver/pkg/logger"
	"xarchiver/pkg/metadata"
)

// Copy is one folder in a duplicate group
type Copy struct {
	Dir          string
	Name         string
	DownloadedAt time.Time
	Size         int64
}

// Group lists every folder archiving URL, newest first. Keep is Copies[0].
type Group struct {
	URL    string
	Copies []Copy
}

// Keep returns the copy that survives a cleanup
func (g Group) Keep() Copy {
	return g.Copies[0]
}

// Extra returns the copies a cleanup would delete
func (g Group) Extra() []Copy {
	return g.Copies[1:]
}

// Report summarizes a scan
type Report struct {
	Groups      []Group
	Reclaimable int64
	Deleted     int
	Freed       int64
}

// Find groups the article folders under root by URL and returns only the
// groups with more than one folder
func Find(root string, log logger.Logger) ([]Group, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	entries, err := metadata.Scan(root, func(dir string, err error) {
		log.WarnWithFields("Skipping unreadable metadata", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
	})
	if err != nil {
		return nil, err
	}

	byURL := make(map[string][]Copy)
	var order []string
	for _, e := range entries {
		if e.Meta.URL == "" {
			continue
		}
		at, ok := e.Meta.DownloadedAt()
		if !ok {
			at = e.ModTime
		}
		size, err := folderSize(e.Dir)
		if err != nil {
			log.WarnWithFields("Failed to measure folder", map[string]interface{}{
				"dir":   e.Dir,
				"error": err.Error(),
			})
		}
		if _, seen := byURL[e.Meta.URL]; !seen {
			order = append(order, e.Meta.URL)
		}
		byURL[e.Meta.URL] = append(byURL[e.Meta.URL], Copy{
			Dir:          e.Dir,
			Name:         e.Name,
			DownloadedAt: at,
			Size:         size,
		})
	}

	var groups []Group
	for _, url := range order {
		copies := byURL[url]
		if len(copies) < 2 {
			continue
		}
		sort.SliceStable(copies, func(i, j int) bool {
			return copies[i].DownloadedAt.After(copies[j].DownloadedAt)
		})
		groups = append(groups, Group{URL: url, Copies: copies})
	}
	return groups, nil
}

// Run scans root and, when remove is set, deletes every non-newest copy
func Run(root string, remove bool, log logger.Logger) (Report, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	groups, err := Find(root, log)
	if err != nil {
		return Report{}, err
	}

	report := Report{Groups: groups}
	for _, g := range groups {
		for _, c := range g.Extra() {
			report.Reclaimable += c.Size
			if !remove {
				continue
			}
			if err := os.RemoveAll(c.Dir); err != nil {
				return report, fmt.Errorf("failed to delete %s: %w", c.Dir, err)
			}
			report.Deleted++
			report.Freed += c.Size
			log.InfoWithFields("Deleted duplicate folder", map[string]interface{}{
				"url":    g.URL,
				"folder": c.Name,
				"kept":   g.Keep().Name,
			})
		}
	}

	log.InfoWithFields("Duplicate scan finished", map[string]interface{}{
		"groups":         len(groups),
		"reclaimable_mb": MB(report.Reclaimable),
		"deleted":        report.Deleted,
	})
	return report, nil
}

// MB converts bytes to megabytes
func MB(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

func folderSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
