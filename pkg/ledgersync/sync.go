// Package ledgersync rebuilds ledger rows from what is already on disk: the
// meta.json of every archived folder and the failures file of the last run.
package ledgersync

import (
	"fmt"

	"xarchiver/pkg/logger"
	"xarchiver/pkg/metadata"
	"xarchiver/pkg/records"
	"xarchiver/pkg/report"
)

// Source tags written by a sync
const (
	SourceScan     = "sync_scan"
	SourceFailures = "sync_failures"
)

// Ledger is the record store a sync writes to
type Ledger interface {
	Upsert(u records.Update) (records.Record, error)
}

// Result counts what a sync imported
type Result struct {
	Folders  int
	Failures int
	Skipped  int
	Errors   int
}

// Sync imports every folder under outputRoot and then the failures file.
// Existing successes stay successes; the store enforces that.
func Sync(ledger Ledger, outputRoot, failuresPath string, log logger.Logger) (Result, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	var res Result

	entries, err := metadata.Scan(outputRoot, func(dir string, err error) {
		res.Skipped++
		log.WithError(err).WithField("dir", dir).Warn("Skipping unreadable metadata")
	})
	if err != nil {
		return res, err
	}

	for _, e := range entries {
		meta := e.Meta
		if meta.URL == "" {
			res.Skipped++
			continue
		}
		if meta.FolderName == "" {
			meta = meta.WithFolder(e.Name)
		}
		// a folder with metadata predating the status field was archived
		if meta.Status == "" || meta.Status == records.StatusPending {
			meta = meta.WithStatus(records.StatusSuccess, "")
		}
		if _, err := ledger.Upsert(meta.WithSource(SourceScan).ToUpdate()); err != nil {
			res.Errors++
			log.WithError(err).WithField("url", meta.URL).Error("Failed to import folder")
			continue
		}
		res.Folders++
	}

	outcomes, err := report.Load(failuresPath)
	if err != nil {
		return res, fmt.Errorf("failed to read failures file: %w", err)
	}
	for _, o := range outcomes {
		if o.Succeeded || o.URL == "" {
			continue
		}
		reason := o.ErrorMsg
		if reason == "" {
			reason = string(o.Reason)
		}
		_, err := ledger.Upsert(records.Update{
			URL:           o.URL,
			Status:        records.StatusFailed,
			FailureReason: records.String(reason),
			Source:        records.String(SourceFailures),
		})
		if err != nil {
			res.Errors++
			log.WithError(err).WithField("url", o.URL).Error("Failed to import failure")
			continue
		}
		res.Failures++
	}

	log.InfoWithFields("Ledger sync finished", map[string]interface{}{
		"folders":  res.Folders,
		"failures": res.Failures,
		"skipped":  res.Skipped,
		"errors":   res.Errors,
	})
	return res, nil
}
