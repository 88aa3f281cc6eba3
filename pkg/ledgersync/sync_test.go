package ledgersync

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/logger"
	"xarchiver/pkg/metadata"
	"xarchiver/pkg/records"
	"xarchiver/pkg/report"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func writeFolder(t *testing.T, root, name string, meta metadata.ArticleMetadata) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, meta.Save(dir))
}

func openStore(t *testing.T, root string) *records.Store {
	t.Helper()
	store, err := records.Open(filepath.Join(root, "records.csv"), records.WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	return store
}

func TestSyncImportsFoldersAndFailures(t *testing.T) {
	root := t.TempDir()

	done := metadata.New("https://x.com/a/status/1", "Hello", "a", "2024-05-01", now).
		WithFolder("a_Hello_1_2024-05-01").
		WithStatus(records.StatusSuccess, "")
	writeFolder(t, root, "a_Hello_1_2024-05-01", done)

	legacy := metadata.New("https://x.com/b/status/2", "Old", "b", "2023-01-01", now)
	legacy.Status = ""
	writeFolder(t, root, "b_Old_2_2023-01-01", legacy)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken", metadata.FileName), []byte("{"), 0644))

	failures := filepath.Join(root, "failures.json")
	w := report.NewWriter(failures, logger.NewNopLogger())
	_, err := w.Write([]report.Outcome{
		report.Failure("https://x.com/c/status/3", errs.New(errs.KindNavigationTimeout, "https://x.com/c/status/3", "gave up"), 3, now),
		report.Failure("https://x.com/a/status/1", errs.New(errs.KindNoContent, "https://x.com/a/status/1", "empty"), 1, now),
	})
	require.NoError(t, err)

	store := openStore(t, root)
	res, err := Sync(store, root, failures, logger.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Folders)
	assert.Equal(t, 2, res.Failures)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Errors)

	rec, ok := store.Get("https://x.com/a/status/1")
	require.True(t, ok)
	assert.Equal(t, records.StatusSuccess, rec.Status, "a later failure never demotes a success")
	assert.Equal(t, "a_Hello_1_2024-05-01", rec.FolderName)

	rec, ok = store.Get("https://x.com/b/status/2")
	require.True(t, ok)
	assert.Equal(t, records.StatusSuccess, rec.Status)
	assert.Equal(t, SourceScan, rec.Source)
	assert.Equal(t, "b_Old_2_2023-01-01", rec.FolderName)

	rec, ok = store.Get("https://x.com/c/status/3")
	require.True(t, ok)
	assert.Equal(t, records.StatusFailed, rec.Status)
	assert.Equal(t, SourceFailures, rec.Source)
	assert.Contains(t, rec.FailureReason, "gave up")
}

func TestSyncMissingInputs(t *testing.T) {
	root := t.TempDir()
	store := openStore(t, root)

	res, err := Sync(store, filepath.Join(root, "nope"), filepath.Join(root, "failures.json"), logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

type failingLedger struct{}

func (failingLedger) Upsert(records.Update) (records.Record, error) {
	return records.Record{}, errors.New("disk full")
}

func TestSyncCountsUpsertErrors(t *testing.T) {
	root := t.TempDir()
	meta := metadata.New("https://x.com/a/status/1", "Hello", "a", "2024-05-01", now).WithFolder("f")
	writeFolder(t, root, "f", meta)

	res, err := Sync(failingLedger{}, root, filepath.Join(root, "failures.json"), logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Zero(t, res.Folders)
}

func TestSyncBrokenFailuresFile(t *testing.T) {
	root := t.TempDir()
	failures := filepath.Join(root, "failures.json")
	require.NoError(t, os.WriteFile(failures, []byte("not json"), 0644))

	_, err := Sync(openStore(t, root), root, failures, logger.NewNopLogger())
	assert.Error(t, err)
}
