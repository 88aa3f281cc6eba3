package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/logger"
)

var now = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func TestWriteKeepsOnlyFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.json")
	w := NewWriter(path, logger.NewNopLogger())

	n, err := w.Write([]Outcome{
		Success("https://x.com/a/status/1", "a_1", 1, now),
		Failure("https://x.com/b/status/2", errs.New(errs.KindNavigationTimeout, "https://x.com/b/status/2", "timed out"), 3, now),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "https://x.com/b/status/2", raw[0]["url"])
	assert.Equal(t, false, raw[0]["succeeded"])
	assert.Equal(t, "navigation_timeout", raw[0]["reason"])
	assert.Equal(t, "navigation_timeout: timed out", raw[0]["error_msg"])
	assert.Equal(t, float64(3), raw[0]["retry_attempts"])
	assert.Equal(t, "2024-05-01T09:30:00Z", raw[0]["timestamp"])
	assert.Equal(t, w.RunID(), raw[0]["run_id"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteWithoutFailuresLeavesFileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0644))

	n, err := NewWriter(path, logger.NewNopLogger()).Write([]Outcome{Success("u", "f", 1, now)})
	require.NoError(t, err)
	assert.Zero(t, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "failures.json")
	w := NewWriter(path, logger.NewNopLogger())
	_, err := w.Write([]Outcome{Failure("u", errs.New(errs.KindNoContent, "u", "empty"), 1, now)})
	require.NoError(t, err)

	outcomes, err := Load(path)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, errs.KindNoContent, outcomes[0].Reason)
	assert.Equal(t, "u", outcomes[0].URL)
}

func TestLoadMissingAndBroken(t *testing.T) {
	dir := t.TempDir()

	outcomes, err := Load(filepath.Join(dir, "none.json"))
	require.NoError(t, err)
	assert.Nil(t, outcomes)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestRunIDsAreUnique(t *testing.T) {
	a := NewWriter("a", logger.NewNopLogger())
	b := NewWriter("a", logger.NewNopLogger())
	assert.NotEqual(t, a.RunID(), b.RunID())
	assert.Len(t, a.RunID(), 36)
}

func TestFailureOfUntypedError(t *testing.T) {
	o := Failure("u", os.ErrPermission, 1, now)
	assert.Equal(t, errs.KindUnknown, o.Reason)
	assert.Equal(t, os.ErrPermission.Error(), o.ErrorMsg)
}
