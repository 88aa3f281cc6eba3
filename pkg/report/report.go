package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/logger"
)

// Outcome is the result of archiving one URL
type Outcome struct {
	URL           string    `json:"url"`
	Succeeded     bool      `json:"succeeded"`
	ErrorMsg      string    `json:"error_msg"`
	Reason        errs.Kind `json:"reason,omitempty"`
	RetryAttempts int       `json:"retry_attempts"`
	Timestamp     string    `json:"timestamp"`
	Folder        string    `json:"folder,omitempty"`
	RunID         string    `json:"run_id,omitempty"`
}

// Success builds the outcome of an archived URL
func Success(url, folder string, attempts int, now time.Time) Outcome {
	return Outcome{
		URL:           url,
		Succeeded:     true,
		RetryAttempts: attempts,
		Timestamp:     now.Format(time.RFC3339),
		Folder:        folder,
	}
}

// Failure builds the outcome of a failed URL from its typed error
func Failure(url string, err error, attempts int, now time.Time) Outcome {
	o := Outcome{
		URL:           url,
		RetryAttempts: attempts,
		Timestamp:     now.Format(time.RFC3339),
		Reason:        errs.KindOf(err),
	}
	if err != nil {
		o.ErrorMsg = err.Error()
	}
	return o
}

// Writer persists the failures of one batch run
type Writer struct {
	path   string
	runID  string
	logger logger.Logger
}

// NewWriter creates a writer for path with a fresh run id
func NewWriter(path string, log logger.Logger) *Writer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Writer{path: path, runID: uuid.NewString(), logger: log}
}

// RunID identifies the batch in logs and in the report
func (w *Writer) RunID() string {
	return w.runID
}

// Path returns the report file path
func (w *Writer) Path() string {
	return w.path
}

// Write saves the failed outcomes atomically. It returns the number written
// and leaves any previous report untouched when nothing failed.
func (w *Writer) Write(outcomes []Outcome) (int, error) {
	failed := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Succeeded {
			continue
		}
		o.RunID = w.runID
		failed = append(failed, o)
	}
	if len(failed) == 0 {
		return 0, nil
	}

	if err := save(w.path, failed); err != nil {
		return 0, err
	}

	w.logger.InfoWithFields("Failure report written", map[string]interface{}{
		"path":   w.path,
		"failed": len(failed),
		"run_id": w.runID,
	})
	return len(failed), nil
}

// save writes the outcomes as indented JSON via a synced temp file
func save(path string, outcomes []Outcome) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary report file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(outcomes); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync report file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close report file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace report file: %w", err)
	}
	return nil
}

// Load reads a failure report. A missing file yields no outcomes.
func Load(path string) ([]Outcome, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	defer file.Close()

	var outcomes []Outcome
	if err := json.NewDecoder(file).Decode(&outcomes); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return outcomes, nil
}

// Delete removes the report file
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}
