package records

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/logger"
)

// Stats summarizes the ledger
type Stats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// Store is the CSV-backed ledger of archived URLs. The whole table lives in
// memory and every Upsert rewrites the file through <path>.tmp and a rename.
type Store struct {
	path    string
	records map[string]Record
	order   []string
	clock   func() time.Time
	logger  logger.Logger
	rename  func(oldpath, newpath string) error
	mu      sync.RWMutex
}

// Option configures a Store
type Option func(*Store)

// WithClock injects the time source used for LastUpdated
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the ledger at path. A missing file is an empty ledger. A file
// that cannot be parsed is moved aside to <path>.corrupted.<unix> and the
// store starts empty.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]Record),
		clock:   time.Now,
		logger:  logger.GetLogger(),
		rename:  os.Rename,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	rows, err := parse(data)
	if err != nil {
		s.quarantine(err)
		return s, nil
	}

	for _, r := range rows {
		if _, seen := s.records[r.URL]; !seen {
			s.order = append(s.order, r.URL)
		}
		// Hand-edited files may repeat a url; the last row wins
		s.records[r.URL] = r
	}

	s.logger.DebugWithFields("Ledger loaded", map[string]interface{}{
		"path":    path,
		"records": len(s.records),
	})
	return s, nil
}

func parse(data []byte) ([]Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = len(Header)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var rows []Record
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range fields {
			fields[i] = unescapeField(fields[i])
		}
		r := recordFromFields(fields)
		if r.URL == "" {
			continue
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// quarantine moves an unreadable ledger aside
func (s *Store) quarantine(cause error) {
	backup := fmt.Sprintf("%s.corrupted.%d", s.path, s.clock().Unix())
	if _, err := os.Stat(backup); err == nil {
		backup = fmt.Sprintf("%s.corrupted.%d", s.path, s.clock().UnixNano())
	}

	corruption := errs.Wrap(errs.KindLedgerCorruption, "", cause)
	fields := map[string]interface{}{
		"path":   s.path,
		"backup": backup,
		"error":  corruption.Error(),
	}
	if err := os.Rename(s.path, backup); err != nil {
		fields["backup_error"] = err.Error()
		s.logger.ErrorWithFields("Ledger is corrupted and could not be backed up", fields)
		return
	}
	s.logger.WarnWithFields("Ledger is corrupted, starting empty", fields)
}

// Path returns the ledger file path
func (s *Store) Path() string {
	return s.path
}

// IsDownloaded reports whether url has a success record
func (s *Store) IsDownloaded(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[url]
	return ok && r.Succeeded()
}

// Get returns the record for url
func (s *Store) Get(url string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[url]
	return r, ok
}

// All returns every record in first-seen order
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, s.records[url])
	}
	return out
}

// Stats counts records by status
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.records)}
	for _, r := range s.records {
		switch r.Status {
		case StatusSuccess:
			st.Success++
		case StatusFailed:
			st.Failed++
		default:
			st.Pending++
		}
	}
	return st
}

// Upsert merges u into the ledger and persists the whole table. The in-memory
// table only changes once the file has been replaced.
func (s *Store) Upsert(u Update) (Record, error) {
	if u.URL == "" {
		return Record{}, errors.New("upsert requires a url")
	}
	switch u.Status {
	case StatusPending, StatusSuccess, StatusFailed:
	default:
		return Record{}, fmt.Errorf("invalid status %q", u.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *Record
	if r, ok := s.records[u.URL]; ok {
		existing = &r
	}
	merged := merge(existing, u, s.clock().Format(TimestampLayout))

	if existing != nil && existing.Succeeded() && u.Status != StatusSuccess {
		s.logger.InfoWithFields("Keeping existing success record", map[string]interface{}{
			"url":    u.URL,
			"status": string(u.Status),
		})
	}

	order := s.order
	if existing == nil {
		order = append(slices.Clip(order), u.URL)
	}

	next := make(map[string]Record, len(s.records)+1)
	for k, v := range s.records {
		next[k] = v
	}
	next[u.URL] = merged

	if err := s.commit(order, next); err != nil {
		return Record{}, errs.Wrap(errs.KindPersistence, u.URL, err)
	}

	s.records = next
	s.order = order
	return merged, nil
}

// commit writes the table to <path>.tmp, syncs it and renames it over path
func (s *Store) commit(order []string, table map[string]Record) error {
	var buf bytes.Buffer
	if err := writeCSV(&buf, order, table, ""); err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	tempPath := s.path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary ledger: %w", err)
	}

	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temporary ledger: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temporary ledger: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temporary ledger: %w", err)
	}

	if err := s.rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

func writeCSV(out io.Writer, order []string, table map[string]Record, status Status) error {
	w := csv.NewWriter(out)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, url := range order {
		r := table[url]
		if status != "" && r.Status != status {
			continue
		}
		fields := r.fields()
		for i := range fields {
			fields[i] = escapeField(fields[i])
		}
		if err := w.Write(fields); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Export writes the ledger, optionally filtered by status, as CSV to out
func (s *Store) Export(out io.Writer, status Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, url := range s.order {
		if status == "" || s.records[url].Status == status {
			count++
		}
	}
	if err := writeCSV(out, s.order, s.records, status); err != nil {
		return 0, fmt.Errorf("failed to export records: %w", err)
	}
	return count, nil
}
