package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Manager stores the asset files of one archived document and tracks which
// names are already present
type Manager struct {
	dir     string
	present map[string]bool
	mu      sync.RWMutex
}

// NewManager creates the directory if needed and indexes files already in it
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}

	m := &Manager{
		dir:     dir,
		present: make(map[string]bool),
	}

	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return m, nil
}

func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".tmp" {
			continue
		}
		if info, err := entry.Info(); err == nil && info.Size() > 0 {
			m.present[entry.Name()] = true
		}
	}

	return nil
}

// Exists reports whether a non-empty file with this name is present
func (m *Manager) Exists(name string) bool {
	m.mu.RLock()
	cached := m.present[name]
	m.mu.RUnlock()
	if cached {
		return true
	}

	info, err := os.Stat(filepath.Join(m.dir, name))
	if err != nil || info.Size() == 0 {
		return false
	}

	m.mu.Lock()
	m.present[name] = true
	m.mu.Unlock()
	return true
}

// SaveAsset streams r into name through a temporary file and renames it into
// place, so a partial download never appears under the final name
func (m *Manager) SaveAsset(r io.Reader, name string) (int64, error) {
	filename := filepath.Join(m.dir, name)

	out, err := os.CreateTemp(m.dir, name+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	written, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return written, fmt.Errorf("failed to save asset data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return written, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return written, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.present[name] = true
	m.mu.Unlock()

	return written, nil
}

// Dir returns the managed directory
func (m *Manager) Dir() string {
	return m.dir
}

// Count returns the number of files known to be present
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.present)
}

// WriteFileAtomic writes data to path via a synced temp file in the same
// directory followed by a rename
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
