package mission

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DumpStore persists the accepted waypoint records.
type DumpStore interface {
	Save(records []Record) error
	// Load returns ErrNoDump when nothing has been saved.
	Load() ([]Record, error)
	// Remove deletes the dump; a missing dump is not an error.
	Remove() error
}

// FileStore keeps the dump as a JSON array in one file. Saves write a
// temporary file next to it and rename it into place.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("mission: encode dump: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mission: dump dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("mission: dump temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("mission: write dump: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("mission: sync dump: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("mission: close dump: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("mission: rename dump: %w", err)
	}
	return nil
}

func (s *FileStore) Load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoDump
		}
		return nil, fmt.Errorf("mission: read dump: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("mission: decode dump %s: %w", s.path, err)
	}
	for i, r := range records {
		if !r.Type.Valid() {
			return nil, fmt.Errorf("mission: dump entry %d: %w: %d", i, ErrInvalidWaypointType, uint8(r.Type))
		}
		if r.Index != i {
			return nil, fmt.Errorf("%w: entry %d has index %d", ErrDumpSequence, i, r.Index)
		}
	}
	return records, nil
}

func (s *FileStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("mission: remove dump: %w", err)
	}
	return nil
}
