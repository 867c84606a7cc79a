// Package manifest tracks the imported tables of a catalog library.
//
// The manifest is a JSON file under the library local root, reached
// through a CURRENT pointer file. Updates write a fresh manifest file,
// fsync it, then swap CURRENT via rename, so a crash at any point leaves
// the previous state reachable. Old manifest files are kept.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/astrodb/internal/fs"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	CurrentVersion   = 1
)

// Manifest records the imported tables of one library root at a point in
// time. Entries are keyed by the catalog identity path "Class/ID/Name".
type Manifest struct {
	Version int                  `json:"version"`
	ID      uint64               `json:"id"`
	Tables  map[string]TableInfo `json:"tables,omitempty"`
}

// TableInfo describes one imported table.
type TableInfo struct {
	Class        string        `json:"class"`
	CatalogID    string        `json:"catalog_id"`
	Name         string        `json:"name"`
	RecordCount  uint64        `json:"record_count"`
	RecordSize   uint32        `json:"record_size"`
	Compressed   bool          `json:"compressed,omitempty"`
	RecordFile   string        `json:"record_file"` // relative to the library root
	SchemaFile   string        `json:"schema_file"` // relative to the library root
	SchemaCodec  string        `json:"schema_codec"`
	SchemaDigest string        `json:"schema_digest"`
	ImportedAt   time.Time     `json:"imported_at"`
	Summary      ImportSummary `json:"summary"`
}

// ImportSummary mirrors the counters an import run reports.
type ImportSummary struct {
	RowsRead           uint64        `json:"rows_read"`
	RecordsImported    uint64        `json:"records_imported"`
	SkippedOutOfBounds uint64        `json:"skipped_out_of_bounds"`
	FieldFailures      uint64        `json:"field_failures"`
	Elapsed            time.Duration `json:"elapsed_ns"`
}

// Lookup returns the entry for key.
func (m *Manifest) Lookup(key string) (TableInfo, bool) {
	info, ok := m.Tables[key]
	return info, ok
}

// Upsert adds or replaces the entry for key.
func (m *Manifest) Upsert(key string, info TableInfo) {
	if m.Tables == nil {
		m.Tables = make(map[string]TableInfo)
	}
	m.Tables[key] = info
}

// Delete removes the entry for key if present.
func (m *Manifest) Delete(key string) {
	delete(m.Tables, key)
}

// Keys returns all entry keys, sorted.
func (m *Manifest) Keys() []string {
	keys := make([]string, 0, len(m.Tables))
	for k := range m.Tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store manages the manifest file and atomic updates.
type Store struct {
	fs  fs.FileSystem
	dir string
	mu  sync.Mutex
}

// NewStore creates a manifest store rooted at dir.
func NewStore(fsys fs.FileSystem, dir string) *Store {
	return &Store{
		fs:  fsys,
		dir: dir,
	}
}

// Load loads the current manifest. A root without a CURRENT file yields
// an empty manifest.
func (s *Store) Load() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Save atomically saves a new manifest, bumping its ID.
func (s *Store) Save(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(m)
}

// Update applies fn to the current manifest and saves the result as one
// serialized read-modify-write step, so concurrent imports through the
// same Store cannot lose each other's entries.
func (s *Store) Update(fn func(*Manifest) error) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	if err := s.save(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) load() (*Manifest, error) {
	readFile := func(path string) ([]byte, error) {
		f, err := s.fs.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	// CURRENT names the live manifest file
	currentPath := filepath.Join(s.dir, CurrentFileName)
	content, err := readFile(currentPath)
	if errors.Is(err, os.ErrNotExist) {
		return &Manifest{ID: 0, Version: CurrentVersion}, nil
	}
	if err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(s.dir, string(content))
	data, err := readFile(manifestPath)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", string(content), err)
	}

	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("manifest: unsupported version: %d (expected %d)", m.Version, CurrentVersion)
	}

	return &m, nil
}

func (s *Store) save(m *Manifest) error {
	m.Version = CurrentVersion
	m.ID++

	// 1. Write the new manifest file
	filename := fmt.Sprintf("%s-%06d.json", ManifestFileName, m.ID)
	path := filepath.Join(s.dir, filename)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	if err := s.writeFileSynced(path, data); err != nil {
		return err
	}
	if err := s.syncDir(); err != nil {
		return err
	}

	// 2. Swap the CURRENT pointer
	if err := s.writeFileSynced(filepath.Join(s.dir, CurrentFileName), []byte(filename)); err != nil {
		return err
	}

	return s.syncDir()
}

// writeFileSynced writes data to path via a synced temp file and rename.
func (s *Store) writeFileSynced(path string, data []byte) error {
	tmpPath := path + ".tmp"

	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return err
	}

	if err := s.fs.Rename(tmpPath, path); err != nil {
		s.fs.Remove(tmpPath)
		return err
	}

	return nil
}

func (s *Store) syncDir() error {
	f, err := s.fs.OpenFile(s.dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
