// Package cas persists the command fingerprints of link and copy outputs.
package cas

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	kilnfs "go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// FileName is the store file inside the state directory.
const FileName = "fingerprints.json"

// Store implements ports.FingerprintStore using a flat JSON file keyed by
// output path.
type Store struct {
	path  string
	mu    sync.RWMutex
	cache map[string]string
}

var _ ports.FingerprintStore = (*Store)(nil)

// NewStore creates a Store for the project in the current directory. Nothing
// is read until Load is called.
func NewStore() *Store {
	return &Store{
		path:  filepath.Join(kilnfs.StateDir, FileName),
		cache: make(map[string]string),
	}
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Load switches the store to the project rooted at root and reads its file.
// A missing or empty file yields an empty store.
func (s *Store) Load(root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.path = filepath.Join(root, kilnfs.StateDir, FileName)
	s.cache = make(map[string]string)

	//nolint:gosec // Path is derived from the project root
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return storeError(err, "failed to read fingerprint store", s.path)
	}

	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &s.cache); err != nil {
		return storeError(err, "failed to unmarshal fingerprint store", s.path)
	}

	return nil
}

// save writes the cache atomically. The caller holds s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return storeError(err, "failed to marshal fingerprint store", s.path)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return storeError(err, "failed to create directory for fingerprint store", dir)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return storeError(err, "failed to write fingerprint store", s.path)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return storeError(err, "failed to write fingerprint store", s.path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return storeError(err, "failed to write fingerprint store", s.path)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return storeError(err, "failed to write fingerprint store", s.path)
	}

	return nil
}

// Get returns the fingerprint recorded for output.
func (s *Store) Get(output string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fp, ok := s.cache[output]
	return fp, ok
}

// Put records fingerprint for output and flushes the store to disk.
func (s *Store) Put(output, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.cache[output]; ok && old == fingerprint {
		return nil
	}
	s.cache[output] = fingerprint
	return s.save()
}

// Fingerprint hashes command with xxhash.
func (s *Store) Fingerprint(command string) string {
	return strconv.FormatUint(xxhash.Sum64String(command), 16)
}

// Reset forgets every fingerprint and deletes the backing file.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.cache)
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storeError(err, "failed to remove fingerprint store", s.path)
	}
	return nil
}

func storeError(err error, msg, path string) error {
	return zerr.With(zerr.Wrap(errors.Join(domain.ErrIO, err), msg), "path", path)
}
