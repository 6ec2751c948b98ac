package enginetest

import (
	"maps"
	"slices"
	"sync"
)

// MemStore is an in-memory FingerprintStore whose fingerprint is the command itself.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]string)}
}

// Get implements ports.FingerprintStore.
func (s *MemStore) Get(output string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.entries[output]
	return fp, ok
}

// Load implements ports.FingerprintStore. Entries survive across loads so
// consecutive builds in one test see each other's records.
func (s *MemStore) Load(string) error {
	return nil
}

// Put implements ports.FingerprintStore.
func (s *MemStore) Put(output, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[output] = fingerprint
	return nil
}

// Fingerprint implements ports.FingerprintStore.
func (s *MemStore) Fingerprint(command string) string {
	return command
}

// Reset implements ports.FingerprintStore.
func (s *MemStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	return nil
}

// Entries returns a copy of the recorded fingerprints.
func (s *MemStore) Entries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.entries)
}

// Logger records messages instead of printing them.
type Logger struct {
	mu       sync.Mutex
	Messages []string
}

// Info implements ports.Logger.
func (l *Logger) Info(msg string) { l.add("INFO " + msg) }

// Warn implements ports.Logger.
func (l *Logger) Warn(msg string) { l.add("WARN " + msg) }

// Debug implements ports.Logger.
func (l *Logger) Debug(msg string) { l.add("DEBUG " + msg) }

// Error implements ports.Logger.
func (l *Logger) Error(err error) { l.add("ERROR " + err.Error()) }

func (l *Logger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, msg)
}

// All returns a copy of the recorded messages.
func (l *Logger) All() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.Messages)
}
