package ports

// FingerprintStore remembers the command each output was last built with.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type FingerprintStore interface {
	// Load reads the fingerprints recorded for the project rooted at root.
	Load(root string) error
	// Get returns the fingerprint recorded for output, if any.
	Get(output string) (fingerprint string, ok bool)
	// Put records the fingerprint of the command that just built output.
	Put(output, fingerprint string) error
	// Fingerprint hashes a command line.
	Fingerprint(command string) string
	// Reset forgets every fingerprint and removes the backing file.
	Reset() error
}
