// Package progrock records build steps as progrock vertices.
package progrock

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/kiln/internal/core/ports"
)

// Recorder implements ports.Telemetry using the vito/progrock library.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder

	mu   sync.Mutex
	runs map[string]int
}

var _ ports.Telemetry = (*Recorder)(nil)

// New creates a new Recorder with a default tape.
func New() *Recorder {
	return NewRecorder(progrock.NewTape())
}

// NewRecorder creates a new Recorder with the given writer.
func NewRecorder(w progrock.Writer) *Recorder {
	return &Recorder{
		w:    w,
		rec:  progrock.NewRecorder(w),
		runs: make(map[string]int),
	}
}

// Record starts a vertex for name. Repeated names within one session, as
// produced by watch rebuilds, get distinct digests.
func (r *Recorder) Record(_ context.Context, name string) ports.Vertex {
	r.mu.Lock()
	run := r.runs[name]
	r.runs[name]++
	r.mu.Unlock()

	d := digest.FromString(fmt.Sprintf("%s#%d", name, run))
	return &Vertex{vertex: r.rec.Vertex(d, name)}
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	if c, ok := r.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
