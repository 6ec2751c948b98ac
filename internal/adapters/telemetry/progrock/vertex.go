package progrock

import (
	"errors"
	"fmt"
	"io"

	"github.com/vito/progrock"
	"go.trai.ch/kiln/internal/core/domain"
)

// errSkipped completes vertices whose work never ran.
var errSkipped = errors.New("skipped: build aborted")

// Vertex implements ports.Vertex wrapping *progrock.VertexRecorder.
type Vertex struct {
	vertex *progrock.VertexRecorder
}

// Stdout returns a writer to capture the command output.
func (v *Vertex) Stdout() io.Writer {
	return v.vertex.Stdout()
}

// Log records a message associated with this vertex. Warnings and errors go
// to the vertex's stderr.
func (v *Vertex) Log(level domain.LogLevel, msg string) {
	w := v.vertex.Stdout()
	if level >= domain.LogLevelWarn {
		w = v.vertex.Stderr()
	}
	_, _ = fmt.Fprintf(w, "[%s] %s\n", level.String(), msg)
}

// Complete marks the vertex finished. Fresh nodes are reported as cached.
func (v *Vertex) Complete(outcome domain.Outcome, err error) {
	switch outcome {
	case domain.OutcomeFresh:
		v.vertex.Cached()
		v.vertex.Done(nil)
	case domain.OutcomeSkipped:
		v.vertex.Done(errSkipped)
	case domain.OutcomeFailed:
		if err == nil {
			err = domain.ErrCommandFailed
		}
		v.vertex.Done(err)
	default:
		v.vertex.Done(err)
	}
}
