// Package session holds the per-invocation build state shared by the planner,
// the scheduler and the rules.
package session

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.trai.ch/kiln/internal/core/ports"
)

// Options configures a build session.
type Options struct {
	// Jobs is the worker pool size. Zero or less means runtime.NumCPU().
	Jobs    int
	Verbose bool
	Debug   bool
}

// Session is the context object of one build invocation. It is created per
// build and never shared across builds, so a failure in one build cannot
// leak into the next.
type Session struct {
	opts    Options
	aborted atomic.Bool
	console *Console
	started time.Time

	Logger    ports.Logger
	Tracer    ports.Tracer
	Telemetry ports.Telemetry
}

// New creates a session writing console output to out.
func New(out io.Writer, logger ports.Logger, tracer ports.Tracer, telemetry ports.Telemetry, opts Options) *Session {
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	return &Session{
		opts:      opts,
		console:   NewConsole(out),
		started:   time.Now(),
		Logger:    logger,
		Tracer:    tracer,
		Telemetry: telemetry,
	}
}

// Abort sets the abort flag. The flag is never cleared.
func (s *Session) Abort() {
	s.aborted.Store(true)
}

// Aborted reports whether any node failed or the build was interrupted.
func (s *Session) Aborted() bool {
	return s.aborted.Load()
}

// Jobs returns the worker pool size.
func (s *Session) Jobs() int {
	return s.opts.Jobs
}

// Verbose reports whether every executed command should be echoed.
func (s *Session) Verbose() bool {
	return s.opts.Verbose
}

// Debug reports whether the dependency tree is printed before building.
func (s *Session) Debug() bool {
	return s.opts.Debug
}

// Console returns the serialized console.
func (s *Session) Console() *Console {
	return s.console
}

// Elapsed returns the time since the session started.
func (s *Session) Elapsed() time.Duration {
	return time.Since(s.started)
}

// Console serializes writes from concurrent workers so lines never interleave.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole wraps w. A nil writer means os.Stdout.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

// Write implements io.Writer.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

// Printf writes one formatted block atomically.
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, format, args...)
}

// FormatElapsed renders a duration the way the build summary prints it: "2m 5s".
func FormatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
