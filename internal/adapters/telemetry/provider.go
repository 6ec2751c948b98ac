// Package telemetry traces build steps with OpenTelemetry.
package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	// InstrumentationName names the tracer kiln creates its spans with.
	InstrumentationName = "go.trai.ch/kiln"
	// OutputChunkSize is how much compiler output a span buffers before
	// emitting an "output" event.
	OutputChunkSize = 4096
)

// ErrSpanEnded is returned by Write after End.
var ErrSpanEnded = errors.New("span already ended")

// OTelTracer is a concrete implementation of ports.Tracer using OpenTelemetry.
type OTelTracer struct {
	tracer trace.Tracer
}

var _ ports.Tracer = (*OTelTracer)(nil)

// NewOTelTracer creates a tracer on the global provider.
func NewOTelTracer(name string) *OTelTracer {
	return NewOTelTracerWithProvider(otel.GetTracerProvider(), name)
}

// NewOTelTracerWithProvider creates a tracer on tp.
func NewOTelTracerWithProvider(tp trace.TracerProvider, name string) *OTelTracer {
	return &OTelTracer{tracer: tp.Tracer(name)}
}

// Start creates a new span carrying the attributes given through opts.
func (t *OTelTracer) Start(ctx context.Context, name string, opts ...ports.SpanOption) (context.Context, ports.Span) {
	cfg := &ports.SpanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, span := t.tracer.Start(ctx, name)
	s := &OTelSpan{span: span}
	for k, v := range cfg.Attributes {
		s.SetAttribute(k, v)
	}

	return ctx, s
}

// EmitPlan records the nodes about to be built on the span in ctx.
func (t *OTelTracer) EmitPlan(ctx context.Context, nodeNames []string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("plan_emitted", trace.WithAttributes(
			attribute.StringSlice("nodes", nodeNames),
			attribute.Int("count", len(nodeNames)),
		))
	}
}

// OTelSpan is a concrete implementation of ports.Span using OpenTelemetry.
// Written output is buffered and emitted as "output" events of whole lines,
// once OutputChunkSize is reached and again when the span ends.
type OTelSpan struct {
	span trace.Span

	mu    sync.Mutex
	out   bytes.Buffer
	ended bool
}

var _ ports.Span = (*OTelSpan)(nil)

// End emits pending output and completes the span.
func (s *OTelSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if s.out.Len() > 0 {
		s.addOutput(s.out.Bytes())
		s.out.Reset()
	}
	s.mu.Unlock()

	s.span.End()
}

// RecordError records err and marks the span failed.
func (s *OTelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetAttribute adds a key-value pair to the span.
func (s *OTelSpan) SetAttribute(key string, value any) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case []string:
		s.span.SetAttributes(attribute.StringSlice(key, v))
	case fmt.Stringer:
		s.span.SetAttributes(attribute.String(key, v.String()))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

// Write satisfies io.Writer by buffering p for the next output event.
func (s *OTelSpan) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return 0, ErrSpanEnded
	}
	s.out.Write(p)
	if s.out.Len() >= OutputChunkSize {
		s.flushLines()
	}
	return len(p), nil
}

// flushLines emits the buffered complete lines and keeps a trailing partial
// line for the next write. A buffer without any newline is emitted whole.
// The caller holds mu.
func (s *OTelSpan) flushLines() {
	data := s.out.Bytes()
	cut := bytes.LastIndexByte(data, '\n') + 1
	if cut == 0 {
		cut = len(data)
	}
	s.addOutput(data[:cut])
	s.out.Next(cut)
}

func (s *OTelSpan) addOutput(p []byte) {
	s.span.AddEvent("output", trace.WithAttributes(attribute.String("text", string(p))))
}
