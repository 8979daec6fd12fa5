// Package tracing implements a minimal span tracker used only to correlate
// log records within one in-flight operation (ingest of one message, one
// playback tick). Unlike the teacher's general-purpose tracer — which
// chooses between a no-op and a real implementation so callers can disable
// tracing entirely — this service always wants a trace/span ID to stamp on
// its log lines, so there is no enabled/disabled tracer variant to select
// between: StartSpan is the only entry point.
package tracing

import (
	randcrypto "crypto/rand"
	"context"
	"encoding/hex"
	"sync"
	"time"
)

// SpanContext is the identifying and timing data of one span.
type SpanContext struct {
	TraceID, SpanID, ParentSpanID string
	Start, End                    time.Time
}

// Span is one in-flight traced operation.
type Span struct {
	ctx   SpanContext
	mu    sync.Mutex
	ended bool
	attrs map[string]any
}

// StartSpan begins a new span as a child of ctx's active span, if any, and
// returns a context carrying it alongside the span itself.
func StartSpan(ctx context.Context, _ string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	traceID := parent.ctx.TraceID
	if traceID == "" {
		traceID = newID(16)
	}
	sp := &Span{
		ctx:   SpanContext{TraceID: traceID, SpanID: newID(8), ParentSpanID: parent.ctx.SpanID, Start: time.Now()},
		attrs: make(map[string]any),
	}
	return context.WithValue(ctx, spanKey{}, sp), sp
}

// End marks the span finished. Idempotent.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ctx.End = time.Now()
		s.ended = true
	}
}

// SetAttribute records a key/value pair on the span.
func (s *Span) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Context returns the span's identifying data.
func (s *Span) Context() SpanContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// IsEnded reports whether End has been called.
func (s *Span) IsEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

type spanKey struct{}

// SpanFromContext returns the active span, or a zero-value span if none.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return &Span{}
	}
	if sp, ok := ctx.Value(spanKey{}).(*Span); ok {
		return sp
	}
	return &Span{}
}

// ExtractIDs returns the trace/span IDs of the context's active span, or
// empty strings if none is active.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sp := SpanFromContext(ctx)
	return sp.ctx.TraceID, sp.ctx.SpanID
}

func newID(n int) string {
	b := make([]byte, n)
	_, _ = randcrypto.Read(b)
	return hex.EncodeToString(b)
}
