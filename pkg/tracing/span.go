// Package tracing provides lightweight span trees that travel in a
// context. A sampled root span logs itself and its children through slog
// when finished; unsampled spans only measure.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"
)

type contextKey struct{}

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	Sampled   bool
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

// Sampler decides whether a new trace is logged.
type Sampler struct {
	rate float64
}

// NewSampler samples the given fraction of traces, clamped to [0, 1].
func NewSampler(rate float64) Sampler {
	return Sampler{rate: min(max(rate, 0), 1)}
}

// Sample reports whether the next trace should be logged.
func (s Sampler) Sample() bool {
	switch {
	case s.rate <= 0:
		return false
	case s.rate >= 1:
		return true
	default:
		return rand.Float64() < s.rate
	}
}

// StartSpan creates a new root span and stores it in the returned context.
func StartSpan(ctx context.Context, name, traceID string, sampled bool) (context.Context, *Span) {
	span := newSpan(name)
	span.TraceID = traceID
	span.Sampled = sampled
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan creates a child of the span in ctx. Without a parent the
// child is an unsampled root.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := newSpan(name)
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		child.Sampled = parent.Sampled
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

func newSpan(name string) *Span {
	return &Span{
		Name:      name,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
}

// End records the span's duration.
func (s *Span) End() {
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

// Finish ends a root span and, if it was sampled, logs the whole tree as
// a single record.
func (s *Span) Finish() {
	s.End()
	if s.Sampled {
		slog.Info("trace", "trace_id", s.TraceID, slog.Any("span", s.LogValue()))
	}
}

// LogValue renders the span and its children as nested groups.
func (s *Span) LogValue() slog.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs := make([]slog.Attr, 0, 2+len(s.Attrs)+len(s.Children))
	attrs = append(attrs,
		slog.String("name", s.Name),
		slog.Float64("ms", float64(s.Duration.Microseconds())/1000),
	)
	for k, v := range s.Attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	for i, child := range s.Children {
		attrs = append(attrs, slog.Any(strconv.Itoa(i), child.LogValue()))
	}
	return slog.GroupValue(attrs...)
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(contextKey{}).(*Span); ok {
		return span
	}
	return nil
}
