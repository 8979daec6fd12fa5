// Package events implements a bounded, drop-on-full pub/sub bus used for the
// engine's own diagnostics (the live feed adapter's connect, disconnect and
// error events) — distinct from the domain Publisher's MQTT bus and from the
// Pipeline's non-dropping observer contract (spec.md §9's design note on the
// observer pattern: UI fan-out may drop under backpressure, the recorder and
// publisher must not).
//
// Ported near-verbatim from the teacher's engine/telemetry/events bus (the
// teacher's real diagnostic event bus, not packages/engine/telemetry/health,
// which is an unrelated TTL-cached probe evaluator), adapted to this
// domain's event categories and to internal/tracing's single StartSpan
// entry point in place of the teacher's enabled/disabled internal tracer.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heytcass/f12mqtt/internal/tracing"
	"github.com/heytcass/f12mqtt/telemetry/metrics"
)

const (
	CategoryIngest    = "ingest"
	CategoryPlayback  = "playback"
	CategoryPublisher = "publisher"
	CategoryRecorder  = "recorder"
	CategoryConfig    = "config_change"
	CategoryError     = "error"
)

// Event is one diagnostic event. TraceID/SpanID are filled in by PublishCtx
// from the calling context's active span, so a diagnostic event can be
// correlated with the log lines produced by the same operation.
type Event struct {
	Time     time.Time
	Category string
	Type     string
	Severity string
	TraceID  string
	SpanID   string
	Labels   map[string]string
	Fields   map[string]any
}

// Subscription is a live subscriber's handle.
type Subscription interface {
	C() <-chan Event
	Close() error
	ID() int64
}

// BusStats summarises bus activity.
type BusStats struct {
	Subscribers        int64
	Published          uint64
	Dropped            uint64
	PerSubscriberDrops map[int64]uint64
}

// Bus is a bounded multi-subscriber event bus.
type Bus interface {
	Publish(ev Event) error
	// PublishCtx enriches ev with the trace/span IDs of ctx's active span
	// (if any and if ev does not already carry its own) before publishing.
	PublishCtx(ctx context.Context, ev Event) error
	Subscribe(buffer int) (Subscription, error)
	Unsubscribe(sub Subscription) error
	Stats() BusStats
}

// NewBus returns a Bus with no subscribers, counting published/dropped
// events via provider (nil defaults to a no-op provider).
func NewBus(provider metrics.Provider) Bus {
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	b := &eventBus{subs: make(map[int64]*subscriber)}
	b.mPublished = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "f12mqtt", Subsystem: "events", Name: "published_total", Help: "diagnostic events published",
	}})
	b.mDropped = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "f12mqtt", Subsystem: "events", Name: "dropped_total", Help: "diagnostic events dropped for backpressure", Labels: []string{"category"},
	}})
	return b
}

type eventBus struct {
	mu        sync.RWMutex
	subs      map[int64]*subscriber
	nextID    int64
	published atomic.Uint64
	dropped   atomic.Uint64

	mPublished metrics.Counter
	mDropped   metrics.Counter
}

func (b *eventBus) Publish(ev Event) error {
	if ev.Category == "" {
		return errors.New("event missing category")
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()
	b.published.Add(1)
	b.mPublished.Inc(1)
	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			b.dropped.Add(1)
			b.mDropped.Inc(1, ev.Category)
		}
	}
	return nil
}

func (b *eventBus) PublishCtx(ctx context.Context, ev Event) error {
	if ev.TraceID == "" && ev.SpanID == "" {
		if traceID, spanID := tracing.ExtractIDs(ctx); traceID != "" || spanID != "" {
			ev.TraceID = traceID
			ev.SpanID = spanID
		}
	}
	return b.Publish(ev)
}

func (b *eventBus) Subscribe(buffer int) (Subscription, error) {
	if buffer <= 0 {
		buffer = 64
	}
	id := atomic.AddInt64(&b.nextID, 1)
	sub := &subscriber{id: id, ch: make(chan Event, buffer), bus: b}
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return sub, nil
}

func (b *eventBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	id := sub.ID()
	b.mu.Lock()
	s := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if s != nil {
		close(s.ch)
	}
	return nil
}

func (b *eventBus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := BusStats{Subscribers: int64(len(b.subs)), Published: b.published.Load(), Dropped: b.dropped.Load(), PerSubscriberDrops: make(map[int64]uint64)}
	for id, s := range b.subs {
		stats.PerSubscriberDrops[id] = s.dropped.Load()
	}
	return stats
}

type subscriber struct {
	id      int64
	ch      chan Event
	bus     *eventBus
	dropped atomic.Uint64
}

func (s *subscriber) C() <-chan Event { return s.ch }
func (s *subscriber) ID() int64       { return s.id }
func (s *subscriber) Close() error    { return s.bus.Unsubscribe(s) }
