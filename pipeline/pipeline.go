// Package pipeline implements the central sequencer of spec.md §4.3: for
// each inbound message it snapshots, applies, detects, and emits — the same
// invariant whether the message originates from the live feed, a recorded
// file, or a historical-API replay.
//
// Grounded on the teacher's packages/engine/pipeline worker-pool pipeline,
// simplified to the single-writer-domain sequencer this spec calls for
// (spec.md §5: "exactly one logical task applies diffs").
package pipeline

import (
	"github.com/heytcass/f12mqtt/accumulator"
	"github.com/heytcass/f12mqtt/detect"
	"github.com/heytcass/f12mqtt/model"
	"github.com/heytcass/f12mqtt/telemetry/metrics"
)

// Update is the aggregate notification emitted once per processed message,
// after its per-event notifications, per spec.md §4.3 step 5.
type Update struct {
	Snapshot model.Snapshot
	Events   []model.Event
	Raw      model.Entry
}

// Observer receives Pipeline notifications. Implementations must not block:
// per spec.md §9, a slow UI observer may be wrapped in a bounded
// drop-oldest channel, but the recorder and publisher must see every call,
// so Pipeline itself calls observers synchronously and in order and leaves
// buffering policy to the observer.
type Observer interface {
	OnEvent(ev model.Event)
	OnUpdate(u Update)
}

// ObserverFunc set adapts two plain functions to Observer.
type ObserverFunc struct {
	Event  func(model.Event)
	Update func(Update)
}

func (f ObserverFunc) OnEvent(ev model.Event) {
	if f.Event != nil {
		f.Event(ev)
	}
}

func (f ObserverFunc) OnUpdate(u Update) {
	if f.Update != nil {
		f.Update(u)
	}
}

// Pipeline sequences one accumulator's diffs through detection and
// notification. It is not safe for concurrent Process calls — spec.md §5
// requires a single-writer domain per accumulator; callers serialise calls
// to Process themselves (the Playback Controller and the live ingest
// adapter each own their own Pipeline+Accumulator pair).
type Pipeline struct {
	acc       *accumulator.Accumulator
	observers []Observer

	eventsEmitted metrics.Counter
}

// New returns a Pipeline driving acc, counting emitted events by kind via
// provider (nil defaults to a no-op provider).
func New(acc *accumulator.Accumulator, provider metrics.Provider) *Pipeline {
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	return &Pipeline{
		acc: acc,
		eventsEmitted: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "f12mqtt", Subsystem: "pipeline", Name: "events_emitted_total",
			Help: "detector events emitted by kind", Labels: []string{"kind"},
		}}),
	}
}

// Subscribe registers an observer. Not safe to call concurrently with
// Process.
func (p *Pipeline) Subscribe(o Observer) {
	p.observers = append(p.observers, o)
}

// Process implements spec.md §4.3's five steps for one message.
func (p *Pipeline) Process(msg model.Entry) Update {
	prev := p.acc.Snapshot()
	p.acc.Apply(msg.Topic, msg.Data, msg.Timestamp)
	curr := p.acc.Get()
	events := detect.All(prev, curr)

	for _, ev := range events {
		p.eventsEmitted.Inc(1, string(ev.Kind))
		for _, o := range p.observers {
			o.OnEvent(ev)
		}
	}
	update := Update{Snapshot: curr.Clone(), Events: events, Raw: msg}
	for _, o := range p.observers {
		o.OnUpdate(update)
	}
	return update
}

// ApplyOnly applies msg without running detectors or notifying observers,
// used by seek (spec.md §4.5 step 5) to fast-forward the accumulator to a
// target index without producing spurious events.
func (p *Pipeline) ApplyOnly(msg model.Entry) {
	p.acc.Apply(msg.Topic, msg.Data, msg.Timestamp)
}

// Accumulator exposes the driven accumulator, e.g. so a caller can Reset or
// Seed it directly (load/seek in the Playback Controller).
func (p *Pipeline) Accumulator() *accumulator.Accumulator {
	return p.acc
}
