// Package playback implements the Playback Controller of spec.md §4.5: a
// cooperative, single-threaded scheduler that drives a Pipeline from a
// Timeline with seek, pause, and variable speed, reproducing the exact
// causal ordering live traffic would produce.
//
// Grounded on the teacher's packages/engine/pipeline worker-pool lifecycle
// idioms (start/stop/drain discipline) adapted to a single cooperative
// scheduler instead of a worker pool, since spec.md §5 requires exactly one
// driver per accumulator.
package playback

import (
	"sync"
	"time"

	"github.com/heytcass/f12mqtt/model"
	"github.com/heytcass/f12mqtt/pipeline"
	"github.com/heytcass/f12mqtt/telemetry/metrics"
	"github.com/heytcass/f12mqtt/timeline"
)

// Status is the controller's state machine value.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusLoaded  Status = "loaded"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

// maxTickDelay bounds the scheduler's inter-entry wait so a large gap in
// recorded data (a red flag stoppage, a session break) does not stall
// playback for real wall-clock hours (spec.md §4.5's scheduleNext).
const maxTickDelay = 5000 * time.Millisecond

// Event is the playback observer surface of spec.md §4.5.
type Event struct {
	Kind     string // loaded, stateChange, update, seek, finished
	Snapshot model.Snapshot
	Events   []model.Event
	Entry    model.Entry
	Status   Status
}

// Observer receives Controller notifications, delivered synchronously on
// the goroutine that drives the scheduler.
type Observer interface {
	OnPlaybackEvent(ev Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnPlaybackEvent(ev Event) { f(ev) }

// Controller drives a Pipeline from a Timeline. Not safe for concurrent use
// from multiple goroutines beyond the scheduler's own timer callback, which
// Controller serialises internally via its mutex.
type Controller struct {
	mu sync.Mutex

	pipe     *pipeline.Pipeline
	tl       *timeline.Timeline
	initial  model.Snapshot
	status   Status
	index    int
	speed    float64
	observer Observer

	generation int
	timer      *time.Timer

	schedulerTicks metrics.Counter
}

// New returns a Controller with no timeline loaded, driving pipe, counting
// scheduler ticks via provider (nil defaults to a no-op provider).
func New(pipe *pipeline.Pipeline, observer Observer, provider metrics.Provider) *Controller {
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	return &Controller{
		pipe: pipe, status: StatusStopped, speed: 1, observer: observer,
		schedulerTicks: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "f12mqtt", Subsystem: "playback", Name: "scheduler_ticks_total",
			Help: "scheduleNext invocations that advanced or finished playback",
		}}),
	}
}

// Status returns the controller's current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Load stops current playback, seeds the accumulator with a deep copy of
// initialState (or defaults), sets currentIndex=0, and emits loaded.
func (c *Controller) Load(tl *timeline.Timeline, initialState *model.Snapshot) {
	c.mu.Lock()
	c.cancelTimerLocked()
	c.tl = tl
	if initialState != nil {
		c.initial = initialState.Clone()
	} else {
		c.initial = model.New()
	}
	c.pipe.Accumulator().Seed(c.initial)
	c.index = 0
	c.status = StatusLoaded
	snap := c.pipe.Accumulator().Snapshot()
	c.mu.Unlock()

	c.notify(Event{Kind: "loaded", Snapshot: snap, Status: StatusLoaded})
}

// Play transitions loaded/paused -> playing and schedules the next tick. A
// no-op if there is no timeline loaded or playback is already in progress.
func (c *Controller) Play() {
	c.mu.Lock()
	if c.tl == nil || c.status == StatusPlaying {
		c.mu.Unlock()
		return
	}
	c.status = StatusPlaying
	c.mu.Unlock()

	c.notify(Event{Kind: "stateChange", Status: StatusPlaying})
	c.scheduleNext()
}

// Pause cancels the pending scheduled tick and transitions to paused.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.status != StatusPlaying {
		c.mu.Unlock()
		return
	}
	c.cancelTimerLocked()
	c.status = StatusPaused
	c.mu.Unlock()

	c.notify(Event{Kind: "stateChange", Status: StatusPaused})
}

// Stop pauses and resets currentIndex to 0.
func (c *Controller) Stop() {
	c.mu.Lock()
	wasTerminal := c.status == StatusStopped
	c.cancelTimerLocked()
	c.index = 0
	c.status = StatusStopped
	c.mu.Unlock()

	if wasTerminal {
		// spec.md §8 property 8: stop() on an already-stopped controller is a
		// no-op beyond what cancelTimerLocked already guarantees.
		return
	}
	c.notify(Event{Kind: "stateChange", Status: StatusStopped})
}

// SetSpeed sets the playback speed multiplier. Non-positive values fall
// back to 1. If currently playing, the pending tick is rescheduled at the
// new rate.
func (c *Controller) SetSpeed(s float64) {
	c.mu.Lock()
	if s <= 0 {
		s = 1
	}
	c.speed = s
	playing := c.status == StatusPlaying
	if playing {
		c.cancelTimerLocked()
	}
	c.mu.Unlock()

	if playing {
		c.scheduleNext()
	}
}

// Seek implements spec.md §4.5's seek contract: pause, reset the
// accumulator to a fresh copy of the initial state, fast-forward through
// [0, target) without detection or notification, then resume if it was
// playing.
func (c *Controller) Seek(t time.Time) {
	c.mu.Lock()
	wasPlaying := c.status == StatusPlaying
	c.cancelTimerLocked()
	if c.tl == nil {
		c.mu.Unlock()
		return
	}
	c.pipe.Accumulator().Seed(c.initial)
	target := c.tl.FindIndex(t)
	for i := 0; i < target; i++ {
		c.pipe.ApplyOnly(c.tl.At(i))
	}
	c.index = target
	c.status = StatusPaused
	snap := c.pipe.Accumulator().Snapshot()
	c.mu.Unlock()

	c.notify(Event{Kind: "seek", Snapshot: snap, Status: StatusPaused})

	if wasPlaying {
		c.Play()
	}
}

// scheduleNext implements spec.md §4.5's scheduler, starting a tick under
// the current generation counter.
func (c *Controller) scheduleNext() {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.tick(gen)
}

// tick runs one scheduler step for generation gen. Every timer it arms
// carries the same gen, so a timer fired after a newer
// pause/stop/seek/setSpeed is a no-op (spec.md §9's cancellation discipline).
func (c *Controller) tick(gen int) {
	c.mu.Lock()
	if gen != c.generation || c.status != StatusPlaying {
		c.mu.Unlock()
		return
	}
	c.schedulerTicks.Inc(1)
	if c.index >= c.tl.Len() {
		c.status = StatusStopped
		c.mu.Unlock()
		c.notify(Event{Kind: "finished", Status: StatusStopped})
		return
	}
	entry := c.tl.At(c.index)
	speed := c.speed
	c.mu.Unlock()

	update := c.pipe.Process(entry)
	c.notify(Event{Kind: "update", Snapshot: update.Snapshot, Events: update.Events, Entry: entry, Status: StatusPlaying})

	c.mu.Lock()
	if gen != c.generation || c.status != StatusPlaying {
		c.mu.Unlock()
		return
	}
	c.index++
	var delay time.Duration
	hasNext := c.index < c.tl.Len()
	if hasNext {
		next := c.tl.At(c.index)
		delay = time.Duration(float64(next.Timestamp.Sub(entry.Timestamp)) / speed)
		if delay < 0 {
			delay = 0
		}
		if delay > maxTickDelay {
			delay = maxTickDelay
		}
	}
	c.timer = time.AfterFunc(delay, func() { c.tick(gen) })
	c.mu.Unlock()
}

// cancelTimerLocked must be called with c.mu held. It stops any pending
// timer and bumps the generation counter so an in-flight callback that
// already passed the gen check becomes inert at its next lock acquisition.
func (c *Controller) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
}

func (c *Controller) notify(ev Event) {
	if c.observer != nil {
		c.observer.OnPlaybackEvent(ev)
	}
}
