package playback_test

import (
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/f12mqtt/accumulator"
	"github.com/heytcass/f12mqtt/model"
	"github.com/heytcass/f12mqtt/pipeline"
	"github.com/heytcass/f12mqtt/playback"
	"github.com/heytcass/f12mqtt/telemetry/metrics"
	"github.com/heytcass/f12mqtt/timeline"
)

type capture struct {
	mu   sync.Mutex
	evs  []playback.Event
}

func (c *capture) OnPlaybackEvent(ev playback.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
}

func (c *capture) snapshot() []playback.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]playback.Event, len(c.evs))
	copy(out, c.evs)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func tinyTimeline(base time.Time) *timeline.Timeline {
	return timeline.New([]model.Entry{
		{Timestamp: base, Topic: "TrackStatus", Data: map[string]any{"Status": "1"}},
		{Timestamp: base.Add(5 * time.Millisecond), Topic: "LapCount", Data: map[string]any{"CurrentLap": float64(1)}},
		{Timestamp: base.Add(10 * time.Millisecond), Topic: "LapCount", Data: map[string]any{"CurrentLap": float64(2)}},
	})
}

func newController(cap *capture) *playback.Controller {
	pipe := pipeline.New(accumulator.New(nil, nil), nil)
	return playback.New(pipe, cap, nil)
}

func TestLoadEmitsLoadedAndSetsStatus(t *testing.T) {
	cap := &capture{}
	c := newController(cap)
	base := time.Now()
	c.Load(tinyTimeline(base), nil)

	assert.Equal(t, playback.StatusLoaded, c.Status())
	evs := cap.snapshot()
	require.Len(t, evs, 1)
	assert.Equal(t, "loaded", evs[0].Kind)
}

func TestPlayRunsToCompletionAndEmitsFinished(t *testing.T) {
	cap := &capture{}
	c := newController(cap)
	base := time.Now()
	c.Load(tinyTimeline(base), nil)
	c.Play()

	waitFor(t, func() bool { return c.Status() == playback.StatusStopped })

	kinds := make([]string, 0)
	for _, ev := range cap.snapshot() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, "finished")
	assert.Contains(t, kinds, "update")
}

func TestPauseStopsFurtherTicks(t *testing.T) {
	cap := &capture{}
	c := newController(cap)
	base := time.Now()
	c.Load(tinyTimeline(base.Add(time.Second)), nil)
	c.Play()
	c.Pause()

	assert.Equal(t, playback.StatusPaused, c.Status())
	countAfterPause := len(cap.snapshot())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, countAfterPause, len(cap.snapshot()), "no further events should be emitted while paused")
}

func TestStopResetsIndexAndIsIdempotent(t *testing.T) {
	cap := &capture{}
	c := newController(cap)
	base := time.Now()
	c.Load(tinyTimeline(base.Add(time.Second)), nil)
	c.Play()
	c.Stop()
	assert.Equal(t, playback.StatusStopped, c.Status())

	before := len(cap.snapshot())
	c.Stop()
	assert.Equal(t, before, len(cap.snapshot()), "stopping an already-stopped controller is a no-op")

	// Playing again starts over from the first entry.
	c.Play()
	c.Pause()
	var lastUpdate playback.Event
	for _, ev := range cap.snapshot() {
		if ev.Kind == "update" {
			lastUpdate = ev
		}
	}
	assert.Equal(t, "TrackStatus", lastUpdate.Entry.Topic)
}

func TestSeekFastForwardsWithoutSpuriousEvents(t *testing.T) {
	cap := &capture{}
	c := newController(cap)
	base := time.Now()
	c.Load(tinyTimeline(base), nil)

	c.Seek(base.Add(10 * time.Millisecond))
	assert.Equal(t, playback.StatusPaused, c.Status())

	evs := cap.snapshot()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, "seek", last.Kind)
	// Seek fast-forwards entries strictly before the target timestamp, so the
	// entry exactly at base+10ms (CurrentLap=2) is not yet applied.
	assert.Equal(t, 1, last.Snapshot.LapCount.Current)
}

func TestSeekResumesPlaybackIfWasPlaying(t *testing.T) {
	cap := &capture{}
	c := newController(cap)
	base := time.Now()
	wideTimeline := timeline.New([]model.Entry{
		{Timestamp: base, Topic: "LapCount", Data: map[string]any{"CurrentLap": float64(1)}},
		{Timestamp: base.Add(300 * time.Millisecond), Topic: "LapCount", Data: map[string]any{"CurrentLap": float64(2)}},
		{Timestamp: base.Add(600 * time.Millisecond), Topic: "LapCount", Data: map[string]any{"CurrentLap": float64(3)}},
	})
	c.Load(wideTimeline, nil)
	c.Play()
	waitFor(t, func() bool { return c.Status() == playback.StatusPlaying })

	c.Seek(base)
	// Seeking while playing pauses, fast-forwards, then resumes: the
	// controller must end up playing again rather than stuck paused.
	waitFor(t, func() bool { return c.Status() == playback.StatusPlaying })
}

func TestSetSpeedNonPositiveFallsBackToOne(t *testing.T) {
	cap := &capture{}
	c := newController(cap)
	c.Load(tinyTimeline(time.Now()), nil)
	c.SetSpeed(-5)
	c.SetSpeed(0)
	// No panic and status remains loaded: speed changes alone don't start playback.
	assert.Equal(t, playback.StatusLoaded, c.Status())
}

func TestPlayNoopWithoutTimelineLoaded(t *testing.T) {
	cap := &capture{}
	c := newController(cap)
	c.Play()
	assert.Equal(t, playback.StatusStopped, c.Status())
	assert.Empty(t, cap.snapshot())
}

func TestPlayIncrementsSchedulerTicksCounter(t *testing.T) {
	cap := &capture{}
	reg := prom.NewRegistry()
	provider := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{Registry: reg})
	pipe := pipeline.New(accumulator.New(nil, nil), nil)
	c := playback.New(pipe, cap, provider)

	base := time.Now()
	c.Load(tinyTimeline(base), nil)
	c.Play()
	waitFor(t, func() bool { return c.Status() == playback.StatusStopped })

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "f12mqtt_playback_scheduler_ticks_total" {
			continue
		}
		found = true
		assert.Equal(t, 4.0, mf.Metric[0].GetCounter().GetValue(), "one tick per timeline entry plus the finishing tick")
	}
	assert.True(t, found, "expected scheduler_ticks_total to be registered")
}
