// Package accumulator folds a stream of raw topic diffs into a canonical
// model.Snapshot, one topic at a time, per the merge rules of spec.md §4.1.
package accumulator

import (
	"context"
	"sync"
	"time"

	"github.com/heytcass/f12mqtt/accumulator/parsers"
	"github.com/heytcass/f12mqtt/model"
	"github.com/heytcass/f12mqtt/telemetry/logging"
	"github.com/heytcass/f12mqtt/telemetry/metrics"
)

// Accumulator owns a single model.Snapshot and applies diffs to it. It is
// owned by whichever component drives it — the Pipeline for live traffic,
// the Playback Controller for replay — and spec.md §5 requires exactly one
// driver at a time; Accumulator itself only guards its state with a mutex so
// that get()/snapshot() remain safe to call from an observer reading
// concurrently with the driver.
type Accumulator struct {
	mu   sync.RWMutex
	snap model.Snapshot

	log            logging.Logger
	messagesApplied metrics.Counter
}

// New returns an Accumulator initialised to model.New(), logging unmatched
// topics via log (nil is accepted: logging is then skipped) and counting
// applied diffs by topic via provider (nil defaults to a no-op provider).
func New(log logging.Logger, provider metrics.Provider) *Accumulator {
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	return &Accumulator{
		snap: model.New(),
		log:  log,
		messagesApplied: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "f12mqtt", Subsystem: "accumulator", Name: "messages_applied_total",
			Help: "diffs applied by topic", Labels: []string{"topic"},
		}}),
	}
}

// Apply merges one topic diff into the snapshot. Unknown topics and
// malformed payloads are no-ops except that Timestamp is updated when ts is
// non-zero, matching spec.md §4.1 and §7.
func (a *Accumulator) Apply(topic string, data any, ts time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messagesApplied.Inc(1, topic)
	if !ts.IsZero() {
		a.snap.Timestamp = ts
	}
	switch topic {
	case "TrackStatus":
		if flag, message, ok := parsers.ParseTrackStatus(data); ok {
			a.snap.TrackStatus = model.TrackStatus{Flag: flag, Message: message}
		}
	case "DriverList":
		a.mergeDriverList(parsers.ParseDriverList(data))
	case "TimingData":
		a.mergeTimingData(parsers.ParseTimingData(data))
	case "TimingAppData":
		a.mergeTimingAppData(parsers.ParseTimingAppData(data))
	case "SessionInfo":
		if info, ok := parsers.ParseSessionInfo(data); ok {
			a.snap.SessionInfo = info
		}
	case "LapCount":
		if lc, ok := parsers.ParseLapCount(data); ok {
			a.snap.LapCount = lc
		}
	case "WeatherData":
		if diff, ok := parsers.ParseWeatherData(data); ok {
			a.mergeWeather(diff)
		}
	case "PitLaneTimeCollection":
		a.mergePitLaneTimes(parsers.ParsePitLaneTimeCollection(data))
	case "TopThree":
		entries, withheld := parsers.ParseTopThree(data)
		if withheld {
			a.snap.TopThree = nil
		} else if entries != nil {
			a.snap.TopThree = entries
		}
	case "RaceControlMessages":
		if msg, ok := parsers.ParseRaceControlMessages(data); ok {
			a.snap.LatestRaceControlMessage = msg
		}
	default:
		// unrecognised topic: no-op beyond the timestamp update above.
		if a.log != nil {
			a.log.WarnCtx(context.Background(), "accumulator: unrecognised topic", "topic", topic)
		}
	}
}

func (a *Accumulator) mergeDriverList(diffs map[string]parsers.DriverDiff) {
	for number, diff := range diffs {
		existing, had := a.snap.Drivers[number]
		if !had && !diff.HasAbbreviation() {
			continue
		}
		existing.DriverNumber = number
		diff.Abbreviation.MergeInto(&existing.Abbreviation)
		diff.FirstName.MergeInto(&existing.FirstName)
		diff.LastName.MergeInto(&existing.LastName)
		diff.TeamName.MergeInto(&existing.TeamName)
		diff.CountryCode.MergeInto(&existing.CountryCode)
		if diff.TeamColor.Present {
			existing.TeamColor = diff.TeamColor.Value
		} else if existing.TeamColor == "" && existing.TeamName != "" {
			if color, ok := model.TeamColor(existing.TeamName); ok {
				existing.TeamColor = color
			}
		}
		a.snap.Drivers[number] = existing
	}
}

func (a *Accumulator) mergeTimingData(diffs map[string]parsers.TimingDiff) {
	for number, diff := range diffs {
		existing := a.snap.Timing[number]
		diff.Position.MergeInto(&existing.Position)
		diff.GapToLeader.MergeInto(&existing.GapToLeader)
		diff.Interval.MergeInto(&existing.Interval)
		diff.LastLapTime.MergeInto(&existing.LastLapTime)
		diff.BestLapTime.MergeInto(&existing.BestLapTime)
		diff.Sector1.MergeInto(&existing.Sector1)
		diff.Sector2.MergeInto(&existing.Sector2)
		diff.Sector3.MergeInto(&existing.Sector3)
		diff.InPit.MergeInto(&existing.InPit)
		diff.Retired.MergeInto(&existing.Retired)
		diff.Stopped.MergeInto(&existing.Stopped)
		a.snap.Timing[number] = existing
	}
}

func (a *Accumulator) mergeTimingAppData(stints map[string]model.Stint) {
	for number, stint := range stints {
		a.snap.Stints[number] = stint
	}
}

func (a *Accumulator) mergeWeather(diff parsers.WeatherDiff) {
	var w model.Weather
	if a.snap.Weather != nil {
		w = *a.snap.Weather
	}
	diff.AirTemp.MergeInto(&w.AirTemp)
	diff.TrackTemp.MergeInto(&w.TrackTemp)
	diff.Humidity.MergeInto(&w.Humidity)
	diff.Rainfall.MergeInto(&w.Rainfall)
	diff.WindSpeed.MergeInto(&w.WindSpeed)
	diff.WindDirection.MergeInto(&w.WindDirection)
	diff.Pressure.MergeInto(&w.Pressure)
	a.snap.Weather = &w
}

func (a *Accumulator) mergePitLaneTimes(times map[string]model.PitLaneTime) {
	for number, t := range times {
		a.snap.PitLaneTimes[number] = t
	}
}

// Get returns the current snapshot by read-only reference: callers must not
// mutate the returned value's maps/slices in place. Use Snapshot() for an
// owned, independently mutable copy.
func (a *Accumulator) Get() model.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// Snapshot returns a deep, fully independent copy of the current state.
func (a *Accumulator) Snapshot() model.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Clone()
}

// Reset re-initialises the accumulator to model.New().
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap = model.New()
}

// Seed replaces the snapshot outright with a deep copy of s. Used by the
// Playback Controller to load an initial recorded state (spec.md §4.5).
func (a *Accumulator) Seed(s model.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap = s.Clone()
}
