// Package detect implements the four pure event detectors of spec.md §4.2
// and the aggregator that runs them in the fixed order: flag, overtake, pit,
// weather. Every Detector is a pure function of (prev, curr) — no I/O, no
// randomness, no shared state — so that spec.md §8's detector-purity
// property holds by construction.
package detect

import "github.com/heytcass/f12mqtt/model"

// Detector compares two snapshots and returns the events that transition
// implies. Implementations must not mutate prev or curr.
type Detector func(prev, curr model.Snapshot) []model.Event

// All runs every detector in spec order and concatenates their output.
func All(prev, curr model.Snapshot) []model.Event {
	detectors := []Detector{FlagChange, Overtake, PitStop, WeatherChange}
	var events []model.Event
	for _, d := range detectors {
		events = append(events, d(prev, curr)...)
	}
	return events
}
