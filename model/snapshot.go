// Package model defines the canonical shape of a session snapshot: the
// accumulated, owned view of a motorsport session that the rest of the
// system folds diffs into, detects events against, and projects onto a
// publish/subscribe bus.
package model

import "time"

// SessionInfo identifies the current session.
type SessionInfo struct {
	Name      string      `json:"name"`
	Type      SessionType `json:"type"`
	Circuit   string      `json:"circuit"`
	Country   string      `json:"country"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime,omitzero"`
}

// TrackStatus is the session's safety-car/flag state.
type TrackStatus struct {
	Flag    Flag   `json:"flag"`
	Message string `json:"message,omitempty"`
}

// LapCount is the race's current and total lap.
type LapCount struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Weather is the latest track weather reading.
type Weather struct {
	AirTemp       float64 `json:"airTemp"`
	TrackTemp     float64 `json:"trackTemp"`
	Humidity      float64 `json:"humidity"`
	Rainfall      bool    `json:"rainfall"`
	WindSpeed     float64 `json:"windSpeed"`
	WindDirection float64 `json:"windDirection"`
	Pressure      float64 `json:"pressure"`
}

// Driver is season-stable identity information about one competitor.
type Driver struct {
	DriverNumber string `json:"driverNumber"`
	Abbreviation string `json:"abbreviation"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	TeamName     string `json:"teamName"`
	TeamColor    string `json:"teamColor"`
	CountryCode  string `json:"countryCode"`
}

// Timing is one driver's live timing row.
type Timing struct {
	Position     int     `json:"position"`
	GapToLeader  string  `json:"gapToLeader"`
	Interval     string  `json:"interval"`
	LastLapTime  string  `json:"lastLapTime"`
	BestLapTime  string  `json:"bestLapTime"`
	Sector1      string  `json:"sector1"`
	Sector2      string  `json:"sector2"`
	Sector3      string  `json:"sector3"`
	InPit        bool    `json:"inPit"`
	Retired      bool    `json:"retired"`
	Stopped      bool    `json:"stopped"`
}

// Stint is a driver's current tyre stint.
type Stint struct {
	StintNumber int      `json:"stintNumber"`
	Compound    Compound `json:"compound"`
	TyreAge     int      `json:"tyreAge"`
	New         bool     `json:"new"`
}

// PitLaneTime is a completed pit-lane transit.
type PitLaneTime struct {
	Duration string `json:"duration"`
	Lap      int    `json:"lap"`
}

// TopThreeEntry is one row of the top-three board.
type TopThreeEntry struct {
	Position     int    `json:"position"`
	DriverNumber string `json:"driverNumber"`
	Abbreviation string `json:"abbreviation"`
	TeamColor    string `json:"teamColor"`
	LapTime      string `json:"lapTime"`
	GapToLeader  string `json:"gapToLeader"`
}

// RaceControlMessage is the latest message issued by race control.
type RaceControlMessage struct {
	UTC           time.Time        `json:"utc"`
	Message       string           `json:"message"`
	Category      string           `json:"category"`
	Flag          string           `json:"flag,omitempty"`
	Scope         RaceControlScope `json:"scope,omitempty"`
	Sector        int              `json:"sector,omitempty"`
	RacingNumber  string           `json:"racingNumber,omitempty"`
}

// Snapshot is the entire observable session at a point in time. It is an
// owned value: Clone produces an independent deep copy, and no method on
// Snapshot ever hands out a slice or map that aliases its internal storage.
type Snapshot struct {
	SessionInfo             *SessionInfo
	TrackStatus             TrackStatus
	LapCount                LapCount
	Weather                 *Weather
	Drivers                 map[string]Driver
	Timing                  map[string]Timing
	Stints                  map[string]Stint
	PitLaneTimes            map[string]PitLaneTime
	TopThree                []TopThreeEntry
	LatestRaceControlMessage *RaceControlMessage
	Timestamp               time.Time
}

// New returns a Snapshot initialised to the documented defaults.
func New() Snapshot {
	return Snapshot{
		TrackStatus:  TrackStatus{Flag: FlagGreen},
		Drivers:      make(map[string]Driver),
		Timing:       make(map[string]Timing),
		Stints:       make(map[string]Stint),
		PitLaneTimes: make(map[string]PitLaneTime),
		TopThree:     nil,
	}
}

// Clone returns a deep, fully independent copy of s. Mutating the clone, or
// s afterwards, never affects the other — this is the invariant the
// accumulator's snapshot() operation and every detector/observer boundary
// rely on (spec.md §3.2, §9).
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.SessionInfo != nil {
		info := *s.SessionInfo
		out.SessionInfo = &info
	}
	if s.Weather != nil {
		w := *s.Weather
		out.Weather = &w
	}
	if s.LatestRaceControlMessage != nil {
		m := *s.LatestRaceControlMessage
		out.LatestRaceControlMessage = &m
	}
	out.Drivers = cloneMap(s.Drivers)
	out.Timing = cloneMap(s.Timing)
	out.Stints = cloneMap(s.Stints)
	out.PitLaneTimes = cloneMap(s.PitLaneTimes)
	if s.TopThree != nil {
		out.TopThree = append([]TopThreeEntry(nil), s.TopThree...)
	}
	return out
}

func cloneMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return make(map[string]V)
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
