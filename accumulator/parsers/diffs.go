package parsers

import (
	"strconv"
	"time"

	"github.com/heytcass/f12mqtt/model"
)

// ParseTrackStatus decodes a TrackStatus diff. ok is false when the Status
// code is unrecognised; the caller must then leave TrackStatus unchanged.
func ParseTrackStatus(raw any) (flag model.Flag, message string, ok bool) {
	m, isMap := asMap(raw)
	if !isMap {
		return "", "", false
	}
	code := optString(m, "Status")
	if !code.Present {
		return "", "", false
	}
	flag, ok = model.ParseFlagCode(code.Value)
	if !ok {
		return "", "", false
	}
	message = optString(m, "Message").Or("")
	return flag, message, true
}

// DriverDiff is a partial update to one driver's identity record.
type DriverDiff struct {
	Abbreviation model.Optional[string]
	FirstName    model.Optional[string]
	LastName     model.Optional[string]
	TeamName     model.Optional[string]
	TeamColor    model.Optional[string]
	CountryCode  model.Optional[string]
}

// HasAbbreviation reports whether the diff carries enough to create a brand new
// driver record: spec.md §4.1 requires a racing number (the map key, checked
// by the caller) AND an abbreviation before a fresh entry is created.
func (d DriverDiff) HasAbbreviation() bool { return d.Abbreviation.Present }

// ParseDriverList decodes a DriverList diff into one DriverDiff per racing
// number. Entries lacking a recognisable shape are skipped.
func ParseDriverList(raw any) map[string]DriverDiff {
	out := map[string]DriverDiff{}
	m, ok := asMap(raw)
	if !ok {
		return out
	}
	for number, v := range m {
		entry, ok := asMap(v)
		if !ok {
			continue
		}
		out[number] = DriverDiff{
			Abbreviation: optString(entry, "Tla"),
			FirstName:    optString(entry, "FirstName"),
			LastName:     optString(entry, "LastName"),
			TeamName:     optString(entry, "TeamName"),
			TeamColor:    optString(entry, "TeamColour"),
			CountryCode:  optString(entry, "CountryCode"),
		}
	}
	return out
}

// TimingDiff is a partial update to one driver's timing row.
type TimingDiff struct {
	Position    model.Optional[int]
	GapToLeader model.Optional[string]
	Interval    model.Optional[string]
	LastLapTime model.Optional[string]
	BestLapTime model.Optional[string]
	Sector1     model.Optional[string]
	Sector2     model.Optional[string]
	Sector3     model.Optional[string]
	InPit       model.Optional[bool]
	Retired     model.Optional[bool]
	Stopped     model.Optional[bool]
}

// ParseTimingData decodes a TimingData diff's "Lines" into one TimingDiff per
// driver.
func ParseTimingData(raw any) map[string]TimingDiff {
	out := map[string]TimingDiff{}
	m, ok := asMap(raw)
	if !ok {
		return out
	}
	lines, ok := asMap(m["Lines"])
	if !ok {
		return out
	}
	for number, v := range lines {
		entry, ok := asMap(v)
		if !ok {
			continue
		}
		out[number] = TimingDiff{
			Position:    optInt(entry, "Position"),
			GapToLeader: optString(entry, "GapToLeader"),
			Interval:    nestedValue(entry, "IntervalToPositionAhead"),
			LastLapTime: nestedValue(entry, "LastLapTime"),
			BestLapTime: nestedValue(entry, "BestLapTime"),
			Sector1:     sectorValue(entry["Sectors"], 0),
			Sector2:     sectorValue(entry["Sectors"], 1),
			Sector3:     sectorValue(entry["Sectors"], 2),
			InPit:       optBool(entry, "InPit"),
			Retired:     optBool(entry, "Retired"),
			Stopped:     optBool(entry, "Stopped"),
		}
	}
	return out
}

// ParseTimingAppData decodes a TimingAppData diff, selecting for each driver
// the stint keyed by the highest numeric stint index, per spec.md §4.1.
func ParseTimingAppData(raw any) map[string]model.Stint {
	out := map[string]model.Stint{}
	m, ok := asMap(raw)
	if !ok {
		return out
	}
	lines, ok := asMap(m["Lines"])
	if !ok {
		return out
	}
	for number, v := range lines {
		entry, ok := asMap(v)
		if !ok {
			continue
		}
		stints, ok := asMap(entry["Stints"])
		if !ok {
			continue
		}
		bestKey := -1
		var bestStint map[string]any
		for k, sv := range stints {
			sub, ok := asMap(sv)
			if !ok {
				continue
			}
			idx, convErr := parseStintKey(k)
			if convErr != nil {
				continue
			}
			if idx > bestKey {
				bestKey = idx
				bestStint = sub
			}
		}
		if bestStint == nil {
			continue
		}
		out[number] = model.Stint{
			StintNumber: bestKey,
			Compound:    model.ParseCompound(optString(bestStint, "Compound").Or("")),
			TyreAge:     optInt(bestStint, "TotalLaps").Or(0),
			New:         optBool(bestStint, "New").Or(false),
		}
	}
	return out
}

func parseStintKey(k string) (int, error) {
	return strconv.Atoi(k)
}

// ParseSessionInfo builds a model.SessionInfo from a SessionInfo diff, with
// absent fields left at their zero values. ok is false only when raw is not
// a JSON object; an object with no recognised fields still yields ok=true.
func ParseSessionInfo(raw any) (*model.SessionInfo, bool) {
	m, ok := asMap(raw)
	if !ok {
		return nil, false
	}
	name := optString(m, "Name").Or("")
	typ := model.ParseSessionType(optString(m, "Type").Or(""))
	circuit := optString(m, "Circuit").Or("")
	country := optString(m, "Country").Or("")
	start := parseTime(optString(m, "StartTime").Or(""))
	end := parseTime(optString(m, "EndTime").Or(""))
	return &model.SessionInfo{
		Name: name, Type: typ, Circuit: circuit, Country: country,
		StartTime: start, EndTime: end,
	}, true
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ParseLapCount decodes a LapCount diff, defaulting a missing side to 0
// exactly as spec.md §4.1 requires.
func ParseLapCount(raw any) (model.LapCount, bool) {
	m, ok := asMap(raw)
	if !ok {
		return model.LapCount{}, false
	}
	return model.LapCount{
		Current: optInt(m, "CurrentLap").Or(0),
		Total:   optInt(m, "TotalLaps").Or(0),
	}, true
}

// WeatherDiff is a partial update to the weather reading.
type WeatherDiff struct {
	AirTemp       model.Optional[float64]
	TrackTemp     model.Optional[float64]
	Humidity      model.Optional[float64]
	Rainfall      model.Optional[bool]
	WindSpeed     model.Optional[float64]
	WindDirection model.Optional[float64]
	Pressure      model.Optional[float64]
}

// ParseWeatherData decodes a WeatherData diff with numeric-string coercion
// and Rainfall=="1" => true, per spec.md §4.1.
func ParseWeatherData(raw any) (WeatherDiff, bool) {
	m, ok := asMap(raw)
	if !ok {
		return WeatherDiff{}, false
	}
	rain := optString(m, "Rainfall")
	var rainOpt model.Optional[bool]
	if rain.Present {
		rainOpt = model.Some(rain.Value == "1" || rain.Value == "true")
	}
	return WeatherDiff{
		AirTemp:       optFloat(m, "AirTemp"),
		TrackTemp:     optFloat(m, "TrackTemp"),
		Humidity:      optFloat(m, "Humidity"),
		Rainfall:      rainOpt,
		WindSpeed:     optFloat(m, "WindSpeed"),
		WindDirection: optFloat(m, "WindDirection"),
		Pressure:      optFloat(m, "Pressure"),
	}, true
}

// ParsePitLaneTimeCollection decodes pit-lane times, skipping entries that
// lack a duration, per spec.md §4.1.
func ParsePitLaneTimeCollection(raw any) map[string]model.PitLaneTime {
	out := map[string]model.PitLaneTime{}
	m, ok := asMap(raw)
	if !ok {
		return out
	}
	times, ok := asMap(m["PitTimes"])
	if !ok {
		times = m
	}
	for number, v := range times {
		entry, ok := asMap(v)
		if !ok {
			continue
		}
		duration := optString(entry, "Duration")
		if !duration.Present {
			continue
		}
		out[number] = model.PitLaneTime{
			Duration: duration.Value,
			Lap:      optInt(entry, "Lap").Or(0),
		}
	}
	return out
}

// ParseTopThree decodes a TopThree diff. withheld is true when upstream
// signals the board should be cleared.
func ParseTopThree(raw any) (entries []model.TopThreeEntry, withheld bool) {
	m, ok := asMap(raw)
	if !ok {
		return nil, false
	}
	if w := optBool(m, "Withheld"); w.Present && w.Value {
		return nil, true
	}
	arr, ok := m["Lines"].([]any)
	if !ok {
		return nil, false
	}
	for _, v := range arr {
		entry, ok := asMap(v)
		if !ok {
			continue
		}
		entries = append(entries, model.TopThreeEntry{
			Position:     optInt(entry, "Position").Or(0),
			DriverNumber: optString(entry, "RacingNumber").Or(""),
			Abbreviation: optString(entry, "Tla").Or(""),
			TeamColor:    optString(entry, "TeamColour").Or(""),
			LapTime:      optString(entry, "LapTime").Or(""),
			GapToLeader:  optString(entry, "GapToLeader").Or(""),
		})
	}
	if len(entries) > 3 {
		entries = entries[:3]
	}
	return entries, false
}

// ParseRaceControlMessages decodes RaceControlMessages, selecting the
// highest-keyed entry. A present entry with an empty Message still updates
// the field per spec.md §4.1 & §9's open-question note.
func ParseRaceControlMessages(raw any) (*model.RaceControlMessage, bool) {
	m, ok := asMap(raw)
	if !ok {
		return nil, false
	}
	messages, ok := asMap(m["Messages"])
	if !ok {
		return nil, false
	}
	bestKey := -1
	var best map[string]any
	for k, v := range messages {
		idx, err := parseStintKey(k)
		if err != nil {
			continue
		}
		sub, ok := asMap(v)
		if !ok {
			continue
		}
		if idx > bestKey {
			bestKey = idx
			best = sub
		}
	}
	if best == nil {
		return nil, false
	}
	msg := optString(best, "Message")
	if !msg.Present {
		return nil, false
	}
	var scope model.RaceControlScope
	if s := optString(best, "Scope"); s.Present {
		scope = model.RaceControlScope(s.Value)
	}
	return &model.RaceControlMessage{
		UTC:          parseTime(optString(best, "Utc").Or("")),
		Message:      msg.Value,
		Category:     optString(best, "Category").Or(""),
		Flag:         optString(best, "Flag").Or(""),
		Scope:        scope,
		Sector:       optInt(best, "Sector").Or(0),
		RacingNumber: optString(best, "RacingNumber").Or(""),
	}, true
}
