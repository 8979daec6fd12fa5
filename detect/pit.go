package detect

import "github.com/heytcass/f12mqtt/model"

// PitStop emits one event per driver whose stint number increased, or whose
// first-ever stint is non-zero (spec.md §4.2.3: stint 0 with no prior record
// is the starting tyre set, not a stop).
func PitStop(prev, curr model.Snapshot) []model.Event {
	var events []model.Event
	for d, currStint := range curr.Stints {
		prevStint, had := prev.Stints[d]
		isPitStop := false
		if had {
			isPitStop = currStint.StintNumber > prevStint.StintNumber
		} else {
			isPitStop = currStint.StintNumber > 0
		}
		if !isPitStop {
			continue
		}
		driver := curr.Drivers[d]
		events = append(events, model.Event{
			Kind: model.EventPitStop,
			PitStop: &model.PitStopEvent{
				DriverNumber: d,
				Abbreviation: driver.Abbreviation,
				TeamColor:    driver.TeamColor,
				NewCompound:  currStint.Compound,
				StintNumber:  currStint.StintNumber,
			},
		})
	}
	return events
}
