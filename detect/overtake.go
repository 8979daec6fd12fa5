package detect

import "github.com/heytcass/f12mqtt/model"

var overtakeSuppressedFlags = map[model.Flag]struct{}{
	model.FlagSC:        {},
	model.FlagVSC:       {},
	model.FlagVSCEnding: {},
	model.FlagRed:       {},
}

// Overtake emits one event per (overtaking, overtaken) pair detected between
// prev and curr, per the predicate in spec.md §4.2.2. The predicate's
// strict/non-strict inequality mix is preserved exactly as specified; see
// spec.md §9's open question about tightening it.
func Overtake(prev, curr model.Snapshot) []model.Event {
	if _, suppressed := overtakeSuppressedFlags[curr.TrackStatus.Flag]; suppressed {
		return nil
	}
	var events []model.Event
	for d, currD := range curr.Timing {
		prevD, hadPrev := prev.Timing[d]
		if !hadPrev {
			continue
		}
		if currD.Position >= prevD.Position {
			continue
		}
		if currD.InPit {
			continue
		}
		for o, currO := range curr.Timing {
			if o == d {
				continue
			}
			prevO, hadPrevO := prev.Timing[o]
			if !hadPrevO {
				continue
			}
			if !(prevO.Position < prevD.Position && currO.Position > currD.Position && prevO.Position >= currD.Position) {
				continue
			}
			if prevO.InPit || currO.InPit || currO.Retired {
				continue
			}
			events = append(events, model.Event{
				Kind: model.EventOvertake,
				Overtake: &model.OvertakeEvent{
					OvertakingDriver:       d,
					OvertakenDriver:        o,
					NewPosition:            currD.Position,
					OvertakingAbbreviation: curr.Drivers[d].Abbreviation,
					OvertakenAbbreviation:  curr.Drivers[o].Abbreviation,
					OvertakingTeamColor:    curr.Drivers[d].TeamColor,
					OvertakenTeamColor:     curr.Drivers[o].TeamColor,
				},
			})
		}
	}
	return events
}
