package detect

import "github.com/heytcass/f12mqtt/model"

// FlagChange emits one flag_change event iff the track flag differs between
// prev and curr. The message is taken from curr only (spec.md §4.2.1).
func FlagChange(prev, curr model.Snapshot) []model.Event {
	if prev.TrackStatus.Flag == curr.TrackStatus.Flag {
		return nil
	}
	return []model.Event{{
		Kind: model.EventFlagChange,
		FlagChange: &model.FlagChangeEvent{
			PreviousFlag: prev.TrackStatus.Flag,
			NewFlag:      curr.TrackStatus.Flag,
			Message:      curr.TrackStatus.Message,
		},
	}}
}
