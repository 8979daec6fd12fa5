package detect

import "github.com/heytcass/f12mqtt/model"

// WeatherChange emits a weather_change event iff curr.Weather is present and
// its Rainfall differs from prev's (a nil prev.Weather is treated as
// Rainfall=false), per spec.md §4.2.4.
func WeatherChange(prev, curr model.Snapshot) []model.Event {
	if curr.Weather == nil {
		return nil
	}
	prevRainfall := false
	if prev.Weather != nil {
		prevRainfall = prev.Weather.Rainfall
	}
	if prevRainfall == curr.Weather.Rainfall {
		return nil
	}
	return []model.Event{{
		Kind: model.EventWeatherChange,
		WeatherChange: &model.WeatherChangeEvent{
			PreviousRainfall: prevRainfall,
			NewRainfall:      curr.Weather.Rainfall,
		},
	}}
}
