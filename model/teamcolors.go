package model

import "strings"

// TeamColors is the season team-color table used by the DriverList merge
// rule (spec.md §4.1) to fill a driver's TeamColor when the upstream diff
// supplies a team name but no colour. It is a static, embedded table rather
// than a network lookup, keeping the accumulator synchronous and pure
// (spec.md §5).
var TeamColors = map[string]string{
	"Red Bull Racing":  "3671C6",
	"Ferrari":          "E8002D",
	"Mercedes":         "27F4D2",
	"McLaren":          "FF8000",
	"Aston Martin":     "229971",
	"Alpine":           "FF87BC",
	"Williams":         "64C4FF",
	"RB":               "6692FF",
	"Kick Sauber":      "52E252",
	"Haas F1 Team":     "B6BABD",
}

// TeamColor returns the table entry for name, matching case-insensitively
// and tolerating surrounding whitespace. ok is false if the team is unknown.
func TeamColor(name string) (color string, ok bool) {
	name = strings.TrimSpace(name)
	for k, v := range TeamColors {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
