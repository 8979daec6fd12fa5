package model

// Flag is the session's global safety state. An unrecognised upstream code
// must never produce a new Flag value: ParseFlagCode reports it as
// unrecognised and the caller keeps the current TrackStatus.
type Flag string

const (
	FlagGreen      Flag = "green"
	FlagYellow     Flag = "yellow"
	FlagSC         Flag = "sc"
	FlagVSC        Flag = "vsc"
	FlagVSCEnding  Flag = "vsc_ending"
	FlagRed        Flag = "red"
	FlagChequered  Flag = "chequered"
)

// flagCodes maps the upstream TrackStatus.Status code to a Flag. Codes not
// present here are unknown and must leave TrackStatus unchanged.
var flagCodes = map[string]Flag{
	"1": FlagGreen,
	"2": FlagYellow,
	"4": FlagSC,
	"5": FlagRed,
	"6": FlagVSC,
	"7": FlagVSCEnding,
}

// ParseFlagCode resolves an upstream TrackStatus code to a Flag. ok is false
// for unrecognised codes, in which case the caller must not replace the
// current TrackStatus.
func ParseFlagCode(code string) (f Flag, ok bool) {
	f, ok = flagCodes[code]
	return f, ok
}

// SessionType enumerates the kinds of session the upstream feed reports.
type SessionType string

const (
	SessionRace              SessionType = "Race"
	SessionQualifying        SessionType = "Qualifying"
	SessionPractice          SessionType = "Practice"
	SessionSprint            SessionType = "Sprint"
	SessionSprintQualifying  SessionType = "SprintQualifying"
)

// ParseSessionType maps the upstream session-type string onto SessionType.
// "Sprint Shootout" maps to SprintQualifying; anything unrecognised falls
// back to Practice, per spec.md §4.1.
func ParseSessionType(raw string) SessionType {
	switch raw {
	case "Race":
		return SessionRace
	case "Qualifying":
		return SessionQualifying
	case "Practice":
		return SessionPractice
	case "Sprint":
		return SessionSprint
	case "Sprint Shootout", "SprintQualifying":
		return SessionSprintQualifying
	default:
		return SessionPractice
	}
}

// Compound enumerates tyre compounds. Unrecognised upstream values parse to
// CompoundUnknown rather than failing the merge.
type Compound string

const (
	CompoundSoft         Compound = "SOFT"
	CompoundMedium       Compound = "MEDIUM"
	CompoundHard         Compound = "HARD"
	CompoundIntermediate Compound = "INTERMEDIATE"
	CompoundWet          Compound = "WET"
	CompoundUnknown      Compound = "UNKNOWN"
)

var validCompounds = map[Compound]struct{}{
	CompoundSoft: {}, CompoundMedium: {}, CompoundHard: {},
	CompoundIntermediate: {}, CompoundWet: {}, CompoundUnknown: {},
}

// ParseCompound maps an upstream compound string to a Compound, defaulting
// to CompoundUnknown for anything unrecognised.
func ParseCompound(raw string) Compound {
	c := Compound(raw)
	if _, ok := validCompounds[c]; ok {
		return c
	}
	return CompoundUnknown
}

// RaceControlScope enumerates the scope of a race control message.
type RaceControlScope string

const (
	ScopeTrack  RaceControlScope = "Track"
	ScopeSector RaceControlScope = "Sector"
	ScopeDriver RaceControlScope = "Driver"
)

// DriverStatus is the publisher-facing status projection (spec.md §4.7).
type DriverStatus string

const (
	DriverRacing   DriverStatus = "racing"
	DriverInPit    DriverStatus = "pit"
	DriverRetired  DriverStatus = "retired"
)
