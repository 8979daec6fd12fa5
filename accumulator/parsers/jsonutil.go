// Package parsers decodes raw upstream topic payloads (already JSON-decoded
// into map[string]any by the ingest adapter) into partial diff structures
// using model.Optional so the accumulator can tell "absent" from "zero".
//
// The on-wire framing of the upstream feed is explicitly out of scope
// (spec.md §1 Non-goals); the field names below follow the shape documented
// in spec.md §3 and §4.1 and are deliberately tolerant of missing or
// malformed fields — a parser never panics, it returns a zero-value partial
// result on anything it cannot make sense of.
package parsers

import (
	"strconv"

	"github.com/heytcass/f12mqtt/model"
)

func asMap(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	return m, ok
}

func optString(m map[string]any, key string) model.Optional[string] {
	v, ok := m[key]
	if !ok || v == nil {
		return model.Optional[string]{}
	}
	switch t := v.(type) {
	case string:
		return model.Some(t)
	case float64:
		return model.Some(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		return model.Some(strconv.FormatBool(t))
	default:
		return model.Optional[string]{}
	}
}

func optBool(m map[string]any, key string) model.Optional[bool] {
	v, ok := m[key]
	if !ok || v == nil {
		return model.Optional[bool]{}
	}
	switch t := v.(type) {
	case bool:
		return model.Some(t)
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return model.Optional[bool]{}
		}
		return model.Some(b)
	case float64:
		return model.Some(t != 0)
	default:
		return model.Optional[bool]{}
	}
}

func optInt(m map[string]any, key string) model.Optional[int] {
	v, ok := m[key]
	if !ok || v == nil {
		return model.Optional[int]{}
	}
	switch t := v.(type) {
	case float64:
		return model.Some(int(t))
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return model.Optional[int]{}
		}
		return model.Some(n)
	default:
		return model.Optional[int]{}
	}
}

func optFloat(m map[string]any, key string) model.Optional[float64] {
	v, ok := m[key]
	if !ok || v == nil {
		return model.Optional[float64]{}
	}
	switch t := v.(type) {
	case float64:
		return model.Some(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return model.Optional[float64]{}
		}
		return model.Some(f)
	default:
		return model.Optional[float64]{}
	}
}

// nestedValue reads m[key].Value, the upstream idiom for a field that
// carries its own per-driver value under a "Value" wrapper (sector times,
// intervals). Absent or malformed input yields an absent Optional.
func nestedValue(m map[string]any, key string) model.Optional[string] {
	sub, ok := m[key].(map[string]any)
	if !ok {
		return model.Optional[string]{}
	}
	return optString(sub, "Value")
}

func sectorValue(sectors any, idx int) model.Optional[string] {
	arr, ok := sectors.([]any)
	if !ok || idx >= len(arr) {
		return model.Optional[string]{}
	}
	sub, ok := arr[idx].(map[string]any)
	if !ok {
		return model.Optional[string]{}
	}
	return optString(sub, "Value")
}
