// Package timeline provides an immutable, sorted, binary-searchable vector
// of model.Entry as described in spec.md §4.4.
package timeline

import (
	"sort"
	"time"

	"github.com/heytcass/f12mqtt/model"
)

// Timeline is immutable after construction: no method mutates its backing
// slice, and New copies its input so the caller's slice can still change
// without disturbing the Timeline.
type Timeline struct {
	entries []model.Entry
}

// New builds a Timeline from entries, stably sorted by Timestamp. Since
// timestamps are fixed-width ISO-8601 UTC (spec.md §9), lexicographic and
// chronological order coincide, but sorting is done on time.Time directly
// for clarity.
func New(entries []model.Entry) *Timeline {
	sorted := make([]model.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &Timeline{entries: sorted}
}

// Len returns the number of entries.
func (t *Timeline) Len() int { return len(t.entries) }

// At returns the entry at index i. Callers must ensure 0 <= i < Len().
func (t *Timeline) At(i int) model.Entry { return t.entries[i] }

// FindIndex returns the index of the first entry with Timestamp >= ts: 0 if
// ts is before the first entry (or the timeline is empty), Len() if ts is
// after the last entry.
func (t *Timeline) FindIndex(ts time.Time) int {
	return sort.Search(len(t.entries), func(i int) bool {
		return !t.entries[i].Timestamp.Before(ts)
	})
}

// Range returns a copy of the entries with Timestamp in [a, b], inclusive of
// both ends.
func (t *Timeline) Range(a, b time.Time) []model.Entry {
	start := sort.Search(len(t.entries), func(i int) bool {
		return !t.entries[i].Timestamp.Before(a)
	})
	end := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Timestamp.After(b)
	})
	if start >= end {
		return nil
	}
	out := make([]model.Entry, end-start)
	copy(out, t.entries[start:end])
	return out
}
