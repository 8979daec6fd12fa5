// Package datasource implements spec.md §4.6's DataSource contract: a
// common abstraction over a recorded session directory and the historical
// REST archive, both shaped into the same (timestamp, topic, data) triples
// the Pipeline consumes.
package datasource

import (
	"context"
	"time"

	"github.com/heytcass/f12mqtt/model"
)

// TimeRange is a data source's reported span, if known.
type TimeRange struct {
	Start, End time.Time
}

// DataSource is the common contract both implementations satisfy.
type DataSource interface {
	// InitialState returns the state to seed the accumulator with, or nil
	// if the source has none.
	InitialState(ctx context.Context) (*model.Snapshot, error)
	// TimeRange returns the source's span, or nil if unknown.
	TimeRange(ctx context.Context) (*TimeRange, error)
	// Stream returns every entry at or after from, in timestamp order.
	// speedMultiplier is accepted for interface symmetry with spec.md §4.6's
	// async-sequence contract; this package returns the full entry slice
	// and leaves wall-clock pacing to the Playback Controller's scheduler,
	// which already reproduces the proportional delay (spec.md §4.5).
	Stream(ctx context.Context, from time.Time, speedMultiplier float64) ([]model.Entry, error)
	Close() error
}
