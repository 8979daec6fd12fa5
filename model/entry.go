package model

import "time"

// Entry is one raw topic diff as it flows through the system: received live,
// persisted to a recording, or replayed during playback. Data is left as
// opaque JSON (map[string]any after decode, or a []byte before) so that
// Entry has no dependency on any particular topic's shape.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Topic     string    `json:"topic"`
	Data      any       `json:"data"`
}

// Message carries the same fields as Entry without JSON tags. The ingest
// adapter and the Pipeline exchange Entry values, not Message. A zero
// Timestamp, once applied as an Entry, leaves the snapshot's Timestamp
// unchanged.
type Message struct {
	Topic     string
	Data      any
	Timestamp time.Time
}
