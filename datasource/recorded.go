package datasource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/heytcass/f12mqtt/model"
)

type recordedLine struct {
	TS    time.Time `json:"ts"`
	Topic string    `json:"topic"`
	Data  any       `json:"data"`
}

// Recorded is a DataSource backed by one recorder.Start()-produced
// directory (metadata.json, subscribe.json, live.jsonl). Missing files are
// tolerated per spec.md §6.1: an empty timeline / nil initial state results
// rather than an error.
type Recorded struct {
	dir string

	entries []model.Entry
	initial *model.Snapshot
}

var _ DataSource = (*Recorded)(nil)

// OpenRecorded loads dir's three artefacts eagerly; spec.md §4.6's Stream
// then serves from the in-memory slice.
func OpenRecorded(dir string) (*Recorded, error) {
	r := &Recorded{dir: dir}

	if data, err := os.ReadFile(filepath.Join(dir, "subscribe.json")); err == nil {
		var snap model.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parse subscribe.json: %w", err)
		}
		r.initial = &snap
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read subscribe.json: %w", err)
	}

	f, err := os.Open(filepath.Join(dir, "live.jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("open live.jsonl: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var parsed recordedLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			// malformed line: skip rather than abort the whole replay,
			// consistent with spec.md §7's malformed-diff tolerance.
			continue
		}
		r.entries = append(r.entries, model.Entry{Timestamp: parsed.TS, Topic: parsed.Topic, Data: parsed.Data})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan live.jsonl: %w", err)
	}
	return r, nil
}

func (r *Recorded) InitialState(context.Context) (*model.Snapshot, error) {
	return r.initial, nil
}

func (r *Recorded) TimeRange(context.Context) (*TimeRange, error) {
	if len(r.entries) == 0 {
		return nil, nil
	}
	return &TimeRange{Start: r.entries[0].Timestamp, End: r.entries[len(r.entries)-1].Timestamp}, nil
}

func (r *Recorded) Stream(_ context.Context, from time.Time, _ float64) ([]model.Entry, error) {
	out := make([]model.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Timestamp.Before(from) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Recorded) Close() error { return nil }

// Metadata mirrors recorder.Metadata's on-disk shape so ListRecordings can
// surface it without importing the recorder package (keeping the data
// source independent of how the recorder is implemented).
type Metadata struct {
	SessionKey  string     `json:"sessionKey"`
	Year        int        `json:"year"`
	SessionName string     `json:"sessionName"`
	SessionType string     `json:"sessionType"`
	Circuit     string     `json:"circuit"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

// ListRecordings scans baseDir's immediate subdirectories for ones
// containing metadata.json, per spec.md §6.1.
func ListRecordings(baseDir string) ([]Metadata, error) {
	dirEntries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("read recordings dir: %w", err)
	}
	var out []Metadata
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		metaPath := filepath.Join(baseDir, de.Name(), "metadata.json")
		data, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}
		var m Metadata
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
