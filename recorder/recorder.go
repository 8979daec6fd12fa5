// Package recorder implements the Session Recorder of spec.md §4.8: it tees
// live messages to disk in a format from which playback reproduces the
// exact same snapshot and event multiset (spec.md §8 property 6).
package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/heytcass/f12mqtt/model"
	"github.com/heytcass/f12mqtt/telemetry/logging"
	"github.com/heytcass/f12mqtt/telemetry/metrics"
)

// Metadata is the session identity written to metadata.json.
type Metadata struct {
	SessionKey  string     `json:"sessionKey"`
	Year        int        `json:"year"`
	SessionName string     `json:"sessionName"`
	SessionType string     `json:"sessionType"`
	Circuit     string     `json:"circuit"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

// jsonlLine is one line of live.jsonl.
type jsonlLine struct {
	TS    time.Time `json:"ts"`
	Topic string    `json:"topic"`
	Data  any       `json:"data"`
}

// Recorder owns one session's append-only disk artefacts. stop() is
// idempotent; write() after stop() is a no-op, matching spec.md §7's
// recorder I/O failure policy (drop the write, keep recording alive).
type Recorder struct {
	mu      sync.Mutex
	dir     string
	meta    Metadata
	file    *os.File
	writer  *bufio.Writer
	stopped bool
	log     logging.Logger

	writeFailures metrics.Counter
}

// Start creates baseDir/{year}-{sessionKey}/, writes metadata.json and
// subscribe.json, and opens live.jsonl for appending. provider counts write
// failures (nil defaults to a no-op provider).
func Start(baseDir string, meta Metadata, initialState model.Snapshot, log logging.Logger, provider metrics.Provider) (*Recorder, error) {
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	dirName := fmt.Sprintf("%d-%s", meta.Year, meta.SessionKey)
	dir := filepath.Join(baseDir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metaBytes, 0o644); err != nil {
		return nil, fmt.Errorf("write metadata.json: %w", err)
	}

	subBytes, err := json.MarshalIndent(initialState, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal initial state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "subscribe.json"), subBytes, 0o644); err != nil {
		return nil, fmt.Errorf("write subscribe.json: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "live.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open live.jsonl: %w", err)
	}

	return &Recorder{
		dir: dir, meta: meta, file: f, writer: bufio.NewWriter(f), log: log,
		writeFailures: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "f12mqtt", Subsystem: "recorder", Name: "write_failures_total",
			Help: "live.jsonl write failures",
		}}),
	}, nil
}

// Write appends one entry to live.jsonl. A failure is dropped with a log
// entry rather than propagated, per spec.md §7: recording continues.
func (r *Recorder) Write(entry model.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	line := jsonlLine{TS: entry.Timestamp, Topic: entry.Topic, Data: entry.Data}
	data, err := json.Marshal(line)
	if err != nil {
		r.warn("recorder: marshal entry failed", err)
		return
	}
	if _, err := r.writer.Write(data); err != nil {
		r.warn("recorder: write entry failed", err)
		return
	}
	if _, err := r.writer.WriteString("\n"); err != nil {
		r.warn("recorder: write newline failed", err)
	}
}

func (r *Recorder) warn(msg string, err error) {
	r.writeFailures.Inc(1)
	if r.log != nil {
		r.log.WarnCtx(context.Background(), msg, "error", err)
	}
}

// Stop flushes and closes live.jsonl, and updates metadata.json with endTime.
// Idempotent.
func (r *Recorder) Stop(endTime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true
	if err := r.writer.Flush(); err != nil {
		return fmt.Errorf("flush live.jsonl: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close live.jsonl: %w", err)
	}
	r.meta.EndTime = &endTime
	metaBytes, err := json.MarshalIndent(r.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(r.dir, "metadata.json"), metaBytes, 0o644)
}

// Dir returns the recording's directory.
func (r *Recorder) Dir() string { return r.dir }
