// Package config loads the process's YAML configuration file and watches it
// for changes, hot-reloading the subset of fields that are safe to change
// live. Grounded on the teacher's engine/internal/runtime hot-reload system,
// trimmed to last-writer-wins (spec.md §1's non-goal: no transaction model
// on the configuration store).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration. TopicPrefix and FeedURL are
// deliberately NOT reloaded live (SPEC_FULL.md §0.5): TopicPrefix determines
// already-published discovery topic names, so changing it without a restart
// would orphan entities on the bus; FeedURL is read once by the feed
// adapter at construction and there is no live reconnect-to-a-new-URL path.
type Config struct {
	RecordingsDir    string   `yaml:"recordingsDir"`
	BusBrokerURL     string   `yaml:"busBrokerURL"`
	TopicPrefix      string   `yaml:"topicPrefix"`
	FavouriteDrivers []string `yaml:"favouriteDrivers"`
	NotifierEnabled  bool     `yaml:"notifierEnabled"`
	ArchiveBaseURL   string   `yaml:"archiveBaseURL"`
	MetricsBackend   string   `yaml:"metricsBackend"` // "prom" (default), "otel", "noop"

	// FeedURL is the upstream hub WebSocket endpoint ModeLive connects to
	// (spec.md §6.2, which deliberately leaves the wire endpoint as an
	// operator-supplied boundary rather than a spec constant). Like
	// TopicPrefix, it is not reloaded live: changing it mid-process would
	// require tearing down and rebuilding the feed adapter, not just
	// updating its Config. Required (non-empty) whenever Mode is ModeLive.
	FeedURL string `yaml:"feedURL"`
}

// Defaults returns a Config with reasonable defaults. FeedURL is
// deliberately left empty: spec.md §6.2 fixes only the topic list, `.z`
// decompression, and reconnect backoff, not the endpoint, so every
// deployment must supply its own.
func Defaults() Config {
	return Config{
		RecordingsDir:  "./recordings",
		BusBrokerURL:   "tcp://localhost:1883",
		TopicPrefix:    "f12mqtt",
		MetricsBackend: "prom",
	}
}

// Manager owns the current Config and an optional fsnotify watcher.
type Manager struct {
	path string

	mu  sync.RWMutex
	cur Config

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Load reads path (if present) over Defaults() and returns a Manager seeded
// with the result. A missing file is not an error: Defaults() alone is used.
func Load(path string) (*Manager, error) {
	cfg := Defaults()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}
	return &Manager{path: path, cur: cfg}, nil
}

// Current returns a copy of the live configuration.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Watch starts an fsnotify watch on the config file's directory; on each
// write, it reloads the file and replaces every field except TopicPrefix and
// FeedURL, which keep their original values for the lifetime of the
// process. onChange, if non-nil, is called with the new Config after each
// successful reload.
func (m *Manager) Watch(onChange func(Config)) error {
	if m.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch dir %s: %w", dir, err)
	}
	m.watcher = w
	m.done = make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != m.path || ev.Op&fsnotify.Write == 0 {
					continue
				}
				m.reload(onChange)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-m.done:
				return
			}
		}
	}()
	return nil
}

func (m *Manager) reload(onChange func(Config)) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return
	}
	m.mu.Lock()
	next := m.cur
	prefix, feedURL := m.cur.TopicPrefix, m.cur.FeedURL
	if err := yaml.Unmarshal(data, &next); err != nil {
		m.mu.Unlock()
		return
	}
	next.TopicPrefix = prefix
	next.FeedURL = feedURL
	m.cur = next
	m.mu.Unlock()
	if onChange != nil {
		onChange(next)
	}
}

// Close stops the watcher, if running. Idempotent.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	close(m.done)
	err := m.watcher.Close()
	m.watcher = nil
	return err
}
