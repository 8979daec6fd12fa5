// Package feed is the upstream feed client boundary of spec.md §1/§6.2: out
// of scope for behavior (the spec only fixes the topic list, the `.z`
// decompression contract, and the reconnect backoff), but still part of the
// repository as the adapter that turns a live hub-and-topic push connection
// into model.Entry values for the Pipeline.
//
// Grounded on the retrieval pack's toonknapen/accbroadcastingsdk UDP client
// for the callback-per-message adapter shape, adapted to a persistent
// WebSocket connection (the protocol spec.md §6.2 describes) using
// gorilla/websocket, the same transport library webtransport uses for its
// browser-facing fan-out.
package feed

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heytcass/f12mqtt/model"
	"github.com/heytcass/f12mqtt/telemetry/logging"
)

// Topics subscribed at connect time, per spec.md §6.2. CarData and Position
// arrive compressed (".z" suffix) and are decompressed before being handed
// to the Pipeline under their un-suffixed name.
var Topics = []string{
	"TimingData", "TrackStatus", "DriverList", "RaceControlMessages",
	"SessionInfo", "SessionData", "LapCount", "WeatherData", "TimingAppData",
	"ExtrapolatedClock", "Heartbeat", "CarData.z", "Position.z",
}

const (
	clientReconnectBackoff = 2 * time.Second
	serverReconnectWindow  = 5 * time.Second
)

// Observer receives adapter-level lifecycle notifications, per spec.md §7:
// adapter errors are reported via adapter-level observer channels rather
// than surfaced through the Pipeline.
type Observer interface {
	OnMessage(model.Entry)
	OnConnected()
	OnDisconnected()
	OnError(error)
}

// Adapter maintains one WebSocket connection to the upstream hub, retrying
// with a fixed backoff on disconnect until Close is called.
type Adapter struct {
	url      string
	observer Observer
	log      logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// New returns an Adapter targeting url (not yet connected).
func New(url string, observer Observer, log logging.Logger) *Adapter {
	return &Adapter{url: url, observer: observer, log: log}
}

// Run connects and reads messages until ctx is cancelled or Close is
// called, reconnecting with clientReconnectBackoff between attempts.
func (a *Adapter) Run(ctx context.Context) {
	for {
		if a.isClosed() {
			return
		}
		if err := a.connectAndRead(ctx); err != nil {
			if a.log != nil {
				a.log.WarnCtx(ctx, "feed: connection lost", "error", err)
			}
			a.observer.OnError(fmt.Errorf("feed: %w", err))
		}
		a.observer.OnDisconnected()
		if a.isClosed() {
			return
		}
		if a.log != nil {
			a.log.InfoCtx(ctx, "feed: reconnecting", "backoff", clientReconnectBackoff.String())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(clientReconnectBackoff):
		}
	}
}

func (a *Adapter) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	defer conn.Close()

	if err := a.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	a.observer.OnConnected()
	if a.log != nil {
		a.log.InfoCtx(ctx, "feed: connected", "url", a.url)
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		for _, entry := range decodeFrame(payload) {
			a.observer.OnMessage(entry)
		}
	}
}

func (a *Adapter) subscribe(conn *websocket.Conn) error {
	req := map[string]any{"method": "Subscribe", "arguments": [][]string{Topics}}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close marks the adapter closed and drops the active connection, if any.
// Run's reconnect loop observes the closed flag and exits.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

func (a *Adapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// frame is one hub push, a map of topic name to raw JSON payload.
type frame map[string]json.RawMessage

// decodeFrame parses one WebSocket text frame into zero or more entries,
// decompressing `.z`-suffixed topics per spec.md §6.2. Malformed frames
// yield no entries rather than an error, matching spec.md §7's malformed-
// diff tolerance — the wire framing itself is a Non-goal, so this parser
// is deliberately permissive rather than authoritative.
func decodeFrame(payload []byte) []model.Entry {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil
	}
	now := time.Now().UTC()
	var out []model.Entry
	for topic, raw := range f {
		name := topic
		var data any
		if strings.HasSuffix(topic, ".z") {
			name = strings.TrimSuffix(topic, ".z")
			decompressed, err := decompressZ(raw)
			if err != nil {
				continue
			}
			if err := json.Unmarshal(decompressed, &data); err != nil {
				continue
			}
		} else {
			if err := json.Unmarshal(raw, &data); err != nil {
				continue
			}
		}
		out = append(out, model.Entry{Timestamp: now, Topic: name, Data: data})
	}
	return out
}

// decompressZ reverses the base64+deflate encoding of `.z` topics.
func decompressZ(raw json.RawMessage) ([]byte, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, err
	}
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	return io.ReadAll(r)
}
