package webtransport_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/f12mqtt/playback"
	"github.com/heytcass/f12mqtt/webtransport"
)

type fakeController struct {
	mu       sync.Mutex
	played   int
	paused   int
	stopped  int
	speed    float64
	sought   time.Time
	status   playback.Status
}

func newFakeController() *fakeController {
	return &fakeController{status: playback.StatusStopped}
}

func (c *fakeController) Play()  { c.mu.Lock(); c.played++; c.status = playback.StatusPlaying; c.mu.Unlock() }
func (c *fakeController) Pause() { c.mu.Lock(); c.paused++; c.status = playback.StatusPaused; c.mu.Unlock() }
func (c *fakeController) Stop()  { c.mu.Lock(); c.stopped++; c.status = playback.StatusStopped; c.mu.Unlock() }
func (c *fakeController) SetSpeed(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = v
}
func (c *fakeController) Seek(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sought = t
}
func (c *fakeController) Status() playback.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func postCommand(t *testing.T, srv *httptest.Server, command, value string) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]string{"command": command, "value": value})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/playback/command", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHandleCommandPlayPauseStop(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(webtransport.NewServer(ctrl).Router())
	defer srv.Close()

	resp := postCommand(t, srv, "play", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = postCommand(t, srv, "pause", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = postCommand(t, srv, "stop", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.Equal(t, 1, ctrl.played)
	assert.Equal(t, 1, ctrl.paused)
	assert.Equal(t, 1, ctrl.stopped)
}

func TestHandleCommandSpeedParsesFloat(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(webtransport.NewServer(ctrl).Router())
	defer srv.Close()

	resp := postCommand(t, srv, "speed", "2.5")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.Equal(t, 2.5, ctrl.speed)
}

func TestHandleCommandSpeedRejectsNonNumeric(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(webtransport.NewServer(ctrl).Router())
	defer srv.Close()

	resp := postCommand(t, srv, "speed", "fast")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleCommandSeekParsesRFC3339(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(webtransport.NewServer(ctrl).Router())
	defer srv.Close()

	resp := postCommand(t, srv, "seek", "2026-03-01T12:00:00Z")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.True(t, ctrl.sought.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestHandleCommandSeekRejectsBadTimestamp(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(webtransport.NewServer(ctrl).Router())
	defer srv.Close()

	resp := postCommand(t, srv, "seek", "not-a-time")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleCommandUnknownCommandIsBadRequest(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(webtransport.NewServer(ctrl).Router())
	defer srv.Close()

	resp := postCommand(t, srv, "rewind", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleCommandInvalidBodyIsBadRequest(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(webtransport.NewServer(ctrl).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/playback/command", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStatusReturnsCurrentStatus(t *testing.T) {
	ctrl := newFakeController()
	ctrl.Play()
	srv := httptest.NewServer(webtransport.NewServer(ctrl).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/playback/status")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "playing", body["status"])
}

func TestBroadcastDeliversToConnectedWebSocketClients(t *testing.T) {
	ctrl := newFakeController()
	s := webtransport.NewServer(ctrl)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let the server finish registering the subscriber
	s.Broadcast(playback.Event{Kind: "update", Status: playback.StatusPlaying})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "update")
}

func TestOnPlaybackEventAdaptsToBroadcast(t *testing.T) {
	ctrl := newFakeController()
	s := webtransport.NewServer(ctrl)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	s.OnPlaybackEvent(playback.Event{Kind: "stateChange", Status: playback.StatusPaused})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "stateChange")
}
