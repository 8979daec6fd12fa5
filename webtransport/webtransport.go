// Package webtransport is the web transport boundary of spec.md §1/§6.4:
// out of scope for behavior, but implemented here as the HTTP REST control
// surface plus a WebSocket fan-out mirroring the Playback Controller's
// observer stream to browser clients, matching spec.md §6.4's command
// table and the "WebSocket fan-out mirroring the controller's events" box
// in spec.md §2's diagram.
//
// Grounded on the retrieval pack's trunk-recorder/tr-engine SSE/API surface
// for the shape of a pub/sub-backed HTTP API, using gorilla/mux for routing
// and gorilla/websocket for the fan-out, the same library family the
// teacher pack uses for transport-layer concerns.
package webtransport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/heytcass/f12mqtt/playback"
)

// Controller is the narrow surface webtransport needs from the Playback
// Controller, satisfied by *playback.Controller.
type Controller interface {
	Play()
	Pause()
	Stop()
	SetSpeed(float64)
	Seek(time.Time)
	Status() playback.Status
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes the REST control surface and WebSocket fan-out.
type Server struct {
	controller Controller

	mu   sync.Mutex
	subs map[*wsConn]struct{}
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
}

// NewServer returns a Server driving controller.
func NewServer(controller Controller) *Server {
	return &Server{controller: controller, subs: make(map[*wsConn]struct{})}
}

// Router builds the REST+WebSocket mux.Router, per spec.md §6.4's command
// table (play/pause/stop/speed/seek) and the fan-out endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/playback/command", s.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/api/playback/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	return r
}

type commandRequest struct {
	Command string `json:"command"`
	Value   string `json:"value,omitempty"`
}

// handleCommand implements spec.md §6.4's control surface.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Command {
	case "play":
		s.controller.Play()
	case "pause":
		s.controller.Pause()
	case "stop":
		s.controller.Stop()
	case "speed":
		v, err := strconv.ParseFloat(req.Value, 64)
		if err != nil {
			http.Error(w, "speed requires a numeric value", http.StatusBadRequest)
			return
		}
		s.controller.SetSpeed(v)
	case "seek":
		t, err := time.Parse(time.RFC3339, req.Value)
		if err != nil {
			http.Error(w, "seek requires an ISO-8601 value", http.StatusBadRequest)
			return
		}
		s.controller.Seek(t)
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": string(s.controller.Status())})
}

// handleWebSocket upgrades the connection and registers it for fan-out. Per
// spec.md §9's observer-pattern note, this is UI fan-out: a bounded channel
// that drops new frames while full (see Broadcast) is acceptable here even
// though it would not be for the recorder or publisher.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsConn{conn: conn, send: make(chan []byte, 32)}
	s.mu.Lock()
	s.subs[c] = struct{}{}
	s.mu.Unlock()

	go s.writePump(c)
	s.readPump(c)
}

func (s *Server) readPump(c *wsConn) {
	defer s.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *wsConn) {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (s *Server) unregister(c *wsConn) {
	s.mu.Lock()
	delete(s.subs, c)
	s.mu.Unlock()
	close(c.send)
	c.conn.Close()
}

// Broadcast fans a playback.Event out to every connected WebSocket client,
// dropping it for any subscriber whose send buffer is full rather than
// blocking the caller.
func (s *Server) Broadcast(ev playback.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.subs {
		select {
		case c.send <- data:
		default:
		}
	}
}

// OnPlaybackEvent adapts Server to playback.Observer so it can be
// subscribed directly to a Controller.
func (s *Server) OnPlaybackEvent(ev playback.Event) { s.Broadcast(ev) }
