package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	terminal "github.com/ulic-youthlic/neomacs-term"
)

type Config struct {
	// FrameInterval is how often sessions are polled for pending output.
	// Defaults to 33ms, roughly 30 snapshots per second.
	FrameInterval time.Duration

	// InputRateBytesPerSec and InputBurstBytes bound per-client PTY input.
	InputRateBytesPerSec int
	InputBurstBytes      int

	// ManagerConfig is forwarded to the terminal manager. The Events sink is
	// chained: the server broadcasts session events to websocket clients and
	// then invokes the caller's sink, if any.
	ManagerConfig terminal.ManagerConfig
}

// Server bridges terminal sessions to HTTP/WebSocket clients. A background
// frame loop polls the manager for changed content and fans fresh snapshots
// out to attached sockets.
type Server struct {
	manager *terminal.Manager
	logger  terminal.Logger
	limiter *inputThrottle

	frameInterval time.Duration
	stopFrames    chan struct{}
	frameOnce     sync.Once

	wsMu        sync.RWMutex
	wsBySession map[terminal.SessionID]map[*wsClient]struct{}
}

func New(cfg Config) *Server {
	logger := cfg.ManagerConfig.Logger
	if logger == nil {
		logger = terminal.NopLogger{}
	}

	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 33 * time.Millisecond
	}
	if cfg.InputRateBytesPerSec <= 0 {
		cfg.InputRateBytesPerSec = 256 * 1024
	}
	if cfg.InputBurstBytes <= 0 {
		cfg.InputBurstBytes = 512 * 1024
	}

	s := &Server{
		logger:        logger,
		limiter:       newInputThrottle(cfg.InputRateBytesPerSec, cfg.InputBurstBytes),
		frameInterval: cfg.FrameInterval,
		stopFrames:    make(chan struct{}),
		wsBySession:   make(map[terminal.SessionID]map[*wsClient]struct{}),
	}

	userSink := cfg.ManagerConfig.Events
	cfg.ManagerConfig.Events = func(id terminal.SessionID, ev terminal.Event) {
		s.onSessionEvent(id, ev)
		if userSink != nil {
			userSink(id, ev)
		}
	}

	s.manager = terminal.NewManager(cfg.ManagerConfig)

	go s.frameLoop()
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) Close() {
	s.frameOnce.Do(func() { close(s.stopFrames) })

	s.manager.Cleanup()

	s.wsMu.Lock()
	clients := s.wsBySession
	s.wsBySession = make(map[terminal.SessionID]map[*wsClient]struct{})
	s.wsMu.Unlock()

	for _, set := range clients {
		for client := range set {
			_ = client.conn.Close(websocket.StatusNormalClosure, "server shutting down")
		}
	}
}

// frameLoop drives snapshot extraction at a fixed cadence. Sessions with no
// pending output cost one atomic load each.
func (s *Server) frameLoop() {
	ticker := time.NewTicker(s.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopFrames:
			return
		case <-ticker.C:
			for _, id := range s.manager.UpdateAll() {
				content, err := s.manager.Content(id)
				if err != nil || content == nil {
					continue
				}
				s.broadcastEvent(id, wsEvent{
					Type:        "content",
					SessionID:   uint32(id),
					TimestampMs: time.Now().UnixMilli(),
					Content:     toContentPayload(content),
				})
			}
		}
	}
}

// onSessionEvent fans side-channel session events out to attached clients.
func (s *Server) onSessionEvent(id terminal.SessionID, ev terminal.Event) {
	switch ev.Kind {
	case terminal.EventTitleChanged:
		s.broadcastEvent(id, wsEvent{
			Type:        "title",
			SessionID:   uint32(id),
			Title:       ev.Title,
			TimestampMs: time.Now().UnixMilli(),
		})
	case terminal.EventBell:
		s.broadcastEvent(id, wsEvent{
			Type:        "bell",
			SessionID:   uint32(id),
			TimestampMs: time.Now().UnixMilli(),
		})
	case terminal.EventProcessExited:
		s.broadcastEvent(id, wsEvent{
			Type:        "exited",
			SessionID:   uint32(id),
			TimestampMs: time.Now().UnixMilli(),
		})
	}
}

// closeSessionClients drops all websocket clients for a destroyed session.
func (s *Server) closeSessionClients(id terminal.SessionID) {
	s.wsMu.Lock()
	clients := s.wsBySession[id]
	delete(s.wsBySession, id)
	s.wsMu.Unlock()

	for client := range clients {
		_ = client.conn.Close(websocket.StatusNormalClosure, "session closed")
	}
}

// --- API helpers ---

// Request body caps. Input is additionally bounded by the throttle.
const (
	maxJSONBodyBytes = int64(1 << 20)
	maxInputBytes    = 64 << 10
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func intQueryDefault(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseIntQuery(r *http.Request, key string, def int64) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
