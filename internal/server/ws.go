package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	terminal "github.com/ulic-youthlic/neomacs-term"
)

type wsClient struct {
	conn      *websocket.Conn
	sessionID terminal.SessionID
	connID    string
	send      chan []byte
}

type wsEvent struct {
	Type        string          `json:"type"`
	SessionID   uint32          `json:"sessionId"`
	ConnID      string          `json:"connId,omitempty"`
	DataBase64  string          `json:"data,omitempty"`
	Sequence    int64           `json:"sequence,omitempty"`
	TimestampMs int64           `json:"timestampMs,omitempty"`
	Title       string          `json:"title,omitempty"`
	Error       string          `json:"error,omitempty"`
	Content     *contentPayload `json:"content,omitempty"`
}

type contentPayload struct {
	Cols   int            `json:"cols"`
	Rows   int            `json:"rows"`
	Cursor cursorPayload  `json:"cursor"`
	Cells  []cellPayload  `json:"cells"`
}

type cursorPayload struct {
	Col     int  `json:"col"`
	Row     int  `json:"row"`
	Visible bool `json:"visible"`
}

type cellPayload struct {
	Col   int    `json:"col"`
	Row   int    `json:"row"`
	Char  string `json:"char"`
	FG    string `json:"fg"`
	BG    string `json:"bg"`
	Flags uint16 `json:"flags,omitempty"`
}

func toContentPayload(content *terminal.TerminalContent) *contentPayload {
	cells := make([]cellPayload, 0, len(content.Cells))
	for _, cell := range content.Cells {
		cells = append(cells, cellPayload{
			Col:   cell.Col,
			Row:   cell.Row,
			Char:  string(cell.Char),
			FG:    cell.FG.Hex(),
			BG:    cell.BG.Hex(),
			Flags: uint16(cell.Flags),
		})
	}
	return &contentPayload{
		Cols: content.Cols,
		Rows: content.Rows,
		Cursor: cursorPayload{
			Col:     content.Cursor.Col,
			Row:     content.Cursor.Row,
			Visible: content.Cursor.Visible,
		},
		Cells: cells,
	}
}

// handleWS attaches a renderer client to a session. The server assigns the
// connection ID, replays buffered history, then streams content snapshots
// and side events until the socket closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	rawID := r.URL.Query().Get("sessionId")
	id64, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		http.Error(w, "invalid sessionId", http.StatusBadRequest)
		return
	}
	sessionID := terminal.SessionID(id64)

	session, ok := s.manager.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	cols := intQueryDefault(r, "cols", 80)
	rows := intQueryDefault(r, "rows", 24)
	if !dimsInRange(cols, rows) {
		http.Error(w, "invalid cols/rows", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closed")

	client := &wsClient{
		conn:      conn,
		sessionID: sessionID,
		connID:    uuid.NewString(),
		send:      make(chan []byte, 64),
	}

	session.AddConnection(client.connID, cols, rows)
	defer session.RemoveConnection(client.connID)

	s.registerWS(client)
	defer s.unregisterWS(client)

	ctx := r.Context()
	go client.writeLoop(ctx)

	client.enqueue(wsEvent{
		Type:        "attached",
		SessionID:   uint32(sessionID),
		ConnID:      client.connID,
		TimestampMs: time.Now().UnixMilli(),
	})

	// Replay buffered output so a late-attaching client can rebuild scrollback.
	for _, chunk := range session.History() {
		client.enqueue(wsEvent{
			Type:        "history",
			SessionID:   uint32(sessionID),
			DataBase64:  base64.StdEncoding.EncodeToString(chunk.Data),
			Sequence:    chunk.Sequence,
			TimestampMs: chunk.Timestamp,
		})
	}

	// Push the current grid immediately rather than waiting for the next change.
	if content := session.Content(); content != nil {
		client.enqueue(wsEvent{
			Type:        "content",
			SessionID:   uint32(sessionID),
			TimestampMs: time.Now().UnixMilli(),
			Content:     toContentPayload(content),
		})
	}

	// We don't expect client -> server messages; just read to detect close.
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			return
		}
	}
}

func (c *wsClient) enqueue(ev wsEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *wsClient) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) registerWS(client *wsClient) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	set := s.wsBySession[client.sessionID]
	if set == nil {
		set = make(map[*wsClient]struct{})
		s.wsBySession[client.sessionID] = set
	}
	set[client] = struct{}{}
}

func (s *Server) unregisterWS(client *wsClient) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	set := s.wsBySession[client.sessionID]
	if set == nil {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(s.wsBySession, client.sessionID)
	}
}

func (s *Server) broadcast(sessionID terminal.SessionID, payload []byte) {
	s.wsMu.RLock()
	set := s.wsBySession[sessionID]
	if len(set) == 0 {
		s.wsMu.RUnlock()
		return
	}

	clients := make([]*wsClient, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	s.wsMu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- payload:
		default:
			// Slow consumer: best-effort close. The read loop will exit and cleanup will unregister.
			_ = client.conn.Close(websocket.StatusPolicyViolation, "slow consumer")
		}
	}
}

func (s *Server) broadcastEvent(sessionID terminal.SessionID, ev wsEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.broadcast(sessionID, payload)
}
