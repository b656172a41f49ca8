package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	terminal "github.com/ulic-youthlic/neomacs-term"
)

type apiSessionInfo struct {
	ID             uint32 `json:"id"`
	Mode           string `json:"mode"`
	Title          string `json:"title,omitempty"`
	WorkingDir     string `json:"workingDir"`
	Cols           int    `json:"cols"`
	Rows           int    `json:"rows"`
	CreatedAtMs    int64  `json:"createdAtMs"`
	LastActiveAtMs int64  `json:"lastActiveAtMs"`
	Exited         bool   `json:"exited"`
}

type createSessionRequest struct {
	Cols         int     `json:"cols"`
	Rows         int     `json:"rows"`
	Mode         string  `json:"mode"`
	WorkingDir   string  `json:"workingDir"`
	FloatX       int     `json:"floatX"`
	FloatY       int     `json:"floatY"`
	FloatOpacity float64 `json:"floatOpacity"`
}

type resizeRequest struct {
	ConnID string `json:"connId"`
	Cols   int    `json:"cols"`
	Rows   int    `json:"rows"`
}

type inputRequest struct {
	ConnID string `json:"connId"`
	Input  string `json:"input"`
}

type historyChunk struct {
	Sequence    int64  `json:"sequence"`
	DataBase64  string `json:"data"`
	TimestampMs int64  `json:"timestampMs"`
}

type textResponse struct {
	Text string `json:"text"`
}

func toAPISessionInfo(info terminal.SessionInfo) apiSessionInfo {
	return apiSessionInfo{
		ID:             uint32(info.ID),
		Mode:           info.Mode.String(),
		Title:          info.Title,
		WorkingDir:     info.WorkingDir,
		Cols:           info.Cols,
		Rows:           info.Rows,
		CreatedAtMs:    info.CreatedAt,
		LastActiveAtMs: info.LastActive,
		Exited:         info.Exited,
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions := s.manager.List()
		out := make([]apiSessionInfo, 0, len(sessions))
		for _, session := range sessions {
			out = append(out, toAPISessionInfo(session.Info()))
		}
		writeJSON(w, http.StatusOK, out)
		return

	case http.MethodPost:
		var req createSessionRequest
		if r.Body != nil {
			if err := readJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
		}

		cols := req.Cols
		rows := req.Rows
		if cols <= 0 {
			cols = 80
		}
		if rows <= 0 {
			rows = 24
		}
		if !dimsInRange(cols, rows) {
			http.Error(w, "invalid cols/rows", http.StatusBadRequest)
			return
		}

		session, err := s.manager.Create(terminal.CreateOptions{
			Cols:         cols,
			Rows:         rows,
			Mode:         terminal.ParseDisplayMode(req.Mode),
			WorkingDir:   req.WorkingDir,
			FloatX:       req.FloatX,
			FloatY:       req.FloatY,
			FloatOpacity: req.FloatOpacity,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, toAPISessionInfo(session.Info()))
		return

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id64, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	sessionID := terminal.SessionID(id64)

	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			session, ok := s.manager.Get(sessionID)
			if !ok {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, toAPISessionInfo(session.Info()))
			return

		case http.MethodDelete:
			if !s.manager.Destroy(sessionID) {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			s.closeSessionClients(sessionID)
			s.limiter.dropSession(sessionID)
			w.WriteHeader(http.StatusNoContent)
			return

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

	case "input":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req inputRequest
		if err := readJSON(r, &req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if len(req.Input) > maxInputBytes {
			http.Error(w, "input too large", http.StatusRequestEntityTooLarge)
			return
		}

		if !s.limiter.allow(sessionID, inputLane(r, req.ConnID), len(req.Input), time.Now()) {
			http.Error(w, "input rate exceeded", http.StatusTooManyRequests)
			return
		}

		if err := s.manager.Write(sessionID, []byte(req.Input)); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, terminal.ErrSessionNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return

	case "resize":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req resizeRequest
		if err := readJSON(r, &req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if !dimsInRange(req.Cols, req.Rows) {
			http.Error(w, "invalid cols/rows", http.StatusBadRequest)
			return
		}

		session, ok := s.manager.Get(sessionID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		if strings.TrimSpace(req.ConnID) != "" {
			session.UpdateConnectionSize(req.ConnID, req.Cols, req.Rows)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if err := session.Resize(req.Cols, req.Rows); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return

	case "text":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		session, ok := s.manager.Get(sessionID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		cols, rows := session.Size()
		startRow := intQueryDefault(r, "startRow", 0)
		startCol := intQueryDefault(r, "startCol", 0)
		endRow := intQueryDefault(r, "endRow", rows-1)
		endCol := intQueryDefault(r, "endCol", cols-1)
		if startRow < 0 || startCol < 0 || endRow < startRow {
			http.Error(w, "invalid region", http.StatusBadRequest)
			return
		}

		writeJSON(w, http.StatusOK, textResponse{
			Text: session.GetText(startRow, startCol, endRow, endCol),
		})
		return

	case "history":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		startSeq, err := parseIntQuery(r, "startSeq", 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		session, ok := s.manager.Get(sessionID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		chunks := session.HistoryFromSequence(startSeq)
		out := make([]historyChunk, 0, len(chunks))
		for _, chunk := range chunks {
			out = append(out, historyChunk{
				Sequence:    chunk.Sequence,
				DataBase64:  base64.StdEncoding.EncodeToString(chunk.Data),
				TimestampMs: chunk.Timestamp,
			})
		}
		writeJSON(w, http.StatusOK, out)
		return

	case "clear":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		session, ok := s.manager.Get(sessionID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		session.ClearHistory()
		w.WriteHeader(http.StatusNoContent)
		return

	default:
		http.Error(w, fmt.Sprintf("unknown action: %s", action), http.StatusNotFound)
		return
	}
}

// dimsInRange mirrors the engine's clamp bounds so the API rejects what the
// engine would otherwise silently adjust.
func dimsInRange(cols, rows int) bool {
	return cols >= terminal.MinCols && cols <= terminal.MaxCols &&
		rows >= terminal.MinRows && rows <= terminal.MaxRows
}
