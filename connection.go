package terminal

import "time"

// AddConnection registers a client connection with the session. The
// emulated grid follows the smallest attached client so every client sees
// the full content.
func (s *Session) AddConnection(connectionID string, cols, rows int) {
	if connectionID == "" {
		s.config.logger.Error("Cannot add connection with empty ID", "sessionID", s.ID)
		return
	}

	s.connMu.Lock()
	existing := s.connections[connectionID]
	s.connections[connectionID] = &ConnectionInfo{
		ConnID:   connectionID,
		JoinedAt: time.Now(),
		Cols:     cols,
		Rows:     rows,
	}
	s.connMu.Unlock()

	if existing != nil {
		s.config.logger.Debug("Replacing existing connection", "sessionID", s.ID, "connectionID", connectionID)
	} else {
		s.config.logger.Debug("Added connection", "sessionID", s.ID, "connectionID", connectionID, "cols", cols, "rows", rows)
	}

	s.resizeToMinimum()
}

// RemoveConnection unregisters a client connection.
func (s *Session) RemoveConnection(connectionID string) {
	if connectionID == "" {
		return
	}

	s.connMu.Lock()
	_, exists := s.connections[connectionID]
	if exists {
		delete(s.connections, connectionID)
	}
	s.connMu.Unlock()

	if !exists {
		return
	}

	s.config.logger.Debug("Removed connection", "sessionID", s.ID, "connectionID", connectionID)
	s.resizeToMinimum()
}

// UpdateConnectionSize updates a connection's reported terminal size.
func (s *Session) UpdateConnectionSize(connectionID string, cols, rows int) {
	if connectionID == "" {
		return
	}

	s.connMu.Lock()
	conn, exists := s.connections[connectionID]
	if exists {
		conn.Cols = cols
		conn.Rows = rows
	}
	s.connMu.Unlock()

	if !exists {
		// A resize can arrive before the corresponding attach completes or
		// after a quick disconnect/reconnect.
		s.config.logger.Debug("Connection not found for size update", "sessionID", s.ID, "connectionID", connectionID)
		return
	}

	s.resizeToMinimum()
}

// ConnectionCount returns the number of attached clients.
func (s *Session) ConnectionCount() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.connections)
}

func (s *Session) resizeToMinimum() {
	cols, rows := s.minimumConnectionSize()
	if err := s.Resize(cols, rows); err != nil {
		s.config.logger.Warn("Failed to resize to minimum connection size", "sessionID", s.ID, "error", err)
	}
}

func (s *Session) minimumConnectionSize() (int, int) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if len(s.connections) == 0 {
		return 80, 24
	}

	minCols := MaxCols
	minRows := MaxRows
	for _, conn := range s.connections {
		if conn.Cols < minCols {
			minCols = conn.Cols
		}
		if conn.Rows < minRows {
			minRows = conn.Rows
		}
	}

	return clampTerminalSize(minCols, minRows)
}
