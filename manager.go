package terminal

import (
	"os"
	"sync"
)

// Manager owns all terminal sessions. Session IDs are allocated from a
// monotonic counter and are never reused, even when creation fails or a
// session is destroyed.
type Manager struct {
	mu       sync.RWMutex
	sessions map[SessionID]*Session
	order    []SessionID
	nextID   SessionID
	config   ManagerConfig
}

// NewManager creates a terminal manager with the provided configuration.
func NewManager(cfg ManagerConfig) *Manager {
	cfg = cfg.applyDefaults()
	return &Manager{
		sessions: make(map[SessionID]*Session),
		order:    make([]SessionID, 0),
		nextID:   1,
		config:   cfg,
	}
}

// CreateOptions controls session creation. Zero values get sensible
// defaults: 80x24, window mode, the user's home directory.
type CreateOptions struct {
	Cols       int
	Rows       int
	Mode       DisplayMode
	WorkingDir string

	// Shell overrides the configured ShellResolver for this session only.
	Shell string

	// Floating-mode placement; ignored for other modes.
	FloatX       int
	FloatY       int
	FloatOpacity float64
}

// Create spawns a new PTY session. The allocated ID is consumed even when
// creation fails, so a retry observes a later ID.
func (m *Manager) Create(opts CreateOptions) (*Session, error) {
	if opts.Cols == 0 && opts.Rows == 0 {
		opts.Cols, opts.Rows = 80, 24
	}
	cols, rows := clampTerminalSize(opts.Cols, opts.Rows)

	if opts.WorkingDir == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			opts.WorkingDir = homeDir
		} else {
			opts.WorkingDir = "/"
		}
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	sessionCfg := newSessionConfig(m.config)
	if opts.Shell != "" {
		sessionCfg.shellResolver = StaticShellResolver{Shell: opts.Shell}
	}

	session, err := newSession(id, cols, rows, opts.Mode, opts.WorkingDir, sessionCfg)
	if err != nil {
		m.config.Logger.Error("Terminal session creation failed", "sessionID", id, "error", err)
		return nil, err
	}

	if opts.Mode == ModeFloating {
		session.FloatX = opts.FloatX
		session.FloatY = opts.FloatY
		if opts.FloatOpacity > 0 {
			session.FloatOpacity = opts.FloatOpacity
		}
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.order = append(m.order, id)
	m.mu.Unlock()

	m.config.Logger.Info("Created terminal session", "sessionID", id, "mode", opts.Mode, "workingDir", opts.WorkingDir)
	return session, nil
}

// Get returns a session by ID.
func (m *Manager) Get(id SessionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, exists := m.sessions[id]
	return session, exists
}

// List returns sessions in creation order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, id := range m.order {
		if session, exists := m.sessions[id]; exists {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

// IDs returns registered session IDs in creation order.
func (m *Manager) IDs() []SessionID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SessionID(nil), m.order...)
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Destroy removes a session and terminates its shell. It reports whether
// the ID was registered; destroying an unknown or already destroyed ID is a
// no-op.
func (m *Manager) Destroy(id SessionID) bool {
	session, removed := m.detach(id)
	if !removed {
		return false
	}

	session.Close()
	m.config.Logger.Info("Destroyed terminal session", "sessionID", id, "remainingCount", m.Len())
	return true
}

func (m *Manager) detach(id SessionID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, false
	}

	delete(m.sessions, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	return session, true
}

// UpdateAll polls every session for pending output and publishes fresh
// snapshots. It returns the IDs whose content changed since the previous
// call, in creation order. Intended to be driven at frame rate.
func (m *Manager) UpdateAll() []SessionID {
	sessions := m.List()

	var changed []SessionID
	for _, session := range sessions {
		if session.UpdateContent() {
			changed = append(changed, session.ID)
		}
	}
	return changed
}

// Write sends input to the identified session.
func (m *Manager) Write(id SessionID, data []byte) error {
	session, exists := m.Get(id)
	if !exists {
		return ErrSessionNotFound
	}
	return session.Write(data)
}

// Resize changes the identified session's grid and PTY size.
func (m *Manager) Resize(id SessionID, cols, rows int) error {
	session, exists := m.Get(id)
	if !exists {
		return ErrSessionNotFound
	}
	return session.Resize(cols, rows)
}

// GetText extracts a text region from the identified session.
func (m *Manager) GetText(id SessionID, startRow, startCol, endRow, endCol int) (string, error) {
	session, exists := m.Get(id)
	if !exists {
		return "", ErrSessionNotFound
	}
	return session.GetText(startRow, startCol, endRow, endCol), nil
}

// Content returns the latest published snapshot for the identified session.
func (m *Manager) Content(id SessionID) (*TerminalContent, error) {
	session, exists := m.Get(id)
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session.Content(), nil
}

// Cleanup destroys all sessions. The ID counter is not reset.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[SessionID]*Session)
	m.order = make([]SessionID, 0)
	m.mu.Unlock()

	m.config.Logger.Info("Cleaning up all terminal sessions", "count", len(sessions))
	for _, session := range sessions {
		session.Close()
	}
}
