package terminal

import (
	"time"
)

// SessionID uniquely identifies a terminal session for the lifetime of its
// Manager. IDs are allocated from a monotonic counter and never reused, so a
// stale ID held by an integrator resolves to "not found" rather than to an
// unrelated newer session.
type SessionID uint32

// DisplayMode describes how the embedding renderer places a terminal.
type DisplayMode int

const (
	// ModeWindow fills an entire editor window.
	ModeWindow DisplayMode = iota
	// ModeInline embeds the terminal within buffer text, like an inline image.
	ModeInline
	// ModeFloating composites the terminal above all other content.
	ModeFloating
)

func (m DisplayMode) String() string {
	switch m {
	case ModeWindow:
		return "window"
	case ModeInline:
		return "inline"
	case ModeFloating:
		return "floating"
	default:
		return "unknown"
	}
}

// ParseDisplayMode maps a mode name to a DisplayMode, defaulting to ModeWindow.
func ParseDisplayMode(name string) DisplayMode {
	switch name {
	case "inline":
		return ModeInline
	case "floating":
		return ModeFloating
	default:
		return ModeWindow
	}
}

// OutputChunk is a piece of raw PTY output retained for history replay.
type OutputChunk struct {
	Sequence  int64
	Data      []byte
	Timestamp int64
	Size      int
}

// SessionInfo summarizes a session for listing APIs.
type SessionInfo struct {
	ID         SessionID
	Mode       DisplayMode
	Title      string
	WorkingDir string
	Cols       int
	Rows       int
	CreatedAt  int64
	LastActive int64
	Exited     bool
}

// ConnectionInfo stores metadata for an attached renderer client.
type ConnectionInfo struct {
	ConnID   string
	JoinedAt time.Time
	Cols     int
	Rows     int
}
