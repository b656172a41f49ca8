package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	headlessterm "github.com/danielgatis/go-headless-term"
	"github.com/lucasb-eyer/go-colorful"
)

// Session is one PTY-backed shell with an in-memory terminal emulation.
//
// The reader goroutine owns the PTY read side and feeds the VT engine; the
// grid mutex is held only while a chunk is interpreted or a snapshot is
// taken, so readers and the frame loop interleave fairly under contention.
type Session struct {
	ID         SessionID
	Mode       DisplayMode
	WorkingDir string
	CreatedAt  time.Time

	// Floating-mode placement, in pixels relative to the host frame. Only
	// meaningful when Mode == ModeFloating; the renderer reads these directly.
	FloatX       int
	FloatY       int
	FloatOpacity float64

	config sessionConfig
	proxy  *EventProxy
	shell  string

	mu sync.Mutex // guards vt, cols, rows
	vt *headlessterm.Terminal

	cols int
	rows int

	// dirty forces a snapshot on the next UpdateContent even without a
	// wakeup, e.g. after a resize reflow.
	dirty  atomic.Bool
	exited atomic.Bool
	closed atomic.Bool

	lastActive atomic.Int64 // unix millis

	contentMu   sync.RWMutex
	lastContent *TerminalContent

	cmd          *exec.Cmd
	ptmx         *os.File
	writer       *os.File
	ptyCloseOnce sync.Once
	closeOnce    sync.Once
	procWaitDone chan struct{}

	history *OutputRingBuffer

	connMu      sync.Mutex
	connections map[string]*ConnectionInfo
}

// newSession spawns the shell on a fresh PTY and starts the reader and
// reaper goroutines. Dimensions must already be validated by the caller.
func newSession(id SessionID, cols, rows int, mode DisplayMode, workingDir string, cfg sessionConfig) (*Session, error) {
	proxy := newEventProxy(id, cfg.logger, cfg.events)

	s := &Session{
		ID:           id,
		Mode:         mode,
		WorkingDir:   workingDir,
		CreatedAt:    time.Now(),
		FloatOpacity: 1.0,
		config:       cfg,
		proxy:        proxy,
		cols:         cols,
		rows:         rows,
		history:      NewOutputRingBuffer(cfg.historyBufferSize),
		procWaitDone: make(chan struct{}),
		connections:  make(map[string]*ConnectionInfo),
	}
	s.touch()

	s.vt = headlessterm.New(
		headlessterm.WithSize(rows, cols),
		headlessterm.WithBell(bellListener{proxy: proxy}),
		headlessterm.WithTitle(titleListener{proxy: proxy}),
	)

	shell := cfg.shellResolver.ResolveShell(cfg.logger)
	s.shell = shell
	cfg.logger.Info("Starting terminal", "sessionID", id, "shell", filepath.Base(shell), "workingDir", filepath.Base(workingDir))

	env, envErr := cfg.envProvider.BuildEnv(shell, workingDir)
	if envErr != nil {
		cfg.logger.Warn("Env provider failed", "sessionID", id, "error", envErr)
		env = os.Environ()
	}
	if len(env) == 0 {
		env = os.Environ()
	}

	shellArgs, shellEnv := cfg.shellArgsProvider.GetShellArgs(shell)

	var cmd *exec.Cmd
	// nil means "no opinion" and falls back to a login shell; an empty
	// non-nil slice runs the shell without extra args.
	if shellArgs != nil {
		cmd = exec.Command(shell, shellArgs...)
	} else {
		cmd = exec.Command(shell, "-l")
	}
	cmd.Dir = workingDir

	env = append(env, shellEnv...)
	env = append(env,
		"TERM="+cfg.terminalEnv.Term,
		"COLORTERM="+cfg.terminalEnv.ColorTerm,
		"LANG="+cfg.terminalEnv.Lang,
		"TERM_PROGRAM="+cfg.terminalEnv.TermProgram,
		"TERM_PROGRAM_VERSION="+cfg.terminalEnv.TermProgramVersion,
		fmt.Sprintf("COLUMNS=%d", cols),
		fmt.Sprintf("LINES=%d", rows),
	)
	cmd.Env = env

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, &ProcessError{Stage: "spawn", Shell: shell, Err: err}
	}
	s.cmd = cmd
	s.ptmx = ptmx

	if err := pty.Setsize(ptmx, buildWinSize(cols, rows)); err != nil {
		cfg.logger.Warn("Failed to set terminal size", "sessionID", id, "error", err, "cols", cols, "rows", rows)
	}

	// The writer is a duplicated descriptor so input keeps its own handle
	// while the reader goroutine owns ptmx.
	writerFd, err := syscall.Dup(int(ptmx.Fd()))
	if err != nil {
		_ = cmd.Process.Kill()
		s.closePTY()
		// The reaper never started; wait here so the killed child does
		// not linger as a zombie.
		go func() { _ = cmd.Wait() }()
		return nil, &ProcessError{Stage: "dup", Shell: shell, Err: err}
	}
	syscall.CloseOnExec(writerFd)
	s.writer = os.NewFile(uintptr(writerFd), "pty-writer")

	go s.readLoop()
	go s.reapChild()

	cfg.logger.Info("Started PTY session", "sessionID", id, "cols", cols, "rows", rows, "mode", mode)
	return s, nil
}

// readLoop drains the PTY and feeds the VT engine. The grid lock is held
// only across interpretation of one chunk, never across the blocking read.
func (s *Session) readLoop() {
	buffer := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buffer)
		if n > 0 {
			s.mu.Lock()
			_, _ = s.vt.Write(buffer[:n])
			s.mu.Unlock()

			s.history.Write(buffer[:n])
			s.touch()
			s.proxy.Send(Event{Kind: EventContentChanged})
			// Title and bell events raised during interpretation are
			// delivered only here, after the grid lock is released.
			s.proxy.Flush()
		}
		if err == nil {
			if n == 0 {
				s.signalExit()
				return
			}
			continue
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		// EIO is how Linux reports PTY EOF after the child exits.
		if errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) {
			s.signalExit()
			return
		}
		if !s.closed.Load() {
			s.config.logger.Warn("PTY read failed", "sessionID", s.ID, "error", err)
		}
		s.signalExit()
		return
	}
}

func (s *Session) signalExit() {
	if s.exited.Swap(true) {
		return
	}
	// A Close-initiated teardown is not surfaced as a process exit; the
	// caller asked for it.
	if s.closed.Load() {
		return
	}
	s.proxy.Send(Event{Kind: EventProcessExited})
	s.proxy.Flush()
}

// reapChild waits for the shell to exit, then releases the PTY so the
// reader unblocks.
func (s *Session) reapChild() {
	err := s.cmd.Wait()
	if err != nil {
		s.config.logger.Debug("Shell process exited", "sessionID", s.ID, "error", err)
	}
	s.closePTY()
	close(s.procWaitDone)
}

func (s *Session) closePTY() {
	s.ptyCloseOnce.Do(func() {
		_ = s.ptmx.Close()
	})
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixMilli())
}

// Write sends input bytes to the shell.
func (s *Session) Write(data []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write to PTY: %w", err)
	}
	s.touch()
	return nil
}

// Resize changes the emulated grid and the PTY window size. Out-of-range
// dimensions are clamped. Content is reflowed by the engine and the next
// UpdateContent reports a change even if no output arrived.
func (s *Session) Resize(cols, rows int) error {
	cols, rows = clampTerminalSize(cols, rows)

	s.mu.Lock()
	s.vt.Resize(rows, cols)
	s.cols = cols
	s.rows = rows
	s.dirty.Store(true)
	s.mu.Unlock()

	if err := s.resizePTY(cols, rows); err != nil {
		s.config.logger.Warn("Failed to resize PTY", "sessionID", s.ID, "error", err, "cols", cols, "rows", rows)
		return err
	}

	s.config.logger.Debug("Resized terminal", "sessionID", s.ID, "cols", cols, "rows", rows)
	return nil
}

func (s *Session) resizePTY(cols, rows int) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if err := pty.Setsize(s.writer, buildWinSize(cols, rows)); err != nil {
		return fmt.Errorf("failed to resize PTY: %w", err)
	}
	return nil
}

// UpdateContent extracts a fresh content snapshot if output arrived or a
// resize happened since the last call. It returns true when a new snapshot
// was published. Any number of changes between two calls collapse into one.
func (s *Session) UpdateContent() bool {
	woke := s.proxy.TakeWakeup()
	if !woke && !s.dirty.Load() {
		return false
	}

	s.mu.Lock()
	content := snapshotContent(s.vt, s.config.defaultFG, s.config.defaultBG)
	s.dirty.Store(false)
	s.mu.Unlock()

	s.contentMu.Lock()
	s.lastContent = content
	s.contentMu.Unlock()

	return true
}

// Content returns the most recently published snapshot, or nil before the
// first UpdateContent. The snapshot is immutable and safe to read from any
// goroutine.
func (s *Session) Content() *TerminalContent {
	s.contentMu.RLock()
	defer s.contentMu.RUnlock()
	return s.lastContent
}

// GetText copies the region [startRow,endRow] x [startCol,endCol] from the
// live grid as plain text with per-line trailing whitespace removed.
func (s *Session) GetText(startRow, startCol, endRow, endCol int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return extractText(s.vt, startRow, startCol, endRow, endCol)
}

// VisibleText returns the whole visible grid as text.
func (s *Session) VisibleText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return extractText(s.vt, 0, 0, s.vt.Rows()-1, s.vt.Cols()-1)
}

// Size returns the current grid dimensions.
func (s *Session) Size() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Title returns the window title set by the running program, or empty.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vt.Title()
}

// WorkingDirectory returns the directory reported by the shell via OSC 7,
// falling back to the spawn directory.
func (s *Session) WorkingDirectory() string {
	s.mu.Lock()
	path := s.vt.WorkingDirectoryPath()
	s.mu.Unlock()
	if path == "" {
		return s.WorkingDir
	}
	return path
}

// Exited reports whether the shell process has terminated. It latches: once
// true it stays true even though the grid remains readable.
func (s *Session) Exited() bool {
	return s.exited.Load()
}

// LastActive returns the time of the most recent input or output.
func (s *Session) LastActive() time.Time {
	return time.UnixMilli(s.lastActive.Load())
}

// History returns the raw output chunks recorded since creation (bounded by
// the ring buffer capacity).
func (s *Session) History() []OutputChunk {
	return s.history.ReadAll()
}

// HistoryFromSequence returns recorded chunks with Sequence >= fromSeq.
func (s *Session) HistoryFromSequence(fromSeq int64) []OutputChunk {
	return s.history.ReadFromSequence(fromSeq)
}

// ClearHistory discards the recorded output history. The live grid is not
// affected.
func (s *Session) ClearHistory() {
	s.history.Clear()
	s.config.logger.Info("Terminal history cleared", "sessionID", s.ID)
}

// Info returns a point-in-time summary of the session.
func (s *Session) Info() SessionInfo {
	cols, rows := s.Size()
	return SessionInfo{
		ID:         s.ID,
		Mode:       s.Mode,
		Title:      s.Title(),
		WorkingDir: s.WorkingDirectory(),
		Cols:       cols,
		Rows:       rows,
		CreatedAt:  s.CreatedAt.UnixMilli(),
		LastActive: s.lastActive.Load(),
		Exited:     s.exited.Load(),
	}
}

// Close terminates the shell and releases the PTY. It is idempotent and
// safe to call concurrently; the grid and last snapshot stay readable after
// close.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		if s.writer != nil {
			_ = s.writer.Close()
		}
		s.closePTY()

		if s.cmd != nil && s.cmd.Process != nil {
			if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
				s.config.logger.Debug("Failed to send SIGTERM", "sessionID", s.ID, "error", err)
			}
			select {
			case <-s.procWaitDone:
			case <-time.After(2 * time.Second):
				s.config.logger.Debug("Force killing process", "sessionID", s.ID)
				_ = s.cmd.Process.Kill()
				select {
				case <-s.procWaitDone:
				case <-time.After(2 * time.Second):
				}
			}
		}

		s.connMu.Lock()
		s.connections = make(map[string]*ConnectionInfo)
		s.connMu.Unlock()

		s.config.logger.Info("Closed terminal session", "sessionID", s.ID)
	})
}

// DefaultColors exposes the session's resolved default colors for renderers
// that draw background fill before any snapshot exists.
func (s *Session) DefaultColors() (fg, bg colorful.Color) {
	return s.config.defaultFG, s.config.defaultBG
}
