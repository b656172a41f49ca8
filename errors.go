package terminal

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by manager operations addressing an ID that
// is not (or no longer) registered.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionClosed is returned when writing to a session whose handles have
// been closed.
var ErrSessionClosed = errors.New("session is closed")

// ProcessError reports a PTY allocation or shell spawn failure during session
// creation. It is fatal to that creation attempt only; no partial session is
// left registered.
type ProcessError struct {
	Stage string // "spawn" or "dup"
	Shell string
	Err   error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("terminal process %s failed (shell %s): %v", e.Stage, e.Shell, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}
