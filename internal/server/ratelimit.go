package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	terminal "github.com/ulic-youthlic/neomacs-term"
)

// inputThrottle bounds how fast clients may push bytes into a session's PTY.
// Budgets are tracked per lane: one lane per declared connection ID, or per
// remote address for plain REST callers. Lanes are scoped to a session, so a
// flood aimed at one session never drains another session's budget, and a
// destroyed session's lanes can be dropped as a unit.
type inputThrottle struct {
	ratePerSec float64
	burst      float64

	mu     sync.Mutex
	lanes  map[throttleLane]*laneBudget
	allows int
}

type throttleLane struct {
	session terminal.SessionID
	client  string
}

type laneBudget struct {
	remaining float64
	refilled  time.Time
}

const (
	// Lanes untouched for this long are forgotten.
	laneIdleTTL = 5 * time.Minute
	// Prune cadence, counted in allow calls rather than wall time so an
	// idle server does no background work.
	pruneEvery = 256
)

func newInputThrottle(ratePerSec, burst int) *inputThrottle {
	t := &inputThrottle{
		ratePerSec: float64(ratePerSec),
		burst:      float64(burst),
		lanes:      make(map[throttleLane]*laneBudget),
	}
	if t.ratePerSec < 1 {
		t.ratePerSec = 1
	}
	if t.burst < 1 {
		t.burst = 1
	}
	return t
}

// allow reports whether n input bytes fit the lane's remaining budget and
// debits them if so. An empty client lane is always refused.
func (t *inputThrottle) allow(session terminal.SessionID, client string, n int, now time.Time) bool {
	if t == nil {
		return true
	}
	if client == "" {
		return false
	}
	if n <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.allows++
	if t.allows%pruneEvery == 0 {
		t.pruneLocked(now)
	}

	key := throttleLane{session: session, client: client}
	lane := t.lanes[key]
	if lane == nil {
		lane = &laneBudget{remaining: t.burst, refilled: now}
		t.lanes[key] = lane
	}

	if elapsed := now.Sub(lane.refilled).Seconds(); elapsed > 0 {
		lane.remaining += elapsed * t.ratePerSec
		if lane.remaining > t.burst {
			lane.remaining = t.burst
		}
		lane.refilled = now
	}

	if lane.remaining < float64(n) {
		return false
	}
	lane.remaining -= float64(n)
	return true
}

// dropSession forgets every lane belonging to a destroyed session.
func (t *inputThrottle) dropSession(session terminal.SessionID) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.lanes {
		if key.session == session {
			delete(t.lanes, key)
		}
	}
}

func (t *inputThrottle) pruneLocked(now time.Time) {
	for key, lane := range t.lanes {
		if now.Sub(lane.refilled) > laneIdleTTL {
			delete(t.lanes, key)
		}
	}
}

// inputLane picks the budget lane for an HTTP input request: the client's
// declared connection ID when present, its remote address otherwise.
func inputLane(r *http.Request, connID string) string {
	if lane := strings.TrimSpace(connID); lane != "" {
		return lane
	}
	if r == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
