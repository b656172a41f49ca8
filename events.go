package terminal

import (
	"sync"
	"sync/atomic"
)

// EventKind classifies events emitted by a session's VT engine and reader
// goroutine.
type EventKind int

const (
	// EventContentChanged signals that the grid changed since the last check.
	// It is coalesced: any number of occurrences collapse into one pending
	// wakeup until the control thread consumes it.
	EventContentChanged EventKind = iota
	// EventTitleChanged carries a new window title (OSC 0/2).
	EventTitleChanged
	// EventBell is the terminal bell (BEL or OSC).
	EventBell
	// EventProcessExited signals that the PTY reached EOF because the child
	// process exited.
	EventProcessExited
)

func (k EventKind) String() string {
	switch k {
	case EventContentChanged:
		return "content-changed"
	case EventTitleChanged:
		return "title-changed"
	case EventBell:
		return "bell"
	case EventProcessExited:
		return "process-exited"
	default:
		return "unknown"
	}
}

// Event is a single engine or lifecycle notification.
type Event struct {
	Kind  EventKind
	Title string
}

// EventSink receives side-channel session events (title, bell, exit).
// ContentChanged is not delivered here; it is consumed through the manager's
// UpdateAll/UpdateContent path. The sink is injected at construction time via
// ManagerConfig. It is invoked with no session locks held, so it may call
// back into Session and Manager accessors; it runs on the session's reader
// goroutine, so a long-blocking sink delays that session's output.
type EventSink func(id SessionID, ev Event)

// EventProxy bridges VT engine events to the control thread. The wakeup flag
// is the only state shared with the reader goroutine on the fast path; the
// control thread may poll TakeWakeup at frame rate without taking any lock.
type EventProxy struct {
	id     SessionID
	wakeup atomic.Bool
	logger Logger
	sink   EventSink

	pendingMu sync.Mutex
	pending   []Event
}

func newEventProxy(id SessionID, logger Logger, sink EventSink) *EventProxy {
	return &EventProxy{id: id, logger: logger, sink: sink}
}

// Send classifies an event. ContentChanged only sets the coalesced wakeup
// flag. Side events are queued for the next Flush: the engine raises title
// and bell callbacks from inside byte interpretation, while the grid lock is
// held, so delivering them to the sink inline would hand it a session it
// cannot safely touch.
func (p *EventProxy) Send(ev Event) {
	if ev.Kind == EventContentChanged {
		p.wakeup.Store(true)
		return
	}
	p.pendingMu.Lock()
	p.pending = append(p.pending, ev)
	p.pendingMu.Unlock()
}

// Flush drains queued side events to the sink in arrival order. Callers must
// hold no session locks.
func (p *EventProxy) Flush() {
	p.pendingMu.Lock()
	events := p.pending
	p.pending = nil
	p.pendingMu.Unlock()

	for _, ev := range events {
		switch ev.Kind {
		case EventTitleChanged:
			p.logger.Debug("terminal title changed", "sessionID", p.id, "title", ev.Title)
		case EventBell:
			p.logger.Debug("terminal bell", "sessionID", p.id)
		case EventProcessExited:
			p.logger.Info("terminal child process exited", "sessionID", p.id)
		}
		if p.sink != nil {
			p.sink(p.id, ev)
		}
	}
}

// TakeWakeup atomically tests and clears the wakeup flag, reporting whether
// it had been set. Changes signaled between two calls collapse into a single
// detected change.
func (p *EventProxy) TakeWakeup() bool {
	return p.wakeup.Swap(false)
}

// bellListener satisfies the engine's bell provider contract.
type bellListener struct {
	proxy *EventProxy
}

func (b bellListener) Ring() {
	b.proxy.Send(Event{Kind: EventBell})
}

// titleListener satisfies the engine's title provider contract. Title
// push/pop (XTWINOPS 22/23) is kept by the engine itself; only the effective
// title change is surfaced.
type titleListener struct {
	proxy *EventProxy
}

func (t titleListener) SetTitle(title string) {
	t.proxy.Send(Event{Kind: EventTitleChanged, Title: title})
}

func (t titleListener) PushTitle() {}

func (t titleListener) PopTitle() {}
