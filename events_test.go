package terminal

import (
	"sync"
	"testing"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) sink(id SessionID, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func TestEventProxyCoalescesContentChanges(t *testing.T) {
	proxy := newEventProxy(1, NopLogger{}, nil)

	proxy.Send(Event{Kind: EventContentChanged})
	proxy.Send(Event{Kind: EventContentChanged})
	proxy.Send(Event{Kind: EventContentChanged})

	if !proxy.TakeWakeup() {
		t.Fatal("expected pending wakeup after content changes")
	}
	if proxy.TakeWakeup() {
		t.Fatal("expected wakeup to be cleared after take")
	}

	proxy.Send(Event{Kind: EventContentChanged})
	if !proxy.TakeWakeup() {
		t.Fatal("expected wakeup to be set again after new change")
	}
}

func TestEventProxyForwardsSideEvents(t *testing.T) {
	rec := &recordingSink{}
	proxy := newEventProxy(7, NopLogger{}, rec.sink)

	proxy.Send(Event{Kind: EventTitleChanged, Title: "vim"})
	proxy.Send(Event{Kind: EventBell})
	proxy.Send(Event{Kind: EventProcessExited})
	proxy.Send(Event{Kind: EventContentChanged})
	proxy.Flush()

	kinds := rec.kinds()
	want := []EventKind{EventTitleChanged, EventBell, EventProcessExited}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d sink events, got %d", len(want), len(kinds))
	}
	for i, kind := range want {
		if kinds[i] != kind {
			t.Fatalf("event %d: got %v, want %v", i, kinds[i], kind)
		}
	}

	rec.mu.Lock()
	title := rec.events[0].Title
	rec.mu.Unlock()
	if title != "vim" {
		t.Fatalf("expected title to be forwarded, got %q", title)
	}
}

func TestTitleListenerForwardsTitle(t *testing.T) {
	rec := &recordingSink{}
	proxy := newEventProxy(3, NopLogger{}, rec.sink)
	listener := titleListener{proxy: proxy}

	listener.SetTitle("htop")
	proxy.Flush()

	kinds := rec.kinds()
	if len(kinds) != 1 || kinds[0] != EventTitleChanged {
		t.Fatalf("expected one title event, got %v", kinds)
	}
}

func TestBellListenerSetsNoWakeup(t *testing.T) {
	rec := &recordingSink{}
	proxy := newEventProxy(3, NopLogger{}, rec.sink)
	listener := bellListener{proxy: proxy}

	listener.Ring()
	proxy.Flush()

	if proxy.TakeWakeup() {
		t.Fatal("bell must not set the content wakeup flag")
	}
	kinds := rec.kinds()
	if len(kinds) != 1 || kinds[0] != EventBell {
		t.Fatalf("expected one bell event, got %v", kinds)
	}
}

func TestEventProxyDefersSinkUntilFlush(t *testing.T) {
	rec := &recordingSink{}
	proxy := newEventProxy(9, NopLogger{}, rec.sink)

	// Side events raised mid-interpretation stay queued until the caller
	// releases its locks and flushes.
	proxy.Send(Event{Kind: EventTitleChanged, Title: "make"})
	proxy.Send(Event{Kind: EventBell})
	if got := rec.kinds(); len(got) != 0 {
		t.Fatalf("sink invoked before flush: %v", got)
	}

	proxy.Flush()
	want := []EventKind{EventTitleChanged, EventBell}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %d events after flush, got %v", len(want), got)
	}
	for i, kind := range want {
		if got[i] != kind {
			t.Fatalf("event %d: got %v, want %v", i, got[i], kind)
		}
	}

	// A second flush delivers nothing.
	proxy.Flush()
	if got := rec.kinds(); len(got) != len(want) {
		t.Fatalf("flush re-delivered drained events: %v", got)
	}
}
