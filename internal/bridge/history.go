package bridge

import "sync"

// DefaultHistorySize is used when NewHistory gets a non-positive size.
const DefaultHistorySize = 100

// History keeps the most recent events. Record has the Handler signature so
// it can be registered on a Transport directly.
type History struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]Event, size)}
}

// Record stores ev, evicting the oldest event when full.
func (h *History) Record(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = ev
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// Events returns the stored events, oldest first.
func (h *History) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]Event(nil), h.buf[:h.next]...)
	}
	out := make([]Event, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}
