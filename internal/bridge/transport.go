// Package bridge relays events raised by an injected page script to native
// handlers running on the UI loop. Delivery is fire-and-forget: no
// acknowledgment, no replay, in order within one page session.
package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/youruser/imageviewer/internal/ui"
)

// Event is one notify call from a page.
type Event struct {
	Session string    `json:"session"`
	Seq     uint64    `json:"seq"`
	Name    string    `json:"name"`
	Detail  any       `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Handler consumes an event on the UI loop.
type Handler func(Event)

// DeliveryObserver is told about every dispatched event and whether any
// handler took it.
type DeliveryObserver func(name string, handled bool)

// Transport owns the handler table and hands events to the loop.
type Transport struct {
	loop     *ui.Loop
	log      *zap.Logger
	observer DeliveryObserver

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithLogger sets the transport logger.
func WithLogger(l *zap.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// WithDeliveryObserver registers o for every dispatched event.
func WithDeliveryObserver(o DeliveryObserver) TransportOption {
	return func(t *Transport) { t.observer = o }
}

// NewTransport creates a transport delivering on loop.
func NewTransport(loop *ui.Loop, opts ...TransportOption) *Transport {
	t := &Transport{
		loop:     loop,
		log:      zap.NewNop(),
		handlers: make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.Named("bridge")
	return t
}

// Handle adds h for events called name. Several handlers may share a name;
// they run in registration order.
func (t *Transport) Handle(name string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = append(t.handlers[name], h)
}

// Names lists the event names with at least one handler.
func (t *Transport) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	return names
}

// OpenSession starts a page session with a fresh ID and sequence.
func (t *Transport) OpenSession() *Session {
	return &Session{ID: uuid.NewString(), t: t}
}

func (t *Transport) post(ev Event) {
	if !t.loop.Post(func() { t.dispatch(ev) }) {
		t.log.Debug("loop closed, event dropped",
			zap.String("session", ev.Session),
			zap.String("event", ev.Name),
		)
	}
}

func (t *Transport) dispatch(ev Event) {
	t.mu.RLock()
	hs := t.handlers[ev.Name]
	t.mu.RUnlock()

	if t.observer != nil {
		t.observer(ev.Name, len(hs) > 0)
	}
	if len(hs) == 0 {
		t.log.Warn("no handler for event, dropped",
			zap.String("session", ev.Session),
			zap.String("event", ev.Name),
			zap.Uint64("seq", ev.Seq),
		)
		return
	}
	for _, h := range hs {
		h(ev)
	}
}

// Session is one page's channel. Events notified on a session reach the
// handlers in the order Notify was called.
type Session struct {
	ID string
	t  *Transport

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// Notify queues an event for delivery on the loop and returns at once.
// It is a no-op after Close.
func (s *Session) Notify(name string, detail any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	// posting under the lock keeps loop order equal to seq order
	s.t.post(Event{
		Session: s.ID,
		Seq:     s.seq,
		Name:    name,
		Detail:  detail,
		At:      time.Now(),
	})
}

// Close ends the session. Events already queued are still delivered.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
