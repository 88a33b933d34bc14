// Package ui provides the single thread that owns all display state.
package ui

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Call once the loop has stopped.
var ErrClosed = errors.New("ui: loop closed")

// Loop runs posted tasks one at a time, in the order they were posted.
// Post never blocks, so background work can hand results back without
// waiting on the loop.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	stopped chan struct{}
	log     *zap.Logger
}

// NewLoop creates a stopped loop; call Run to start it.
func NewLoop(log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		log:     log.Named("ui"),
	}
}

// Post queues fn. It reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes tasks until ctx is done or Close is called. Tasks still
// queued at that point are dropped.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	for {
		for _, fn := range l.drain() {
			if l.isClosed() {
				break
			}
			l.exec(fn)
		}
		select {
		case <-ctx.Done():
			l.Close()
			return
		case <-l.wake:
			if l.isClosed() {
				return
			}
		}
	}
}

// Close stops the loop after the running task returns.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.stopped }

// Call runs fn on the loop and waits for it. It must not be called from
// the loop itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrClosed
	}
}

func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	q := l.queue
	l.queue = nil
	return q
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			l.log.Error("task panicked", zap.Any("panic", v))
		}
	}()
	fn()
}
