// Package viewer is the image URL tool: a text entry, a load trigger and a
// display surface, all owned by the UI loop.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	imagepkg "github.com/youruser/imageviewer/internal/image"
	"github.com/youruser/imageviewer/internal/ui"
)

// TriggerLoad is the trigger wired to the load button.
const TriggerLoad = "load"

// ErrUnknownTrigger is returned by Trigger for names with no handler.
var ErrUnknownTrigger = errors.New("viewer: unknown trigger")

// Loader starts one load and reports its outcome once, from any goroutine.
type Loader interface {
	Start(ctx context.Context, raw string, target imagepkg.Size, done func(imagepkg.Outcome))
}

// Options tunes how completions are applied.
type Options struct {
	// StaleGuard drops a completion when a newer load was started after it.
	StaleGuard bool
	// SingleFlight ignores the load trigger while a load is running.
	SingleFlight bool
	// Target is the initial display area.
	Target imagepkg.Size
}

// Viewer wires a Loader to a Display through the UI loop. Every field
// below mu is touched only from loop tasks.
type Viewer struct {
	ctx     context.Context
	loop    *ui.Loop
	loader  Loader
	display Display
	opts    Options
	log     *zap.Logger

	mu       sync.RWMutex
	handlers map[string]func()

	url        string
	target     imagepkg.Size
	generation uint64
	inFlight   int
	applied    uint64
	discarded  uint64
}

// State is a copy of the viewer's loop-owned fields.
type State struct {
	URL        string        `json:"url"`
	Target     imagepkg.Size `json:"target"`
	Generation uint64        `json:"generation"`
	InFlight   int           `json:"in_flight"`
	Applied    uint64        `json:"applied"`
	Discarded  uint64        `json:"discarded"`
}

// New creates a Viewer with the load trigger registered. ctx bounds every
// load it starts.
func New(ctx context.Context, loop *ui.Loop, loader Loader, display Display, opts Options, log *zap.Logger) *Viewer {
	if log == nil {
		log = zap.NewNop()
	}
	v := &Viewer{
		ctx:      ctx,
		loop:     loop,
		loader:   loader,
		display:  display,
		opts:     opts,
		log:      log.Named("viewer"),
		handlers: make(map[string]func()),
		target:   opts.Target,
	}
	v.On(TriggerLoad, v.load)
	return v
}

// On registers fn under name; fn runs on the loop when name is triggered.
func (v *Viewer) On(name string, fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers[name] = fn
}

// Trigger queues the handler registered under name.
func (v *Viewer) Trigger(name string) error {
	v.mu.RLock()
	fn, ok := v.handlers[name]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
	}
	if !v.loop.Post(fn) {
		return ui.ErrClosed
	}
	return nil
}

// SetURL updates the text entry.
func (v *Viewer) SetURL(raw string) bool {
	return v.loop.Post(func() { v.url = raw })
}

// SetTarget updates the display area used by the next load.
func (v *Viewer) SetTarget(size imagepkg.Size) bool {
	return v.loop.Post(func() { v.target = size })
}

// State reads the loop-owned fields.
func (v *Viewer) State(ctx context.Context) (State, error) {
	var s State
	err := v.loop.Call(ctx, func() {
		s = State{
			URL:        v.url,
			Target:     v.target,
			Generation: v.generation,
			InFlight:   v.inFlight,
			Applied:    v.applied,
			Discarded:  v.discarded,
		}
	})
	return s, err
}

func (v *Viewer) load() {
	if v.opts.SingleFlight && v.inFlight > 0 {
		v.log.Debug("load ignored, one already running")
		return
	}
	v.generation++
	gen := v.generation
	v.inFlight++

	v.log.Debug("load started", zap.Uint64("generation", gen), zap.String("url", v.url))
	v.loader.Start(v.ctx, v.url, v.target, func(out imagepkg.Outcome) {
		if !v.loop.Post(func() { v.complete(gen, out) }) {
			v.log.Warn("loop closed, outcome dropped", zap.String("id", out.ID))
		}
	})
}

func (v *Viewer) complete(gen uint64, out imagepkg.Outcome) {
	v.inFlight--
	if v.opts.StaleGuard && gen != v.generation {
		v.discarded++
		v.log.Debug("stale outcome discarded",
			zap.Uint64("generation", gen),
			zap.Uint64("latest", v.generation),
			zap.String("kind", out.Kind().String()),
		)
		return
	}
	v.applied++
	if out.OK() {
		v.display.ShowImage(out.Rendered)
		return
	}
	v.display.ShowStatus(out.Message())
}
