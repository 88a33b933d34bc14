package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// DefaultScriptTimeout bounds one script run when the injector is given none.
const DefaultScriptTimeout = 2 * time.Second

var (
	// ErrScriptTimeout is returned when a script run was interrupted.
	ErrScriptTimeout = errors.New("bridge: script interrupted")
	// ErrPageClosed is returned by Fire after Close.
	ErrPageClosed = errors.New("bridge: page closed")
)

// PageAction is the opaque script injected into a page after it loads.
type PageAction struct {
	Name   string `json:"name"`
	Script string `json:"script"`
}

// DefaultPageAction relays every click on the page as a "clicked" event.
var DefaultPageAction = PageAction{
	Name: "relay-click",
	Script: `page.addEventListener("click", function (e) {
	bridge.notify("clicked", e);
});`,
}

// LoadPageAction reads a script file. An empty path gives DefaultPageAction.
func LoadPageAction(path string) (PageAction, error) {
	if path == "" {
		return DefaultPageAction, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return PageAction{}, fmt.Errorf("read page action: %w", err)
	}
	if strings.TrimSpace(string(src)) == "" {
		return PageAction{}, fmt.Errorf("page action %s is empty", path)
	}
	return PageAction{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Script: string(src),
	}, nil
}

// Injector runs a PageAction against each newly loaded page and keeps the
// resulting pages by session ID.
type Injector struct {
	action  PageAction
	timeout time.Duration
	log     *zap.Logger

	mu    sync.RWMutex
	pages map[string]*Page
}

// NewInjector creates an injector for action.
func NewInjector(action PageAction, timeout time.Duration, log *zap.Logger) *Injector {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Injector{
		action:  action,
		timeout: timeout,
		log:     log.Named("injector"),
		pages:   make(map[string]*Page),
	}
}

// Action returns the injected payload.
func (in *Injector) Action() PageAction { return in.action }

// Inject builds a sandboxed page bound to session and runs the action in it
// once. A failed script leaves no page behind and closes the session.
func (in *Injector) Inject(ctx context.Context, session *Session) (*Page, error) {
	p := &Page{
		ID:        session.ID,
		session:   session,
		vm:        goja.New(),
		listeners: make(map[string][]goja.Callable),
		timeout:   in.timeout,
	}
	if err := p.setupGlobals(); err != nil {
		session.Close()
		return nil, fmt.Errorf("setup page globals: %w", err)
	}

	start := time.Now()
	p.mu.Lock()
	err := p.guarded(ctx, func() error {
		_, err := p.vm.RunScript(in.action.Name, in.action.Script)
		return err
	})
	p.mu.Unlock()
	if err != nil {
		session.Close()
		in.log.Warn("page action failed",
			zap.String("session", session.ID),
			zap.String("action", in.action.Name),
			zap.Error(err),
		)
		return nil, fmt.Errorf("inject %s: %w", in.action.Name, err)
	}

	in.mu.Lock()
	in.pages[p.ID] = p
	in.mu.Unlock()

	in.log.Info("page action injected",
		zap.String("session", session.ID),
		zap.String("action", in.action.Name),
		zap.Duration("took", time.Since(start)),
	)
	return p, nil
}

// Page looks up an injected page.
func (in *Injector) Page(id string) (*Page, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	p, ok := in.pages[id]
	return p, ok
}

// Remove closes and forgets the page with id.
func (in *Injector) Remove(id string) bool {
	in.mu.Lock()
	p, ok := in.pages[id]
	delete(in.pages, id)
	in.mu.Unlock()
	if ok {
		p.Close()
	}
	return ok
}

// Page is one loaded page: a goja VM holding the injected script's
// listeners and the session its notify calls go to.
type Page struct {
	ID string

	session *Session
	timeout time.Duration

	mu        sync.Mutex
	vm        *goja.Runtime
	listeners map[string][]goja.Callable
	closed    bool
}

// Fire dispatches a page event of type typ to the script's listeners and
// returns how many ran.
func (p *Page) Fire(ctx context.Context, typ string, detail any) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrPageClosed
	}

	fns := p.listeners[typ]
	ran := 0
	err := p.guarded(ctx, func() error {
		arg := p.vm.ToValue(detail)
		for _, fn := range fns {
			if _, err := fn(goja.Undefined(), arg); err != nil {
				return err
			}
			ran++
		}
		return nil
	})
	return ran, err
}

// Listeners reports how many listeners are registered for typ.
func (p *Page) Listeners(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners[typ])
}

// Close drops the VM and ends the session.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.vm = nil
	p.listeners = nil
	p.session.Close()
}

// guarded runs fn with the VM interrupted on timeout or ctx cancellation.
// Callers hold p.mu.
func (p *Page) guarded(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			p.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	err := fn()
	close(done)
	<-exited
	p.vm.ClearInterrupt()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("%w: %v", ErrScriptTimeout, interrupted.Value())
	}
	return err
}

func (p *Page) setupGlobals() error {
	vm := p.vm
	vm.SetMaxCallStackSize(1024)

	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	bridge := vm.NewObject()
	if err := bridge.Set("notify", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0)
		if goja.IsUndefined(name) || goja.IsNull(name) || name.String() == "" {
			panic(vm.NewTypeError("bridge.notify: event name required"))
		}
		var detail any
		if d := call.Argument(1); !goja.IsUndefined(d) && !goja.IsNull(d) {
			detail = d.Export()
		}
		p.session.Notify(name.String(), detail)
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := vm.Set("bridge", bridge); err != nil {
		return err
	}

	page := vm.NewObject()
	if err := page.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		typ := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			panic(vm.NewTypeError("page.addEventListener: listener must be a function"))
		}
		p.listeners[typ] = append(p.listeners[typ], fn)
		return goja.Undefined()
	}); err != nil {
		return err
	}
	return vm.Set("page", page)
}
