package bridge

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youruser/imageviewer/internal/ui"
)

func startLoop(t *testing.T) *ui.Loop {
	t.Helper()
	l := ui.NewLoop(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func flush(t *testing.T, l *ui.Loop) {
	t.Helper()
	require.NoError(t, l.Call(context.Background(), func() {}))
}

func TestSession_DeliversInOrderOnLoop(t *testing.T) {
	loop := startLoop(t)
	tr := NewTransport(loop)

	var got []uint64
	tr.Handle("tick", func(ev Event) { got = append(got, ev.Seq) })

	s := tr.OpenSession()
	for i := 0; i < 50; i++ {
		s.Notify("tick", i)
	}
	flush(t, loop)

	require.Len(t, got, 50)
	for i, seq := range got {
		assert.Equal(t, uint64(i+1), seq)
	}
}

func TestSession_ConcurrentNotifyKeepsSeqOrder(t *testing.T) {
	loop := startLoop(t)
	tr := NewTransport(loop)

	var got []uint64
	tr.Handle("tick", func(ev Event) { got = append(got, ev.Seq) })

	s := tr.OpenSession()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s.Notify("tick", nil)
			}
		}()
	}
	wg.Wait()
	flush(t, loop)

	require.Len(t, got, 200)
	for i, seq := range got {
		assert.Equal(t, uint64(i+1), seq)
	}
}

func TestTransport_UnknownEventDropped(t *testing.T) {
	loop := startLoop(t)

	type delivery struct {
		name    string
		handled bool
	}
	var seen []delivery
	tr := NewTransport(loop, WithDeliveryObserver(func(name string, handled bool) {
		seen = append(seen, delivery{name, handled})
	}))
	tr.Handle("known", func(Event) {})

	s := tr.OpenSession()
	s.Notify("mystery", nil)
	s.Notify("known", nil)
	flush(t, loop)

	assert.Equal(t, []delivery{{"mystery", false}, {"known", true}}, seen)
}

func TestSession_NotifyAfterClose(t *testing.T) {
	loop := startLoop(t)
	tr := NewTransport(loop)
	calls := 0
	tr.Handle("x", func(Event) { calls++ })

	s := tr.OpenSession()
	s.Close()
	s.Notify("x", nil)
	flush(t, loop)

	assert.True(t, s.Closed())
	assert.Zero(t, calls)
}

func TestSessions_HaveDistinctIDs(t *testing.T) {
	tr := NewTransport(ui.NewLoop(nil))
	assert.NotEqual(t, tr.OpenSession().ID, tr.OpenSession().ID)
}

func TestHistory_KeepsNewest(t *testing.T) {
	h := NewHistory(3)
	assert.Empty(t, h.Events())

	for i := 1; i <= 5; i++ {
		h.Record(Event{Seq: uint64(i)})
	}

	evs := h.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, uint64(3), evs[0].Seq)
	assert.Equal(t, uint64(5), evs[2].Seq)
	assert.Equal(t, 3, h.Len())
}

func TestHistory_DefaultSize(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < DefaultHistorySize+10; i++ {
		h.Record(Event{})
	}
	assert.Equal(t, DefaultHistorySize, h.Len())
}

func TestInjector_DefaultActionRelaysClick(t *testing.T) {
	loop := startLoop(t)
	tr := NewTransport(loop)
	hist := NewHistory(10)
	tr.Handle("clicked", hist.Record)

	in := NewInjector(DefaultPageAction, time.Second, nil)
	page, err := in.Inject(context.Background(), tr.OpenSession())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Listeners("click"))

	n, err := page.Fire(context.Background(), "click", map[string]any{"x": 10, "y": 20})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	flush(t, loop)

	evs := hist.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "clicked", evs[0].Name)
	assert.Equal(t, page.ID, evs[0].Session)
	detail, ok := evs[0].Detail.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 10, detail["x"])

	got, ok := in.Page(page.ID)
	require.True(t, ok)
	assert.Same(t, page, got)
}

func TestInjector_EventWithoutListener(t *testing.T) {
	tr := NewTransport(startLoop(t))
	in := NewInjector(DefaultPageAction, time.Second, nil)
	page, err := in.Inject(context.Background(), tr.OpenSession())
	require.NoError(t, err)

	n, err := page.Fire(context.Background(), "scroll", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInjector_SandboxHidesHostGlobals(t *testing.T) {
	tr := NewTransport(startLoop(t))
	action := PageAction{Name: "probe", Script: `
if (typeof require !== "undefined" || typeof process !== "undefined") {
	throw new Error("host globals visible");
}`}
	_, err := NewInjector(action, time.Second, nil).Inject(context.Background(), tr.OpenSession())
	assert.NoError(t, err)
}

func TestInjector_ScriptErrorClosesSession(t *testing.T) {
	tr := NewTransport(startLoop(t))
	s := tr.OpenSession()
	in := NewInjector(PageAction{Name: "bad", Script: `throw new Error("nope")`}, time.Second, nil)

	_, err := in.Inject(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
	assert.True(t, s.Closed())
	_, ok := in.Page(s.ID)
	assert.False(t, ok)
}

func TestInjector_RunawayScriptInterrupted(t *testing.T) {
	tr := NewTransport(startLoop(t))
	in := NewInjector(PageAction{Name: "spin", Script: `for (;;) {}`}, 50*time.Millisecond, nil)

	start := time.Now()
	_, err := in.Inject(context.Background(), tr.OpenSession())
	assert.ErrorIs(t, err, ErrScriptTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPage_RunawayListenerInterruptedAndPageReusable(t *testing.T) {
	loop := startLoop(t)
	tr := NewTransport(loop)
	hist := NewHistory(10)
	tr.Handle("ok", hist.Record)

	action := PageAction{Name: "mixed", Script: `
page.addEventListener("spin", function () { for (;;) {} });
page.addEventListener("ping", function () { bridge.notify("ok"); });`}
	page, err := NewInjector(action, 50*time.Millisecond, nil).Inject(context.Background(), tr.OpenSession())
	require.NoError(t, err)

	_, err = page.Fire(context.Background(), "spin", nil)
	assert.ErrorIs(t, err, ErrScriptTimeout)

	n, err := page.Fire(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	flush(t, loop)
	assert.Equal(t, 1, hist.Len())
}

func TestPage_NotifyRequiresName(t *testing.T) {
	tr := NewTransport(startLoop(t))
	_, err := NewInjector(PageAction{Name: "noname", Script: `bridge.notify()`}, time.Second, nil).
		Inject(context.Background(), tr.OpenSession())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event name required")
}

func TestInjector_RemoveClosesPage(t *testing.T) {
	tr := NewTransport(startLoop(t))
	in := NewInjector(DefaultPageAction, time.Second, nil)
	page, err := in.Inject(context.Background(), tr.OpenSession())
	require.NoError(t, err)

	assert.True(t, in.Remove(page.ID))
	assert.False(t, in.Remove(page.ID))

	_, err = page.Fire(context.Background(), "click", nil)
	assert.ErrorIs(t, err, ErrPageClosed)
}

func TestLoadPageAction(t *testing.T) {
	a, err := LoadPageAction("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPageAction, a)

	dir := t.TempDir()
	path := filepath.Join(dir, "highlight.js")
	require.NoError(t, os.WriteFile(path, []byte(`bridge.notify("ready")`), 0o644))
	a, err = LoadPageAction(path)
	require.NoError(t, err)
	assert.Equal(t, "highlight", a.Name)

	empty := filepath.Join(dir, "empty.js")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	_, err = LoadPageAction(empty)
	assert.Error(t, err)

	_, err = LoadPageAction(filepath.Join(dir, "missing.js"))
	assert.Error(t, err)
}
