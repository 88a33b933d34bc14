package imagepkg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a step of one pipeline run.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateFetching
	StateGating
	StateDecoding
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateFetching:
		return "fetching"
	case StateGating:
		return "gating"
	case StateDecoding:
		return "decoding"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is the terminal result of one run: exactly one of Rendered or
// Err is set.
type Outcome struct {
	ID       string
	URL      string
	Rendered *Rendered
	Err      *Error
	Elapsed  time.Duration
}

// OK reports whether the run produced an image.
func (o Outcome) OK() bool { return o.Err == nil && o.Rendered != nil }

// Kind is KindNone on success.
func (o Outcome) Kind() Kind {
	if o.Err == nil {
		return KindNone
	}
	return o.Err.Kind
}

// Message is the status line for the outcome.
func (o Outcome) Message() string {
	if o.Err != nil {
		return o.Err.Message()
	}
	return "Image loaded."
}

// Observer sees every state transition of every run.
type Observer func(id string, from, to State)

// Recorder receives per-run measurements.
type Recorder interface {
	ObserveOutcome(kind string, elapsed time.Duration)
	ObserveBytes(n int)
}

// Pipeline validates, fetches, gates and renders one URL per run. Runs
// share no state and may execute concurrently.
type Pipeline struct {
	policy   Policy
	fetcher  *Fetcher
	renderer *Renderer
	log      *zap.Logger
	observer Observer
	recorder Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithFetcher replaces the default fetcher.
func WithFetcher(f *Fetcher) Option {
	return func(p *Pipeline) {
		p.fetcher = f
	}
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithRecorder registers a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// New builds a Pipeline for policy.
func New(policy Policy, opts ...Option) *Pipeline {
	policy = policy.withDefaults()
	p := &Pipeline{
		policy: policy,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named("pipeline")
	if p.fetcher == nil {
		p.fetcher = NewFetcher(policy, WithFetchLogger(p.log))
	}
	p.renderer = NewRenderer(policy.MaxPixels)
	return p
}

// Policy returns the limits this pipeline enforces.
func (p *Pipeline) Policy() Policy { return p.policy }

// Start runs the pipeline in its own goroutine and hands the outcome to
// done exactly once. done runs on that goroutine; callers post it to
// their own thread.
func (p *Pipeline) Start(ctx context.Context, raw string, target Size, done func(Outcome)) {
	go func() {
		done(p.Run(ctx, raw, target))
	}()
}

// Run executes one invocation and always returns a terminal outcome.
func (p *Pipeline) Run(ctx context.Context, raw string, target Size) (out Outcome) {
	r := &run{p: p, id: uuid.NewString(), state: StateIdle, start: time.Now()}
	out.ID = r.id
	out.URL = raw

	defer func() {
		if v := recover(); v != nil {
			out.Rendered = nil
			out.Err = newError(KindUnexpected, fmt.Errorf("panic: %v", v))
			p.log.Error("pipeline panic", zap.String("id", r.id), zap.Any("panic", v))
		}
		r.to(StateDone)
		out.Elapsed = time.Since(r.start)
		p.finish(out)
	}()

	rendered, err := r.execute(ctx, raw, target)
	if err != nil {
		out.Err = asError(err)
		return out
	}
	out.Rendered = rendered
	return out
}

func (p *Pipeline) finish(out Outcome) {
	fields := []zap.Field{
		zap.String("id", out.ID),
		zap.String("kind", out.Kind().String()),
		zap.Duration("elapsed", out.Elapsed),
	}
	if out.OK() {
		b := out.Rendered.Bounds()
		p.log.Info("image loaded", append(fields, zap.Int("width", b.Width), zap.Int("height", b.Height))...)
	} else {
		p.log.Info("image load failed", append(fields, zap.Error(out.Err))...)
	}
	if p.recorder != nil {
		p.recorder.ObserveOutcome(out.Kind().String(), out.Elapsed)
	}
}

// run is the per-invocation state. Nothing in it outlives Run.
type run struct {
	p     *Pipeline
	id    string
	state State
	start time.Time
}

func (r *run) to(next State) {
	prev := r.state
	r.state = next
	if r.p.observer != nil {
		r.p.observer(r.id, prev, next)
	}
}

func (r *run) execute(ctx context.Context, raw string, target Size) (*Rendered, error) {
	r.to(StateValidating)
	u, err := ValidateURL(raw, r.p.policy.AllowedExtensions)
	if err != nil {
		return nil, err
	}

	r.to(StateFetching)
	resp, err := r.p.fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	r.to(StateGating)
	payload, err := Gate(resp, r.p.policy.MaxBytes)
	if err != nil {
		return nil, err
	}
	if r.p.recorder != nil {
		r.p.recorder.ObserveBytes(len(payload.Data))
	}
	r.p.log.Debug("payload accepted",
		zap.String("id", r.id),
		zap.Int("bytes", len(payload.Data)),
		zap.String("content_type", payload.ContentType),
		zap.String("detected", payload.Detected),
	)

	r.to(StateDecoding)
	rendered, err := r.p.renderer.Render(payload.Data, target)
	if err != nil {
		r.p.log.Debug("decode failed", zap.String("id", r.id), zap.String("detected", payload.Detected), zap.Error(err))
		return nil, err
	}
	return rendered, nil
}
