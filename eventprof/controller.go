package eventprof

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"

	"go.jacobcolvin.com/gpuprof/cupti"
	"go.jacobcolvin.com/gpuprof/log"
	"go.jacobcolvin.com/gpuprof/profiler"
)

// ErrNilLoader indicates [Controller.Start] was called without a config
// loader.
var ErrNilLoader = errors.New("config loader must not be nil")

// EventConfigSource is implemented by config loaders that list the events to
// collect.
type EventConfigSource interface {
	EventConfig() (events []string, samplePeriod time.Duration)
}

// Session is the event collection state for one GPU context.
type Session struct {
	Started      time.Time
	Events       []string
	SamplePeriod time.Duration
	Context      cupti.Context
}

// Controller owns per-context event collection sessions.
//
// Starting a context that already has a session, or stopping one that has
// none, is a logged no-op. Safe for concurrent use.
//
// Create instances with [NewController].
type Controller struct {
	now      func() time.Time
	logger   *slog.Logger
	sessions map[cupti.Context]*Session
	onStop   func(*Session) error
	mu       sync.Mutex
}

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the controller's logger. The default is the shared
// [log.Logger].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithClock replaces [time.Now].
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithStopHook sets a function called with each session as it ends, such as
// a reporter flushing the context's counters. Its error is returned from
// [Controller.Stop].
func WithStopHook(fn func(*Session) error) Option {
	return func(c *Controller) {
		c.onStop = fn
	}
}

// NewController creates an empty [Controller].
func NewController(opts ...Option) *Controller {
	c := &Controller{
		now:      time.Now,
		sessions: make(map[cupti.Context]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start opens a session for ctx using the events listed by loader.
func (c *Controller) Start(ctx cupti.Context, loader profiler.ConfigLoader) error {
	if loader == nil {
		return ErrNilLoader
	}

	s := &Session{Context: ctx}
	if src, ok := loader.(EventConfigSource); ok {
		s.Events, s.SamplePeriod = src.EventConfig()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[ctx]; ok {
		c.log().Warn("event collection already running for context",
			slog.String("context", ctx.String()),
		)

		return nil
	}

	s.Started = c.now()
	c.sessions[ctx] = s

	if len(s.Events) == 0 {
		c.log().Debug("no events configured for context", slog.String("context", ctx.String()))
	} else {
		c.log().Info("started event collection",
			slog.String("context", ctx.String()),
			slog.Any("events", s.Events),
			slog.Duration("sample_period", s.SamplePeriod),
		)
	}

	return nil
}

// Stop ends the session for ctx. Contexts without a session are ignored.
func (c *Controller) Stop(ctx cupti.Context) error {
	c.mu.Lock()
	s, ok := c.sessions[ctx]
	delete(c.sessions, ctx)
	c.mu.Unlock()

	if !ok {
		c.log().Debug("no event collection to stop for context", slog.String("context", ctx.String()))
		return nil
	}

	c.log().Info("stopped event collection",
		slog.String("context", ctx.String()),
		slog.Duration("duration", c.now().Sub(s.Started)),
	)

	if c.onStop == nil {
		return nil
	}

	err := c.onStop(s)
	if err != nil {
		return fmt.Errorf("stopping context %s: %w", ctx, err)
	}

	return nil
}

// Active returns the contexts with a live session, in ascending order.
func (c *Controller) Active() []cupti.Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Sorted(maps.Keys(c.sessions))
}

// Session returns a copy of the session for ctx.
func (c *Controller) Session(ctx cupti.Context) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[ctx]
	if !ok {
		return Session{}, false
	}

	out := *s
	out.Events = slices.Clone(s.Events)

	return out, true
}

// StopAll stops every live session and combines their errors.
func (c *Controller) StopAll() error {
	var err error
	for _, ctx := range c.Active() {
		err = multierr.Append(err, c.Stop(ctx))
	}

	return err
}

func (c *Controller) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}

	return log.Logger()
}

// Nop is the event controller used in CPU-only mode, where no GPU context
// callbacks are registered.
type Nop struct{}

// Start does nothing.
func (Nop) Start(cupti.Context, profiler.ConfigLoader) error { return nil }

// Stop does nothing.
func (Nop) Stop(cupti.Context) error { return nil }

// StopAll does nothing.
func (Nop) StopAll() error { return nil }
