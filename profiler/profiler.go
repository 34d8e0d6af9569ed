package profiler

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrNilProfiler indicates a nil [Profiler] was passed for registration.
	ErrNilProfiler = errors.New("profiler must not be nil")
	// ErrProfilerRegistered indicates a profiler is already registered. The
	// first registration in a process wins.
	ErrProfilerRegistered = errors.New("profiler already registered")
)

// Profiler is a profiler implementation managed by the [API].
type Profiler interface {
	// Init performs one-time activation. It is called at most once, when the
	// first GPU context is created.
	Init()
	// IsActive reports whether the profiler is collecting.
	IsActive() bool
	// Stop ends collection and flushes results.
	Stop() error
}

// ConfigLoader loads profiling configuration on behalf of collaborators.
type ConfigLoader interface {
	// InitBaseConfig (re)loads the base configuration.
	InitBaseConfig()
}

// API is the process-wide profiler facade.
//
// It holds one registered [Profiler] and the [ConfigLoader] shared with event
// collection. The profiler is written once during bootstrap and read from
// callback threads afterwards; both slots are atomic so reads never lock.
//
// Create instances with [NewAPI].
type API struct {
	profiler    atomic.Pointer[Profiler]
	loader      ConfigLoader
	initOnce    sync.Once
	initialized atomic.Bool
}

// NewAPI creates an [API] bound to loader.
func NewAPI(loader ConfigLoader) *API {
	return &API{loader: loader}
}

// RegisterProfiler registers p. Only the first registration succeeds; later
// calls return [ErrProfilerRegistered] and leave the registered profiler in
// place.
func (a *API) RegisterProfiler(p Profiler) error {
	if p == nil {
		return ErrNilProfiler
	}

	if !a.profiler.CompareAndSwap(nil, &p) {
		return ErrProfilerRegistered
	}

	return nil
}

// IsProfilerRegistered reports whether a profiler has been registered.
func (a *API) IsProfilerRegistered() bool {
	return a.profiler.Load() != nil
}

// Profiler returns the registered profiler, or nil.
func (a *API) Profiler() Profiler {
	p := a.profiler.Load()
	if p == nil {
		return nil
	}

	return *p
}

// InitProfilerIfRegistered calls Init on the registered profiler the first
// time it is called with a profiler present. It reports whether the profiler
// is initialized after the call.
func (a *API) InitProfilerIfRegistered() bool {
	p := a.Profiler()
	if p == nil {
		return false
	}

	a.initOnce.Do(func() {
		p.Init()
		a.initialized.Store(true)
	})

	return a.initialized.Load()
}

// IsProfilerInitialized reports whether the registered profiler's Init has
// completed.
func (a *API) IsProfilerInitialized() bool {
	return a.initialized.Load()
}

// ConfigLoader returns the loader the API was created with.
func (a *API) ConfigLoader() ConfigLoader {
	return a.loader
}
