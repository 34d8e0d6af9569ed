package cupti

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"go.jacobcolvin.com/gpuprof/log"
)

var (
	// ErrBackendUnavailable indicates the vendor profiling library could not
	// be loaded or initialized.
	ErrBackendUnavailable = errors.New("profiling backend unavailable")
	// ErrUnsupportedCallback indicates a domain/callback pair this gateway
	// cannot subscribe to.
	ErrUnsupportedCallback = errors.New("unsupported callback")
	// ErrCallbackNotRegistered indicates an enable or disable request for a
	// callback that has no registered handlers.
	ErrCallbackNotRegistered = errors.New("callback not registered")
	// ErrNilCallback indicates a nil [Callback] was passed for registration.
	ErrNilCallback = errors.New("callback must not be nil")
)

// Gateway registers lifecycle callbacks with the vendor runtime.
//
// Implementations report failures through their boolean results and
// [Gateway.LastError]; they never panic.
type Gateway interface {
	// InitSuccess reports whether the vendor backend is reachable. Callers
	// query it before any registration attempt.
	InitSuccess() bool
	// RegisterCallback associates cb with id in domain.
	RegisterCallback(domain Domain, id CallbackID, cb Callback) bool
	// EnableCallback activates previously registered callbacks for id.
	EnableCallback(domain Domain, id CallbackID) bool
	// DisableCallback deactivates callbacks for id without removing them.
	DisableCallback(domain Domain, id CallbackID) bool
	// LastError returns the most recent failure, or nil.
	LastError() error
}

// CallbackAPI is the [Gateway] backed by the NVIDIA management library.
//
// The library is loaded and initialized lazily on the first call to
// [CallbackAPI.InitSuccess], and the outcome is kept for the lifetime of the
// value. Events reach subscribers through [CallbackAPI.Dispatch], which the
// host bridge calls from the vendor runtime's threads.
//
// Safe for concurrent use. Create instances with [NewCallbackAPI].
type CallbackAPI struct {
	lib    nvml.Interface
	logger *slog.Logger

	initErr  error
	initOnce sync.Once
	ready    atomic.Bool

	callbacks map[CallbackID][]Callback
	enabled   map[CallbackID]bool
	lastErr   error
	mu        sync.RWMutex
}

// Option configures a [CallbackAPI].
type Option func(*CallbackAPI)

// WithLibrary sets the NVML library used to probe the backend. The default is
// [nvml.New] with no options.
func WithLibrary(lib nvml.Interface) Option {
	return func(a *CallbackAPI) {
		a.lib = lib
	}
}

// WithLogger sets the logger. The default is the shared [log.Logger].
func WithLogger(l *slog.Logger) Option {
	return func(a *CallbackAPI) {
		a.logger = l
	}
}

// NewCallbackAPI creates a [CallbackAPI]. It does not touch the backend.
func NewCallbackAPI(opts ...Option) *CallbackAPI {
	a := &CallbackAPI{
		callbacks: make(map[CallbackID][]Callback),
		enabled:   make(map[CallbackID]bool),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.lib == nil {
		a.lib = nvml.New()
	}

	return a
}

// log returns the configured logger, or the shared component logger.
func (a *CallbackAPI) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}

	return log.Logger()
}

// InitSuccess loads and initializes the backend on first use and reports
// whether that succeeded.
func (a *CallbackAPI) InitSuccess() bool {
	a.initOnce.Do(func() {
		ret := a.lib.Init()
		if ret != nvml.SUCCESS {
			a.initErr = fmt.Errorf("%w: %w", ErrBackendUnavailable, ret)
			a.setLastError(a.initErr)

			return
		}

		a.ready.Store(true)
		a.log().Debug("profiling backend initialized")
	})

	return a.initErr == nil
}

// RegisterCallback appends cb to the callbacks for id. Callbacks run in
// registration order and start disabled.
func (a *CallbackAPI) RegisterCallback(domain Domain, id CallbackID, cb Callback) bool {
	if err := a.check(domain, id); err != nil {
		a.setLastError(err)
		return false
	}

	if cb == nil {
		a.setLastError(ErrNilCallback)
		return false
	}

	a.mu.Lock()
	a.callbacks[id] = append(a.callbacks[id], cb)
	a.mu.Unlock()

	a.log().Debug("registered callback",
		slog.String("domain", domain.String()),
		slog.String("callback", id.String()),
	)

	return true
}

// EnableCallback starts delivering id events to its callbacks.
func (a *CallbackAPI) EnableCallback(domain Domain, id CallbackID) bool {
	return a.setEnabled(domain, id, true)
}

// DisableCallback stops delivering id events. Registered callbacks are kept.
func (a *CallbackAPI) DisableCallback(domain Domain, id CallbackID) bool {
	return a.setEnabled(domain, id, false)
}

// DeleteCallbacks disables id and removes all of its callbacks.
func (a *CallbackAPI) DeleteCallbacks(domain Domain, id CallbackID) bool {
	if err := a.check(domain, id); err != nil {
		a.setLastError(err)
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.callbacks[id]) == 0 {
		a.lastErr = fmt.Errorf("%w: %s", ErrCallbackNotRegistered, id)
		return false
	}

	delete(a.callbacks, id)
	delete(a.enabled, id)

	return true
}

// LastError returns the most recent failure recorded by any operation.
func (a *CallbackAPI) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.lastErr
}

// Dispatch delivers an event to the enabled callbacks for id. A panicking
// callback is logged and does not prevent later callbacks from running;
// nothing propagates back to the caller.
func (a *CallbackAPI) Dispatch(domain Domain, id CallbackID, data *ResourceData) {
	d, ok := id.domain()
	if !ok || d != domain {
		return
	}

	a.mu.RLock()
	if !a.enabled[id] {
		a.mu.RUnlock()
		return
	}

	cbs := make([]Callback, len(a.callbacks[id]))
	copy(cbs, a.callbacks[id])
	a.mu.RUnlock()

	for _, cb := range cbs {
		a.invoke(cb, domain, id, data)
	}
}

// DispatchRaw is [CallbackAPI.Dispatch] for raw vendor ids. Events that do
// not map to a [CallbackID] are ignored.
func (a *CallbackAPI) DispatchRaw(domain Domain, raw uint32, ctx Context) {
	id, ok := CallbackIDFromRaw(domain, raw)
	if !ok {
		return
	}

	a.Dispatch(domain, id, &ResourceData{Context: ctx})
}

// Close shuts the backend down if it was initialized. Later calls are
// no-ops.
func (a *CallbackAPI) Close() error {
	if !a.ready.CompareAndSwap(true, false) {
		return nil
	}

	ret := a.lib.Shutdown()
	if ret != nvml.SUCCESS {
		return fmt.Errorf("shutting down profiling backend: %w", ret)
	}

	return nil
}

func (a *CallbackAPI) invoke(cb Callback, domain Domain, id CallbackID, data *ResourceData) {
	defer func() {
		if r := recover(); r != nil {
			a.log().Error("callback panicked",
				slog.String("domain", domain.String()),
				slog.String("callback", id.String()),
				slog.Any("panic", r),
			)
		}
	}()

	cb(domain, id, data)
}

func (a *CallbackAPI) setEnabled(domain Domain, id CallbackID, enable bool) bool {
	if err := a.check(domain, id); err != nil {
		a.setLastError(err)
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.callbacks[id]) == 0 {
		a.lastErr = fmt.Errorf("%w: %s", ErrCallbackNotRegistered, id)
		return false
	}

	a.enabled[id] = enable

	return true
}

// check validates that the backend is up and that id lives in domain.
func (a *CallbackAPI) check(domain Domain, id CallbackID) error {
	if !a.InitSuccess() {
		return a.initErr
	}

	d, ok := id.domain()
	if !ok || d != domain {
		return fmt.Errorf("%w: %s in %s domain", ErrUnsupportedCallback, id, domain)
	}

	return nil
}

func (a *CallbackAPI) setLastError(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}
