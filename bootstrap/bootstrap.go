package bootstrap

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"go.uber.org/multierr"

	"go.jacobcolvin.com/gpuprof/config"
	"go.jacobcolvin.com/gpuprof/cupti"
	"go.jacobcolvin.com/gpuprof/eventprof"
	"go.jacobcolvin.com/gpuprof/lifecycle"
	"go.jacobcolvin.com/gpuprof/log"
	"go.jacobcolvin.com/gpuprof/profiler"
	"go.jacobcolvin.com/gpuprof/version"
)

// PermissionsHelpURL explains how to grant access to GPU performance
// counters.
const PermissionsHelpURL = "https://developer.nvidia.com/nvidia-development-tools-solutions-err-nvgpuctrperm-cupti"

// EventController is the per-context event collection strategy chosen at
// initialization.
type EventController interface {
	lifecycle.EventController
	StopAll() error
}

// Bootstrapper wires the callback gateway, the lifecycle handler, and the
// profiler registry together.
//
// Only the first [Bootstrapper.Initialize] call does any work; later calls
// return its result. Safe for concurrent use.
//
// Create instances with [New].
type Bootstrapper struct {
	gateway   cupti.Gateway
	api       *profiler.API
	loader    profiler.ConfigLoader
	newEvents func(cpuOnly bool) EventController
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
	gate      lifecycle.Gate

	events     EventController
	backendErr error
	mu         sync.Mutex
	done       bool
	success    bool
	registered bool
}

// Option configures a [Bootstrapper].
type Option func(*Bootstrapper)

// WithGateway sets the callback gateway. The default is a
// [cupti.CallbackAPI] backed by the system NVML library.
func WithGateway(g cupti.Gateway) Option {
	return func(b *Bootstrapper) {
		b.gateway = g
	}
}

// WithRegistry sets the profiler registry. Its config loader takes
// precedence over [WithConfigLoader].
func WithRegistry(api *profiler.API) Option {
	return func(b *Bootstrapper) {
		b.api = api
	}
}

// WithConfigLoader sets the config loader used by the default registry. The
// default is a [config.Loader].
func WithConfigLoader(l profiler.ConfigLoader) Option {
	return func(b *Bootstrapper) {
		b.loader = l
	}
}

// WithEventController sets the factory for the event collection strategy.
// The default returns an [eventprof.Controller], or [eventprof.Nop] in
// CPU-only mode.
func WithEventController(fn func(cpuOnly bool) EventController) Option {
	return func(b *Bootstrapper) {
		b.newEvents = fn
	}
}

// WithLogger sets the logger. The default is the shared [log.Logger].
func WithLogger(l *slog.Logger) Option {
	return func(b *Bootstrapper) {
		b.logger = l
	}
}

// WithLookupEnv replaces [os.LookupEnv].
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(b *Bootstrapper) {
		b.lookupEnv = fn
	}
}

// New creates a [Bootstrapper]. It does not touch the GPU backend.
func New(opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		lookupEnv: os.LookupEnv,
		newEvents: defaultEvents,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.gateway == nil {
		b.gateway = cupti.NewCallbackAPI(cupti.WithLogger(b.logger))
	}

	switch {
	case b.api != nil:
		b.loader = b.api.ConfigLoader()
	case b.loader != nil:
		b.api = profiler.NewAPI(b.loader)
	default:
		b.loader = config.NewLoader(config.WithLookupEnv(b.lookupEnv), config.WithLogger(b.logger))
		b.api = profiler.NewAPI(b.loader)
	}

	return b
}

func defaultEvents(cpuOnly bool) EventController {
	if cpuOnly {
		return eventprof.Nop{}
	}

	return eventprof.NewController()
}

// Initialize registers context callbacks with the GPU backend, unless
// cpuOnly is set, and registers a profiler built for the resolved mode.
//
// When the backend is unreachable or a callback cannot be registered or
// enabled, Initialize falls back to CPU-only mode for the rest of the
// process; with logOnError it logs the backend error and remediation
// guidance. It reports whether the GPU-backed path was established, and is
// true when cpuOnly was requested.
//
// Later calls return the first call's result without doing anything.
func (b *Bootstrapper) Initialize(cpuOnly, logOnError bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	logger := b.log()

	if b.done {
		logger.Debug("already initialized, ignoring repeated initialization",
			slog.Bool("success", b.success),
		)

		return b.success
	}

	var (
		events     EventController
		registered bool
	)

	if !cpuOnly {
		events = b.newEvents(false)
		handler := lifecycle.NewHandler(&b.gate, b.api, events,
			lifecycle.WithLogger(b.logger),
			lifecycle.WithLookupEnv(b.lookupEnv),
		)

		registered = b.registerCallbacks(handler)
	}

	// The profiler is registered before any callback is enabled, so the
	// first context created always finds it.
	proxy := profiler.NewActivityProfilerProxy(!registered, b.loader, profiler.WithLogger(b.logger))

	err := b.api.RegisterProfiler(proxy)
	if err != nil {
		logger.Warn("not registering activity profiler", slog.Any("error", err))
	}

	if registered && !b.enableCallbacks() {
		registered = false

		proxy.FallBackToCPUOnly()

		// Contexts may have been started while the first callback was enabled.
		err = events.StopAll()
		if err != nil {
			logger.Warn("stopping event collection", slog.Any("error", err))
		}
	}

	success := cpuOnly || registered

	if !success {
		b.backendErr = b.gateway.LastError()

		if logOnError {
			logger.Error("profiling backend error", slog.Any("error", b.backendErr))
			logger.Warn("GPU profiling backend initialization failed, GPU profiler activities will be missing")
			logger.Info("if the backend reports insufficient privileges, see the counter permissions guide",
				slog.String("url", PermissionsHelpURL),
			)
		}
	}

	if registered {
		b.events = events
		b.registered = true
	} else {
		b.events = b.newEvents(true)
	}

	b.done = true
	b.success = success

	logger.Debug("initialized", slog.Bool("cpu_only", !registered), slog.Bool("success", success))

	return success
}

// registerCallbacks registers both context callbacks. They stay disabled
// until [Bootstrapper.enableCallbacks].
func (b *Bootstrapper) registerCallbacks(h *lifecycle.Handler) bool {
	if !b.gateway.InitSuccess() {
		return false
	}

	return b.gateway.RegisterCallback(cupti.DomainResource, cupti.ResourceContextCreated, h.ContextCreated) &&
		b.gateway.RegisterCallback(cupti.DomainResource, cupti.ResourceContextDestroyed, h.ContextDestroyed)
}

// enableCallbacks enables both context callbacks. On failure, anything
// already enabled is disabled again.
func (b *Bootstrapper) enableCallbacks() bool {
	ok := b.gateway.EnableCallback(cupti.DomainResource, cupti.ResourceContextCreated) &&
		b.gateway.EnableCallback(cupti.DomainResource, cupti.ResourceContextDestroyed)
	if !ok {
		b.disableCallbacks()
	}

	return ok
}

func (b *Bootstrapper) disableCallbacks() {
	for _, id := range []cupti.CallbackID{cupti.ResourceContextCreated, cupti.ResourceContextDestroyed} {
		b.gateway.DisableCallback(cupti.DomainResource, id)
	}
}

// InitializeInjection is the entry point the host runtime calls when it
// loads gpuprof through [config.EnvInjectionPath]. It always reports
// success to the host.
func (b *Bootstrapper) InitializeInjection() int {
	b.log().Info("injection mode: initializing gpuprof", version.Attr())

	b.Initialize(false, true)

	return 1
}

// Shutdown disables the context callbacks, stops all event collection and
// the registered profiler, and releases the backend. Errors are combined.
func (b *Bootstrapper) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registered {
		b.disableCallbacks()
		b.registered = false
	}

	var err error

	if b.events != nil {
		err = multierr.Append(err, b.events.StopAll())
	}

	if p := b.api.Profiler(); p != nil {
		err = multierr.Append(err, p.Stop())
	}

	if c, ok := b.gateway.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}

	return err
}

// API returns the profiler registry.
func (b *Bootstrapper) API() *profiler.API {
	return b.api
}

// Gateway returns the callback gateway.
func (b *Bootstrapper) Gateway() cupti.Gateway {
	return b.gateway
}

// Activated reports whether a GPU context has triggered profiler activation.
func (b *Bootstrapper) Activated() bool {
	return b.gate.Activated()
}

// BackendError returns the backend error recorded when initialization fell
// back to CPU-only mode, or nil.
func (b *Bootstrapper) BackendError() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.backendErr
}

func (b *Bootstrapper) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}

	return log.Logger()
}
