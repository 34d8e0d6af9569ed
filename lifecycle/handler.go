package lifecycle

import (
	"log/slog"
	"os"

	"go.jacobcolvin.com/gpuprof/config"
	"go.jacobcolvin.com/gpuprof/cupti"
	"go.jacobcolvin.com/gpuprof/log"
	"go.jacobcolvin.com/gpuprof/profiler"
)

// Registry is the part of the profiler API the handler consults.
type Registry interface {
	// InitProfilerIfRegistered performs the registered profiler's one-time
	// activation.
	InitProfilerIfRegistered() bool
	// ConfigLoader returns the process-wide configuration loader.
	ConfigLoader() profiler.ConfigLoader
}

// EventController starts and stops per-context event collection.
//
// Stop must tolerate contexts that were never started.
type EventController interface {
	Start(ctx cupti.Context, loader profiler.ConfigLoader) error
	Stop(ctx cupti.Context) error
}

// Handler dispatches GPU context lifecycle callbacks.
//
// Its two methods have the [cupti.Callback] signature and are registered
// directly with a [cupti.Gateway]. Neither ever panics or blocks on anything
// but the activation [Gate]. Handler keeps no per-context state; the
// [EventController] owns it.
//
// Create instances with [NewHandler].
type Handler struct {
	gate      *Gate
	registry  Registry
	events    EventController
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
}

// HandlerOption configures a [Handler].
type HandlerOption func(*Handler)

// WithLogger sets the handler's logger. The default is the shared
// [log.Logger].
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithLookupEnv replaces [os.LookupEnv] for reading the event profiler
// toggle.
func WithLookupEnv(fn func(string) (string, bool)) HandlerOption {
	return func(h *Handler) {
		h.lookupEnv = fn
	}
}

// NewHandler creates a [Handler]. gate is shared by every handler in the
// process.
func NewHandler(gate *Gate, registry Registry, events EventController, opts ...HandlerOption) *Handler {
	h := &Handler{
		gate:      gate,
		registry:  registry,
		events:    events,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ContextCreated activates the registered profiler on the first call in the
// process, then starts event collection for the new context unless the
// event profiler is disabled through the environment.
func (h *Handler) ContextCreated(_ cupti.Domain, _ cupti.CallbackID, data *cupti.ResourceData) {
	logger := h.log()

	defer h.recoverPanic("context created")

	if data == nil {
		logger.Error("context created callback without resource data")
		return
	}

	logger.Debug("gpu context created", slog.String("context", data.Context.String()))

	h.gate.RunOnce(func() {
		// Event collection below runs whatever activation does.
		defer h.recoverPanic("profiler activation")

		if h.registry.InitProfilerIfRegistered() {
			logger.Debug("profilers activated")
		} else {
			logger.Warn("no profiler registered, nothing to activate")
		}
	})

	if _, ok := h.lookupEnv(config.EnvDisableEventProfiler); ok {
		logger.Debug("event profiler disabled via environment",
			slog.String("env", config.EnvDisableEventProfiler),
		)

		return
	}

	loader := h.registry.ConfigLoader()
	if loader == nil {
		logger.Error("no config loader registered, not starting event collection")
		return
	}

	loader.InitBaseConfig()

	err := h.events.Start(data.Context, loader)
	if err != nil {
		logger.Error("starting event collection",
			slog.String("context", data.Context.String()),
			slog.Any("error", err),
		)
	}
}

// ContextDestroyed stops event collection for the context. It is safe for
// contexts whose collection was never started.
func (h *Handler) ContextDestroyed(_ cupti.Domain, _ cupti.CallbackID, data *cupti.ResourceData) {
	logger := h.log()

	defer h.recoverPanic("context destroyed")

	if data == nil {
		logger.Error("context destroyed callback without resource data")
		return
	}

	logger.Info("gpu context destroyed", slog.String("context", data.Context.String()))

	err := h.events.Stop(data.Context)
	if err != nil {
		logger.Error("stopping event collection",
			slog.String("context", data.Context.String()),
			slog.Any("error", err),
		)
	}
}

func (h *Handler) recoverPanic(event string) {
	if r := recover(); r != nil {
		h.log().Error("recovered from panic in lifecycle callback",
			slog.String("event", event),
			slog.Any("panic", r),
		)
	}
}

func (h *Handler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}

	return log.Logger()
}
