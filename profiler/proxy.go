package profiler

import (
	"log/slog"
	"sync"

	"go.jacobcolvin.com/gpuprof/activity"
	"go.jacobcolvin.com/gpuprof/log"
)

// ActivityConfigSource is implemented by config loaders that carry an
// activity profiling block.
type ActivityConfigSource interface {
	ActivityConfig() *activity.Config
}

// ActivityProfilerProxy is the [Profiler] registered at bootstrap.
//
// It defers building the activity profiler until [ActivityProfilerProxy.Init],
// which runs when the first GPU context is created. In CPU-only mode only
// host-side activity is recorded.
//
// Create instances with [NewActivityProfilerProxy].
type ActivityProfilerProxy struct {
	loader   ConfigLoader
	logger   *slog.Logger
	recorder *activity.Profiler
	mu       sync.Mutex
	cpuOnly  bool
	active   bool
}

// ProxyOption configures an [ActivityProfilerProxy].
type ProxyOption func(*ActivityProfilerProxy)

// WithLogger sets the proxy's logger. The default is the shared [log.Logger].
func WithLogger(l *slog.Logger) ProxyOption {
	return func(p *ActivityProfilerProxy) {
		p.logger = l
	}
}

// NewActivityProfilerProxy creates an [ActivityProfilerProxy] for the given
// mode, reading activity configuration from loader when it implements
// [ActivityConfigSource].
func NewActivityProfilerProxy(cpuOnly bool, loader ConfigLoader, opts ...ProxyOption) *ActivityProfilerProxy {
	p := &ActivityProfilerProxy{
		cpuOnly: cpuOnly,
		loader:  loader,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// CPUOnly reports whether the proxy runs in CPU-only mode.
func (p *ActivityProfilerProxy) CPUOnly() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cpuOnly
}

// FallBackToCPUOnly switches the proxy to CPU-only mode when the GPU backend
// is lost after the proxy was registered. It reports false, and changes
// nothing, while the proxy is active.
func (p *ActivityProfilerProxy) FallBackToCPUOnly() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		return false
	}

	p.cpuOnly = true

	return true
}

// Init activates the proxy and starts host activity recording when the
// configuration enables any output. Failures are logged; the proxy stays
// active without recording.
func (p *ActivityProfilerProxy) Init() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		return
	}

	p.active = true

	logger := p.log()
	logger.Info("activity profiler initialized", slog.Bool("cpu_only", p.cpuOnly))

	src, ok := p.loader.(ActivityConfigSource)
	if !ok {
		return
	}

	cfg := src.ActivityConfig()
	if cfg == nil || !cfg.Enabled() {
		return
	}

	recorder := cfg.NewProfiler()

	err := recorder.Start()
	if err != nil {
		logger.Error("starting host activity recording", slog.Any("error", err))
		return
	}

	p.recorder = recorder
}

// IsActive reports whether Init has run and Stop has not.
func (p *ActivityProfilerProxy) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.active
}

// Recording reports whether host activity is being recorded.
func (p *ActivityProfilerProxy) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.recorder != nil && p.recorder.Active()
}

// Stop deactivates the proxy and writes recorded activity.
func (p *ActivityProfilerProxy) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active = false

	if p.recorder == nil {
		return nil
	}

	recorder := p.recorder
	p.recorder = nil

	return recorder.Stop() //nolint:wrapcheck // Errors already name the failed output.
}

func (p *ActivityProfilerProxy) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}

	return log.Logger()
}
