package activity

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"go.uber.org/multierr"
)

// ErrAlreadyActive indicates [Profiler.Start] was called on a running
// profiler.
var ErrAlreadyActive = errors.New("activity profiler already active")

// Profiler records host-side activity for one profiling session.
//
// Call [Profiler.Start] to begin recording and [Profiler.Stop] to write all
// enabled outputs. Safe for concurrent use.
//
// Create instances with [Config.NewProfiler].
type Profiler struct {
	cpuFile *os.File
	cfg     Config
	mu      sync.Mutex
	active  bool
}

// Config returns the configuration the profiler was created with.
func (p *Profiler) Config() Config {
	return p.cfg
}

// Active reports whether a session is in progress.
func (p *Profiler) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.active
}

// Start applies the configured sampling rates and starts CPU recording if
// enabled.
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		return ErrAlreadyActive
	}

	if p.cfg.MemProfileRate > 0 {
		runtime.MemProfileRate = p.cfg.MemProfileRate
	}

	if p.cfg.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(p.cfg.BlockProfileRate)
	}

	if p.cfg.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(p.cfg.MutexProfileFraction)
	}

	if p.cfg.CPUProfile != "" {
		f, err := os.Create(p.cfg.CPUProfile) //nolint:gosec // Path comes from profiler configuration.
		if err != nil {
			return fmt.Errorf("creating CPU profile: %w", err)
		}

		err = pprof.StartCPUProfile(f)
		if err != nil {
			return multierr.Append(
				fmt.Errorf("starting CPU profile: %w", err),
				f.Close(),
			)
		}

		p.cpuFile = f
	}

	p.active = true

	return nil
}

// Stop ends CPU recording and writes all enabled snapshot profiles. Stopping
// an inactive profiler is a no-op. Every output is attempted; failures are
// combined.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return nil
	}

	p.active = false

	var err error

	if p.cpuFile != nil {
		pprof.StopCPUProfile()

		closeErr := p.cpuFile.Close()
		if closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("closing CPU profile: %w", closeErr))
		}

		p.cpuFile = nil
	}

	for _, o := range p.cfg.outputs() {
		if o.path == "" {
			continue
		}

		err = multierr.Append(err, writeProfile(o.name, o.path))
	}

	return err
}

// writeProfile writes a named pprof profile to the given file path.
func writeProfile(name, path string) (err error) {
	prof := pprof.Lookup(name)
	if prof == nil {
		return fmt.Errorf("unknown profile: %s", name)
	}

	f, err := os.Create(path) //nolint:gosec // Path comes from profiler configuration.
	if err != nil {
		return fmt.Errorf("create %s profile: %w", name, err)
	}

	defer multierr.AppendInvoke(&err, multierr.Close(f))

	err = prof.WriteTo(f, 0)
	if err != nil {
		return fmt.Errorf("write %s profile: %w", name, err)
	}

	return nil
}
