package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/term"

	"go.jacobcolvin.com/gpuprof/config"
	"go.jacobcolvin.com/gpuprof/cupti"
	"go.jacobcolvin.com/gpuprof/log"
)

// process is the Bootstrapper for this process, built when the package is
// initialized, which is when the host loads the shared library. It is
// written once here and only read afterwards.
var process = New()

var loggingOnce sync.Once

// Default returns the process-wide [Bootstrapper].
func Default() *Bootstrapper {
	return process
}

// Initialize runs [Bootstrapper.Initialize] on the process-wide
// bootstrapper. It also sends logs to stderr unless the embedding
// application has already called [log.SetLogger].
func Initialize(cpuOnly, logOnError bool) bool {
	configureLogging(os.LookupEnv)

	return process.Initialize(cpuOnly, logOnError)
}

// InitializeInjection runs [Bootstrapper.InitializeInjection] on the
// process-wide bootstrapper.
func InitializeInjection() int {
	configureLogging(os.LookupEnv)

	return process.InitializeInjection()
}

// SuppressLogMessages limits gpuprof logging to errors.
func SuppressLogMessages() {
	log.Suppress()
}

// Shutdown runs [Bootstrapper.Shutdown] on the process-wide bootstrapper.
func Shutdown() error {
	return process.Shutdown()
}

// Dispatch forwards a raw vendor callback to the process-wide gateway. Events
// for gateways that cannot dispatch raw ids are dropped.
func Dispatch(domain cupti.Domain, raw uint32, ctx cupti.Context) {
	d, ok := process.gateway.(interface {
		DispatchRaw(cupti.Domain, uint32, cupti.Context)
	})
	if !ok {
		return
	}

	d.DispatchRaw(domain, raw, ctx)
}

// configureLogging installs a stderr logger configured from the environment,
// once, when no logger has been set yet. The format defaults to text on a
// terminal and logfmt otherwise.
func configureLogging(lookupEnv func(string) (string, bool)) {
	loggingOnce.Do(func() {
		if log.Logger().Enabled(context.Background(), slog.LevelError) {
			return
		}

		cfg := log.NewConfig()
		cfg.Level = string(log.LevelInfo)
		cfg.Format = string(log.FormatLogfmt)

		if term.IsTerminal(int(os.Stderr.Fd())) { //nolint:gosec // File descriptors fit in int.
			cfg.Format = string(log.FormatText)
		}

		cfg.LoadEnv(lookupEnv, config.EnvLogLevel, config.EnvLogFormat)

		handler, err := cfg.NewHandler(os.Stderr)
		if err != nil {
			handler = log.NewHandler(os.Stderr, log.LevelInfo, log.FormatLogfmt)
			defer slog.New(handler).Warn("invalid log configuration, using defaults", slog.Any("error", err))
		}

		log.SetLogger(slog.New(handler))
	})
}
