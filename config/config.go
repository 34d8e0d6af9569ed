package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"go.jacobcolvin.com/gpuprof/activity"
	"go.jacobcolvin.com/gpuprof/log"
)

// Environment variables read by gpuprof.
const (
	// EnvDisableEventProfiler skips per-context event collection when set,
	// whatever its value.
	EnvDisableEventProfiler = "GPUPROF_DISABLE_EVENT_PROFILER"
	// EnvConfigPath points at the YAML configuration file.
	EnvConfigPath = "GPUPROF_CONFIG"
	// EnvLogLevel sets the component log level.
	EnvLogLevel = "GPUPROF_LOG_LEVEL"
	// EnvLogFormat sets the component log format.
	EnvLogFormat = "GPUPROF_LOG_FORMAT"
	// EnvInjectionPath is read by the host runtime, not by gpuprof. Pointing
	// it at the gpuprof shared library makes the runtime call
	// InitializeInjection at startup.
	EnvInjectionPath = "CUDA_INJECTION64_PATH"
)

// DefaultPath is used when [EnvConfigPath] is unset.
const DefaultPath = "/etc/gpuprof.yaml"

// Default periods.
const (
	DefaultSamplePeriod    = 100 * time.Millisecond
	DefaultMultiplexPeriod = time.Second
	DefaultReportPeriod    = time.Minute
)

// ErrInvalidConfig indicates a configuration file that decoded but holds
// unusable values.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the base profiling configuration.
type Config struct {
	// Activity selects host activity outputs; nil records nothing.
	Activity *activity.Config `yaml:"activity"`
	// Events lists the hardware events to collect per GPU context.
	Events []string `yaml:"events"`
	// SamplePeriod is the interval between event samples.
	SamplePeriod time.Duration `yaml:"sample_period"`
	// MultiplexPeriod is how long each event group is counted before
	// switching when not all events fit at once.
	MultiplexPeriod time.Duration `yaml:"multiplex_period"`
	// ReportPeriod is the interval between aggregated reports.
	ReportPeriod time.Duration `yaml:"report_period"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		SamplePeriod:    DefaultSamplePeriod,
		MultiplexPeriod: DefaultMultiplexPeriod,
		ReportPeriod:    DefaultReportPeriod,
	}
}

// Validate checks c for unusable values.
func (c Config) Validate() error {
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("%w: sample_period must be positive", ErrInvalidConfig)
	}

	if c.MultiplexPeriod < c.SamplePeriod {
		return fmt.Errorf("%w: multiplex_period must not be shorter than sample_period", ErrInvalidConfig)
	}

	if c.ReportPeriod < c.MultiplexPeriod {
		return fmt.Errorf("%w: report_period must not be shorter than multiplex_period", ErrInvalidConfig)
	}

	return nil
}

// Loader loads the base [Config] from the file named by [EnvConfigPath].
//
// It is safe for concurrent use: [Loader.InitBaseConfig] runs on every
// context creation, possibly on several host threads at once.
//
// Create instances with [NewLoader].
type Loader struct {
	lookupEnv func(string) (string, bool)
	logger    *slog.Logger
	cfg       Config
	mu        sync.RWMutex
}

// LoaderOption configures a [Loader].
type LoaderOption func(*Loader)

// WithLookupEnv replaces [os.LookupEnv].
func WithLookupEnv(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		l.lookupEnv = fn
	}
}

// WithLogger sets the loader's logger. The default is the shared
// [log.Logger].
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a [Loader] holding [Default] until the first load.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		lookupEnv: os.LookupEnv,
		cfg:       Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Path returns the configuration file path currently in effect.
func (l *Loader) Path() string {
	if p, ok := l.lookupEnv(EnvConfigPath); ok && p != "" {
		return p
	}

	return DefaultPath
}

// InitBaseConfig reloads the base configuration. A missing file resets to
// [Default]; an unreadable or invalid file is logged and the previous
// configuration is kept.
func (l *Loader) InitBaseConfig() {
	path := l.Path()

	cfg, err := l.load(path)
	if err != nil {
		l.log().Error("loading base config",
			slog.String("path", path),
			slog.Any("error", err),
		)

		return
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
}

// Base returns a copy of the current base configuration.
func (l *Loader) Base() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cfg := l.cfg
	cfg.Events = slices.Clone(l.cfg.Events)

	if l.cfg.Activity != nil {
		a := *l.cfg.Activity
		cfg.Activity = &a
	}

	return cfg
}

// EventConfig returns the events to collect and the sampling period.
func (l *Loader) EventConfig() ([]string, time.Duration) {
	cfg := l.Base()

	return cfg.Events, cfg.SamplePeriod
}

// ActivityConfig returns the activity block, or nil when absent.
func (l *Loader) ActivityConfig() *activity.Config {
	return l.Base().Activity
}

func (l *Loader) load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from the environment.
	if errors.Is(err, fs.ErrNotExist) {
		l.log().Debug("no config file, using defaults", slog.String("path", path))
		return Default(), nil
	}

	if err != nil {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	// Unknown keys are ignored by Parse, so surface them here.
	err = CheckSchema(data)
	if err != nil {
		l.log().Warn("config file does not match schema",
			slog.String("path", path),
			slog.Any("error", err),
		)
	}

	return Parse(data)
}

// Parse decodes a YAML configuration document and validates it. Periods
// that are absent or zero take their [Default] values.
func Parse(data []byte) (Config, error) {
	var cfg Config

	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	def := Default()
	if cfg.SamplePeriod == 0 {
		cfg.SamplePeriod = def.SamplePeriod
	}

	if cfg.MultiplexPeriod == 0 {
		cfg.MultiplexPeriod = def.MultiplexPeriod
	}

	if cfg.ReportPeriod == 0 {
		cfg.ReportPeriod = def.ReportPeriod
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (l *Loader) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}

	return log.Logger()
}
