package activity

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Flags holds CLI flag names for activity profiling, allowing callers to
// customize flag names while keeping sensible defaults via [NewConfig].
type Flags struct {
	// Output path flag names.
	CPUProfile       string
	HeapProfile      string
	AllocsProfile    string
	GoroutineProfile string
	BlockProfile     string
	MutexProfile     string

	// Rate configuration flag names.
	MemProfileRate       string
	BlockProfileRate     string
	MutexProfileFraction string
}

// NewConfig creates a new [Config] embedding these flag names.
func (f Flags) NewConfig() *Config {
	return &Config{
		Flags: f,
	}
}

// Config describes which host-side activities to record and where to write
// them. A zero-value Config records nothing and leaves the process's
// profiling rates untouched.
//
// The same structure is read from the `activity` block of the gpuprof
// configuration file, and can be bound to CLI flags by an embedding
// application with [Config.RegisterFlags].
type Config struct {
	Flags Flags `yaml:"-"`

	// Output paths (empty = disabled).
	CPUProfile       string `yaml:"cpu_profile"`
	HeapProfile      string `yaml:"heap_profile"`
	AllocsProfile    string `yaml:"allocs_profile"`
	GoroutineProfile string `yaml:"goroutine_profile"`
	BlockProfile     string `yaml:"block_profile"`
	MutexProfile     string `yaml:"mutex_profile"`

	// Rate configuration (0 = leave the process setting alone).
	MemProfileRate       int `yaml:"mem_profile_rate"`
	BlockProfileRate     int `yaml:"block_profile_rate"`
	MutexProfileFraction int `yaml:"mutex_profile_fraction"`
}

// NewConfig creates a new [Config] with default flag names and all
// activities disabled.
func NewConfig() *Config {
	f := Flags{
		CPUProfile:           "activity-cpu-profile",
		HeapProfile:          "activity-heap-profile",
		AllocsProfile:        "activity-allocs-profile",
		GoroutineProfile:     "activity-goroutine-profile",
		BlockProfile:         "activity-block-profile",
		MutexProfile:         "activity-mutex-profile",
		MemProfileRate:       "activity-mem-profile-rate",
		BlockProfileRate:     "activity-block-profile-rate",
		MutexProfileFraction: "activity-mutex-profile-fraction",
	}

	return f.NewConfig()
}

// Enabled reports whether any output path is set.
func (c *Config) Enabled() bool {
	for _, p := range c.outputs() {
		if p.path != "" {
			return true
		}
	}

	return c.CPUProfile != ""
}

// RegisterFlags adds activity profiling flags to the given [*pflag.FlagSet].
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.CPUProfile, c.Flags.CPUProfile, "", "write host CPU activity to file")
	flags.StringVar(&c.HeapProfile, c.Flags.HeapProfile, "", "write heap snapshot to file on stop")
	flags.StringVar(&c.AllocsProfile, c.Flags.AllocsProfile, "", "write allocs snapshot to file on stop")
	flags.StringVar(&c.GoroutineProfile, c.Flags.GoroutineProfile, "", "write goroutine snapshot to file on stop")
	flags.StringVar(&c.BlockProfile, c.Flags.BlockProfile, "", "write block snapshot to file on stop")
	flags.StringVar(&c.MutexProfile, c.Flags.MutexProfile, "", "write mutex snapshot to file on stop")

	flags.IntVar(&c.MemProfileRate, c.Flags.MemProfileRate, 0, "memory profile rate in bytes per sample (0 keeps the current rate)")
	flags.IntVar(&c.BlockProfileRate, c.Flags.BlockProfileRate, 0, "block profile rate in nanoseconds (0 keeps the current rate)")
	flags.IntVar(&c.MutexProfileFraction, c.Flags.MutexProfileFraction, 0, "mutex profile fraction, 1/N sampling (0 keeps the current rate)")
}

// RegisterCompletions registers shell completions for activity flags on cmd.
// Integer flags disable file completion; path flags use default file
// completion.
func (c *Config) RegisterCompletions(cmd *cobra.Command) error {
	noFileComp := func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	for _, name := range []string{c.Flags.MemProfileRate, c.Flags.BlockProfileRate, c.Flags.MutexProfileFraction} {
		err := cmd.RegisterFlagCompletionFunc(name, noFileComp)
		if err != nil {
			return fmt.Errorf("registering %s completion: %w", name, err)
		}
	}

	return nil
}

// NewProfiler creates a new [Profiler] using a copy of this [Config].
func (c *Config) NewProfiler() *Profiler {
	return &Profiler{
		cfg: *c,
	}
}

type output struct {
	name string
	path string
}

// outputs lists the snapshot profiles written on stop.
func (c *Config) outputs() []output {
	return []output{
		{"heap", c.HeapProfile},
		{"allocs", c.AllocsProfile},
		{"goroutine", c.GoroutineProfile},
		{"block", c.BlockProfile},
		{"mutex", c.MutexProfile},
	}
}
