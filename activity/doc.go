// Package activity records host-side activity while the GPU profiler is
// active.
//
// It covers what remains observable without a GPU backend: CPU samples plus
// heap, allocs, goroutine, block, and mutex snapshots, written in pprof
// format. A [Config] selects outputs and sampling rates; it is decoded from
// the `activity` block of the configuration file or bound to CLI flags with
// [Config.RegisterFlags] and [Config.RegisterCompletions].
//
//	cfg := activity.NewConfig()
//	cfg.CPUProfile = "/tmp/host-cpu.prof"
//
//	p := cfg.NewProfiler()
//	err := p.Start()
//	// ...
//	err = p.Stop()
//
// Rates left at zero keep the host process's own settings.
package activity
