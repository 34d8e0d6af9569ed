// Package bootstrap decides at load time whether GPU profiling can run and
// wires the pieces together.
//
// [Bootstrapper.Initialize] probes the GPU backend through a [cupti.Gateway],
// registers the [lifecycle.Handler] for context creation and destruction,
// and registers the activity profiler with the [profiler.API]. When the
// backend cannot be reached it falls back to CPU-only mode instead of
// failing.
//
// The package-level functions operate on a single process-wide
// [Bootstrapper] and back the exported entry points of the shared library
// in cmd/gpuprof.
package bootstrap
