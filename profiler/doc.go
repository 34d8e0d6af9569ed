// Package profiler is the process-wide profiler facade.
//
// An [API] holds the single registered [Profiler] and the [ConfigLoader]
// shared with event collection. Bootstrap registers an
// [ActivityProfilerProxy] built for the resolved mode; the first GPU context
// activates it through [API.InitProfilerIfRegistered]:
//
//	api := profiler.NewAPI(loader)
//	err := api.RegisterProfiler(profiler.NewActivityProfilerProxy(cpuOnly, loader))
//	// ... later, on the first context-created callback:
//	api.InitProfilerIfRegistered()
//
// Registration is first-wins. A second [API.RegisterProfiler] returns
// [ErrProfilerRegistered] and keeps the first profiler.
package profiler
