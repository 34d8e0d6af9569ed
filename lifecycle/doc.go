// Package lifecycle ties profiler activation to GPU context lifecycle
// callbacks.
//
// A [Gate] performs the process-wide activation exactly once, no matter how
// many contexts are created concurrently. A [Handler] receives the
// context-created and context-destroyed callbacks: created activates the
// profiler through the gate and starts event collection for the context,
// destroyed stops it.
//
//	gate := &lifecycle.Gate{}
//	h := lifecycle.NewHandler(gate, api, controller)
//	gateway.RegisterCallback(cupti.DomainResource, cupti.ResourceContextCreated, h.ContextCreated)
//	gateway.RegisterCallback(cupti.DomainResource, cupti.ResourceContextDestroyed, h.ContextDestroyed)
//
// Setting GPUPROF_DISABLE_EVENT_PROFILER skips per-context event collection
// while leaving activation untouched.
package lifecycle
