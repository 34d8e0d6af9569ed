// Command gpuprof builds the gpuprof shared library.
//
// Build it with -buildmode=c-shared. The host GPU runtime loads the library
// through CUDA_INJECTION64_PATH and calls InitializeInjection; applications
// that link it directly call gpuprof_init. Resource callbacks reach the
// library only through gpuprof_resource_callback, which a C forwarder
// subscribed with the vendor runtime must call.
package main

/*
#include <stdbool.h>
#include <stdint.h>
*/
import "C"

import (
	"log/slog"

	"go.jacobcolvin.com/gpuprof/bootstrap"
	"go.jacobcolvin.com/gpuprof/cupti"
	"go.jacobcolvin.com/gpuprof/log"
)

//export InitializeInjection
func InitializeInjection() C.int {
	return C.int(bootstrap.InitializeInjection())
}

//export gpuprof_init
func gpuprof_init(cpuOnly, logOnError C.bool) C.bool { //nolint:revive // C symbol name.
	return C.bool(bootstrap.Initialize(bool(cpuOnly), bool(logOnError)))
}

//export gpuprof_suppress_log_messages
func gpuprof_suppress_log_messages() { //nolint:revive // C symbol name.
	bootstrap.SuppressLogMessages()
}

//export gpuprof_shutdown
func gpuprof_shutdown() { //nolint:revive // C symbol name.
	err := bootstrap.Shutdown()
	if err != nil {
		log.Logger().Error("shutting down", slog.Any("error", err))
	}
}

//export gpuprof_resource_callback
func gpuprof_resource_callback(domain, cbid C.uint32_t, ctx C.uintptr_t) { //nolint:revive // C symbol name.
	bootstrap.Dispatch(cupti.Domain(domain), uint32(cbid), cupti.Context(ctx))
}

func main() {}
