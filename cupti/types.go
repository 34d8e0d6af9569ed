package cupti

import "fmt"

// Context is an opaque GPU context handle owned by the host runtime. It is
// valid between its context-created and context-destroyed callbacks.
type Context uintptr

func (c Context) String() string {
	return fmt.Sprintf("%#x", uintptr(c))
}

// Domain is a vendor callback domain. Values match the vendor enumeration so
// raw domains from the host bridge convert directly.
type Domain uint32

const (
	// DomainDriverAPI covers driver API entry and exit.
	DomainDriverAPI Domain = 1
	// DomainRuntimeAPI covers runtime API entry and exit.
	DomainRuntimeAPI Domain = 2
	// DomainResource covers resource lifecycle events such as context
	// creation and destruction.
	DomainResource Domain = 3
	// DomainSynchronize covers synchronization events.
	DomainSynchronize Domain = 4
	// DomainNVTX covers NVTX annotations.
	DomainNVTX Domain = 5
)

func (d Domain) String() string {
	switch d {
	case DomainDriverAPI:
		return "driver_api"
	case DomainRuntimeAPI:
		return "runtime_api"
	case DomainResource:
		return "resource"
	case DomainSynchronize:
		return "synchronize"
	case DomainNVTX:
		return "nvtx"
	}

	return fmt.Sprintf("domain(%d)", uint32(d))
}

// CallbackID identifies a lifecycle event that callbacks can subscribe to.
type CallbackID int

const (
	// ResourceContextCreated fires after a GPU context is created.
	ResourceContextCreated CallbackID = iota + 1
	// ResourceContextDestroyed fires before a GPU context is destroyed.
	ResourceContextDestroyed
)

// Raw vendor callback ids within [DomainResource].
const (
	rawResourceContextCreated         uint32 = 1
	rawResourceContextDestroyStarting uint32 = 2
)

func (id CallbackID) String() string {
	switch id {
	case ResourceContextCreated:
		return "context_created"
	case ResourceContextDestroyed:
		return "context_destroyed"
	}

	return fmt.Sprintf("callback(%d)", int(id))
}

// domain returns the domain id belongs to, and false for unknown ids.
func (id CallbackID) domain() (Domain, bool) {
	switch id {
	case ResourceContextCreated, ResourceContextDestroyed:
		return DomainResource, true
	}

	return 0, false
}

// CallbackIDFromRaw maps a raw vendor callback id within domain to a
// [CallbackID]. It returns false for events this package does not model.
func CallbackIDFromRaw(domain Domain, raw uint32) (CallbackID, bool) {
	if domain != DomainResource {
		return 0, false
	}

	switch raw {
	case rawResourceContextCreated:
		return ResourceContextCreated, true
	case rawResourceContextDestroyStarting:
		return ResourceContextDestroyed, true
	}

	return 0, false
}

// ResourceData is the payload delivered with resource domain callbacks.
type ResourceData struct {
	Context Context
}

// Callback handles one event. Callbacks run on the host runtime's thread and
// must not block for long.
type Callback func(domain Domain, id CallbackID, data *ResourceData)
