// Package cupti subscribes to GPU context lifecycle events from the vendor
// runtime.
//
// A [Gateway] registers and enables [Callback] functions per [Domain] and
// [CallbackID]. Registration and enablement are separate steps so their
// failures can be told apart; every operation reports failure through its
// result and [Gateway.LastError] instead of panicking.
//
// [CallbackAPI] is the production gateway. Whether the backend is present is
// decided by initializing the NVIDIA management library, which fails cleanly
// on hosts without a driver:
//
//	api := cupti.NewCallbackAPI()
//	if api.InitSuccess() &&
//	    api.RegisterCallback(cupti.DomainResource, cupti.ResourceContextCreated, onCreate) &&
//	    api.EnableCallback(cupti.DomainResource, cupti.ResourceContextCreated) {
//	    // onCreate now runs for every dispatched context creation.
//	}
//
// The host bridge forwards vendor events with [CallbackAPI.DispatchRaw].
package cupti
