// Package eventprof tracks per-context event collection.
//
// A [Controller] opens a [Session] when a GPU context is created and closes
// it when the context is destroyed. Sessions take their event list from the
// config loader. [Nop] replaces the controller in CPU-only mode.
package eventprof
