// Package dispatch marshals work onto a single owning goroutine.
//
// Transports receive worker output on their own goroutines, while a
// component's handlers expect to run on the component's render goroutine.
// A transport configured with a [Dispatcher] hands every delivery to
// Dispatch; the owning goroutine runs them in order, either continuously
// with [Loop.Run] or at frame boundaries with [Loop.Drain].
package dispatch
