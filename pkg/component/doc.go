// Package component provides the per-instance lifecycle host that bridges
// attach to.
//
// An [Owner] represents one mounted component instance. Each render pass is
// bracketed by [Owner.StartRender] and [Owner.EndRender]; between them, hooks
// claim positional storage through [Owner.UseHookSlot] and [Owner.SetHookSlot].
// The first pass stores a value, every later pass gets the same value back.
//
// Unmounting is explicit: [Owner.Dispose] runs registered cleanups in reverse
// order, children first, exactly once. Resources that must be released
// deterministically (worker connections in particular) register their teardown
// with [Owner.OnCleanup] instead of relying on finalizers.
//
// An Owner is driven from a single goroutine, the component's render loop.
package component
