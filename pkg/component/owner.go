package component

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DebugMode enables hook order validation. Violations panic.
var DebugMode = false

// HookType identifies the type of hook call for order validation.
type HookType uint8

const (
	HookState HookType = iota + 1
	HookRef
	HookEffect
	HookBridge
)

// String returns a human-readable name for the hook type.
func (h HookType) String() string {
	switch h {
	case HookState:
		return "State"
	case HookRef:
		return "Ref"
	case HookEffect:
		return "Effect"
	case HookBridge:
		return "Bridge"
	default:
		return "Unknown"
	}
}

// Owner represents one mounted component instance.
// Disposing an Owner disposes its children and runs its cleanups.
type Owner struct {
	id uint64

	// parent is nil for a root Owner.
	parent *Owner

	children   []*Owner
	childrenMu sync.Mutex

	// cleanups registered via OnCleanup, run in reverse on Dispose.
	cleanups   []func()
	cleanupsMu sync.Mutex

	disposed atomic.Bool

	// Hook slot storage for stable identity across renders.
	hookSlots   []any
	hookSlotIdx int

	// Dev-mode hook order tracking (only used when DebugMode is true).
	hookOrder []HookType
	hookIndex int

	renderCount int
	rendering   bool
}

// NewOwner creates a new Owner registered as a child of parent.
// If parent is nil, creates a root Owner.
func NewOwner(parent *Owner) *Owner {
	o := &Owner{
		id:     nextID(),
		parent: parent,
	}

	if parent != nil {
		parent.addChild(o)
	}

	return o
}

// ID returns the unique identifier for this Owner.
func (o *Owner) ID() uint64 {
	return o.id
}

// Parent returns the parent Owner, or nil if this is a root Owner.
func (o *Owner) Parent() *Owner {
	return o.parent
}

// IsDisposed returns true if this Owner has been disposed.
func (o *Owner) IsDisposed() bool {
	return o.disposed.Load()
}

// RenderCount returns the number of completed render passes.
func (o *Owner) RenderCount() int {
	return o.renderCount
}

func (o *Owner) addChild(child *Owner) {
	o.childrenMu.Lock()
	defer o.childrenMu.Unlock()
	o.children = append(o.children, child)
}

func (o *Owner) removeChild(child *Owner) {
	o.childrenMu.Lock()
	defer o.childrenMu.Unlock()

	for i, c := range o.children {
		if c == child {
			o.children = append(o.children[:i], o.children[i+1:]...)
			return
		}
	}
}

// OnCleanup registers a cleanup function to run when this Owner is disposed.
// On an already disposed Owner the cleanup runs immediately.
func (o *Owner) OnCleanup(fn func()) {
	if o.disposed.Load() {
		fn()
		return
	}

	o.cleanupsMu.Lock()
	defer o.cleanupsMu.Unlock()
	o.cleanups = append(o.cleanups, fn)
}

// Dispose unmounts this Owner: children are disposed in reverse creation
// order, then cleanups run in reverse registration order. Later calls are
// no-ops.
func (o *Owner) Dispose() {
	if o.disposed.Swap(true) {
		return
	}

	if o.parent != nil {
		o.parent.removeChild(o)
	}

	o.childrenMu.Lock()
	children := make([]*Owner, len(o.children))
	copy(children, o.children)
	o.children = nil
	o.childrenMu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}

	o.cleanupsMu.Lock()
	cleanups := o.cleanups
	o.cleanups = nil
	o.cleanupsMu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	o.hookSlots = nil
}

// =============================================================================
// Render passes
// =============================================================================

// StartRender is called at the beginning of a render pass.
// It resets the hook slot index so hooks see the slots of the previous pass.
func (o *Owner) StartRender() {
	if o.disposed.Load() {
		panic(fmt.Sprintf("component: render on disposed owner %d", o.id))
	}
	o.rendering = true
	o.hookSlotIdx = 0
	o.hookIndex = 0
}

// EndRender is called at the end of a render pass.
// In debug mode, it validates that all expected hooks were called.
func (o *Owner) EndRender() {
	o.rendering = false
	defer func() { o.renderCount++ }()

	if !DebugMode || o.renderCount == 0 {
		return
	}
	if o.hookIndex < len(o.hookOrder) {
		panic(fmt.Sprintf("component: hook order changed: expected %d hooks, got %d",
			len(o.hookOrder), o.hookIndex))
	}
}

// Render runs fn as one render pass.
func (o *Owner) Render(fn func()) {
	o.StartRender()
	fn()
	o.EndRender()
}

// IsRendering reports whether a render pass is in progress.
func (o *Owner) IsRendering() bool {
	return o.rendering
}

// TrackHook records a hook call during render for order validation.
// In debug mode, hooks must be called in the same order on every render.
func (o *Owner) TrackHook(ht HookType) {
	if !DebugMode {
		return
	}

	if o.renderCount == 0 {
		o.hookOrder = append(o.hookOrder, ht)
	} else {
		if o.hookIndex >= len(o.hookOrder) {
			panic(fmt.Sprintf("component: hook order changed: extra %s hook at index %d",
				ht, o.hookIndex))
		}
		if expected := o.hookOrder[o.hookIndex]; expected != ht {
			panic(fmt.Sprintf("component: hook order changed at index %d: expected %s, got %s",
				o.hookIndex, expected, ht))
		}
	}
	o.hookIndex++
}

// =============================================================================
// Hook Slot Storage for Stable Identity
// =============================================================================

// UseHookSlot returns the stored value for the current hook slot, or nil on
// the first render. A nil result means the caller must construct the value
// and store it with SetHookSlot.
//
// Usage pattern:
//
//	func UseThing(o *component.Owner) *Thing {
//	    if slot := o.UseHookSlot(); slot != nil {
//	        return slot.(*Thing)
//	    }
//	    t := &Thing{}
//	    o.SetHookSlot(t)
//	    return t
//	}
func (o *Owner) UseHookSlot() any {
	idx := o.hookSlotIdx
	o.hookSlotIdx++

	if idx < len(o.hookSlots) {
		return o.hookSlots[idx]
	}
	return nil
}

// SetHookSlot stores a value in the hook slot claimed by the last
// UseHookSlot call.
func (o *Owner) SetHookSlot(value any) {
	idx := o.hookSlotIdx - 1
	if idx < 0 {
		idx = 0
	}
	for len(o.hookSlots) <= idx {
		o.hookSlots = append(o.hookSlots, nil)
	}
	o.hookSlots[idx] = value
}
