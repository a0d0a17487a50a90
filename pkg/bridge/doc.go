// Package bridge binds a re-rendering component instance to exactly one
// long-lived worker connection.
//
// The connection is created lazily on the first render pass and survives all
// later passes. The output handler, on the other hand, is replaced on every
// pass so that it always sees the state captured by the latest render:
//
//	type counterView struct {
//	    bridge *bridge.Session[demo.Request, demo.Response]
//	    count  int
//	}
//
//	func (v *counterView) Render(ctx context.Context) error {
//	    h, err := v.bridge.Use(ctx, func(resp demo.Response) {
//	        if resp.Kind == demo.IncrementCounter {
//	            v.count++
//	        }
//	    })
//	    if err != nil {
//	        return err
//	    }
//	    return h.Send(demo.Request{Kind: demo.Increment})
//	}
//
// # Handler slot
//
// Incoming messages reach the component through a forwarding function that
// was handed to the transport once, at connect time. On every message it
// copies the current handler out of a [CallbackSlot] and only then calls it.
// No lock is held during the call, so a handler may trigger a new render pass
// that replaces itself without deadlocking.
//
// # Ownership
//
// A [Session] owns one reference to the connection. [Handle.Clone] adds
// references; [Handle.Release] and [Session.Unmount] drop them. The transport
// connection is closed exactly once, when the last reference goes away.
// Teardown never waits on the garbage collector: components must call
// Unmount (or dispose the owning [component.Owner] when using [UseBridge]).
//
// # Threading
//
// A Session is driven from the component's render goroutine. Transports that
// receive on other goroutines marshal deliveries onto that goroutine before
// calling the sink (see package dispatch).
package bridge
