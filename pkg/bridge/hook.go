package bridge

import (
	"context"

	bridgeerrors "github.com/vango-dev/bridge/internal/errors"
	"github.com/vango-dev/bridge/pkg/component"
)

// UseBridge connects the rendering component to a worker, once.
//
// It must be called unconditionally on every render pass of owner, between
// StartRender and EndRender. The first pass creates a Session in the owner's
// hook slot and ties its teardown to owner.Dispose; every pass refreshes the
// handler so it sees the latest captured state. transport and opts are only
// consulted on the pass that creates the session.
//
// Example:
//
//	owner.Render(func() {
//	    h, err := bridge.UseBridge(ctx, owner, workers, func(resp demo.Response) {
//	        count++
//	    })
//	    ...
//	})
func UseBridge[I, O any](
	ctx context.Context,
	owner *component.Owner,
	transport Transport[I, O],
	handler Handler[O],
	opts ...Option,
) (*Handle[I], error) {
	owner.TrackHook(component.HookBridge)

	var s *Session[I, O]
	if slot := owner.UseHookSlot(); slot != nil {
		existing, ok := slot.(*Session[I, O])
		if !ok {
			panic(bridgeerrors.New("B023").WithDetail("expected a bridge session"))
		}
		s = existing
	} else {
		s = NewSession(transport, opts...)
		owner.SetHookSlot(s)
		owner.OnCleanup(func() {
			if err := s.Unmount(); err != nil {
				s.cfg.logger.Warn("bridge unmount failed", "owner", owner.ID(), "error", err)
			}
		})
	}

	return s.Use(ctx, handler)
}
