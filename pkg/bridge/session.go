package bridge

import (
	"context"
	"sync/atomic"

	bridgeerrors "github.com/vango-dev/bridge/internal/errors"
)

// State is the lifecycle state of a Session.
type State uint8

const (
	StateUninitialized State = iota
	StateConnected
	StateClosed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateConnected:
		return "Connected"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Session pairs one component instance with one worker connection.
//
// A Session is meant to live as a field of the component's own state (or in
// a hook slot, see UseBridge). Call Use on every render pass and Unmount when
// the component goes away.
type Session[I, O any] struct {
	transport Transport[I, O]
	cfg       config

	slot   *CallbackSlot[O]
	handle atomic.Pointer[Handle[I]]

	connecting atomic.Bool
	unmounted  atomic.Bool
}

// NewSession creates an uninitialized session. No connection is made until
// the first Install or Use.
func NewSession[I, O any](transport Transport[I, O], opts ...Option) *Session[I, O] {
	return &Session[I, O]{
		transport: transport,
		cfg:       newConfig(opts),
		slot:      &CallbackSlot[O]{},
	}
}

// Install connects to the worker with initial as the current handler.
// It may succeed once per session.
//
// A connect failure is returned wrapped in ErrConnect and leaves the session
// uninitialized; there is no half-built connection to clean up. A call made
// while Connect is still running (a handler that re-renders during connect)
// only replaces the handler and returns ErrConnecting.
func (s *Session[I, O]) Install(ctx context.Context, initial Handler[O]) (*Handle[I], error) {
	switch {
	case s.unmounted.Load():
		return nil, ErrUnmounted
	case s.handle.Load() != nil:
		return nil, ErrAlreadyInstalled
	case initial == nil:
		return nil, ErrNilHandler
	case s.transport == nil:
		return nil, ErrNilTransport
	}

	s.slot.Replace(initial)
	if !s.connecting.CompareAndSwap(false, true) {
		return nil, ErrConnecting
	}
	defer s.connecting.Store(false)

	id := nextConnID()
	conn, err := s.transport.Connect(ctx, forward(s.slot, id, s.cfg.observer))
	if err == nil && conn == nil {
		err = bridgeerrors.Newf(bridgeerrors.CategoryTransport, "transport returned no connection")
	}
	if err != nil {
		s.cfg.observer.ConnectFailed(err)
		s.cfg.logger.Error("bridge connect failed", "error", err)
		return nil, bridgeerrors.New(ErrConnect.Code).Wrap(err)
	}

	h := &Handle[I]{conn: newConnection(id, conn, s.cfg)}
	s.handle.Store(h)
	s.cfg.observer.Connected(id)
	s.cfg.logger.Debug("bridge connected", "conn", id)

	// Unmounted from inside a handler while connecting.
	if s.unmounted.Load() {
		if err := h.Release(); err != nil {
			s.cfg.logger.Warn("bridge release after unmount failed", "conn", id, "error", err)
		}
		return nil, ErrUnmounted
	}
	return h, nil
}

// Refresh makes handler the one that receives subsequent outputs.
// It is safe to call from inside a handler.
func (s *Session[I, O]) Refresh(handler Handler[O]) {
	s.slot.Replace(handler)
}

// Use is the per-render entry point: it refreshes the handler and connects
// on the first successful call. Every call after that returns the same
// session-owned handle.
func (s *Session[I, O]) Use(ctx context.Context, handler Handler[O]) (*Handle[I], error) {
	if s.unmounted.Load() {
		return nil, ErrUnmounted
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	s.Refresh(handler)
	if h := s.handle.Load(); h != nil {
		return h, nil
	}
	if s.connecting.Load() {
		return nil, ErrConnecting
	}
	return s.Install(ctx, handler)
}

// Handle returns the session-owned handle, or nil before the first
// successful install.
func (s *Session[I, O]) Handle() *Handle[I] {
	return s.handle.Load()
}

// Unmount releases the session's reference to the connection. The
// connection closes now if no clones remain, otherwise when the last clone
// is released. Unmount is idempotent.
func (s *Session[I, O]) Unmount() error {
	if s.unmounted.Swap(true) {
		return nil
	}
	h := s.handle.Load()
	if h == nil {
		return nil
	}
	s.cfg.logger.Debug("bridge unmounted", "conn", h.ID(), "refs", h.Refs()-1)
	return h.Release()
}

// State reports where the session is in its lifecycle.
func (s *Session[I, O]) State() State {
	h := s.handle.Load()
	switch {
	case h == nil && s.unmounted.Load():
		return StateClosed
	case h == nil:
		return StateUninitialized
	case h.Closed():
		return StateClosed
	default:
		return StateConnected
	}
}
