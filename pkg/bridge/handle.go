package bridge

import "sync/atomic"

// Handle is a shared reference to a session's worker connection.
//
// Handles are cheap to clone; every clone refers to the same connection and
// must be released by whoever holds it. The handle returned by Session.Use
// belongs to the session and is released by Session.Unmount.
type Handle[I any] struct {
	conn     *connection[I]
	released atomic.Bool
}

// Send forwards input to the worker. Transport errors are returned
// unchanged; nothing is retried.
func (h *Handle[I]) Send(input I) error {
	if h.released.Load() {
		return ErrHandleReleased
	}
	return h.conn.send(input)
}

// Clone returns a new handle to the same connection. Cloning a released
// handle, or one whose connection is already closed, yields a released
// handle.
func (h *Handle[I]) Clone() *Handle[I] {
	clone := &Handle[I]{conn: h.conn}
	if h.released.Load() || !h.conn.acquire() {
		clone.released.Store(true)
	}
	return clone
}

// Release drops this handle's reference. When it was the last one the
// connection is closed and the transport's close error is returned.
// Releasing twice is a no-op.
func (h *Handle[I]) Release() error {
	if h.released.Swap(true) {
		return nil
	}
	return h.conn.release()
}

// ID identifies the underlying connection. All clones share it.
func (h *Handle[I]) ID() uint64 {
	return h.conn.id
}

// Closed reports whether the underlying connection was torn down.
func (h *Handle[I]) Closed() bool {
	return h.conn.closed.Load()
}

// Refs returns the number of live references to the connection.
func (h *Handle[I]) Refs() int64 {
	return h.conn.refs.Load()
}
