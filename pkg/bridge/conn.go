package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

var connIDCounter atomic.Uint64

func nextConnID() uint64 {
	return connIDCounter.Add(1)
}

// connection owns one transport connection shared by a session and its
// handles. The transport is closed when the last reference is released.
type connection[I any] struct {
	id   uint64
	conn Conn[I]

	refs   atomic.Int64
	closed atomic.Bool

	closeOnce sync.Once
	closeErr  error

	observer Observer
	logger   *slog.Logger
}

func newConnection[I any](id uint64, conn Conn[I], cfg config) *connection[I] {
	c := &connection[I]{
		id:       id,
		conn:     conn,
		observer: cfg.observer,
		logger:   cfg.logger,
	}
	c.refs.Store(1)
	return c
}

// send forwards input unchanged. Transport errors are returned as-is.
func (c *connection[I]) send(input I) error {
	if c.closed.Load() {
		return ErrClosed
	}
	err := c.conn.Send(input)
	c.observer.Sent(c.id, err)
	return err
}

// acquire adds a reference unless the connection already hit zero.
func (c *connection[I]) acquire() bool {
	for {
		n := c.refs.Load()
		if n <= 0 {
			return false
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference and tears down on the last one.
func (c *connection[I]) release() error {
	if c.refs.Add(-1) == 0 {
		return c.teardown()
	}
	return nil
}

func (c *connection[I]) teardown() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
		c.observer.Disconnected(c.id, c.closeErr)
		if c.closeErr != nil {
			c.logger.Warn("bridge connection close failed", "conn", c.id, "error", c.closeErr)
		} else {
			c.logger.Debug("bridge connection closed", "conn", c.id)
		}
	})
	return c.closeErr
}
