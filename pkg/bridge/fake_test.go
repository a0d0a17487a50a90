package bridge

import (
	"context"
	"sync"
)

type fakeConn struct {
	mu       sync.Mutex
	sent     []string
	closes   int
	sendErr  error
	closeErr error
}

func (c *fakeConn) Send(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, input)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return c.closeErr
}

func (c *fakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// fakeTransport delivers outputs synchronously through Emit, the way a
// transport that already marshaled onto the render goroutine would.
type fakeTransport[O any] struct {
	connects   int
	connectErr error
	sink       func(O)
	conn       *fakeConn

	// onConnect runs inside Connect after the sink is known.
	onConnect func(sink func(O))
}

func (f *fakeTransport[O]) Connect(ctx context.Context, sink func(O)) (Conn[string], error) {
	f.connects++
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.sink = sink
	f.conn = &fakeConn{}
	if f.onConnect != nil {
		f.onConnect(sink)
	}
	return f.conn, nil
}

func (f *fakeTransport[O]) Emit(output O) {
	f.sink(output)
}

type recordingObserver struct {
	connected, failed, sent, delivered, disconnected int
}

func (o *recordingObserver) Connected(uint64)           { o.connected++ }
func (o *recordingObserver) ConnectFailed(error)        { o.failed++ }
func (o *recordingObserver) Sent(uint64, error)         { o.sent++ }
func (o *recordingObserver) Delivered(uint64)           { o.delivered++ }
func (o *recordingObserver) Disconnected(uint64, error) { o.disconnected++ }
