// Package ws connects components to workers served by a workerhost over
// WebSocket.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	bridgeerrors "github.com/vango-dev/bridge/internal/errors"
	"github.com/vango-dev/bridge/pkg/bridge"
	"github.com/vango-dev/bridge/pkg/dispatch"
	"github.com/vango-dev/bridge/pkg/wire"
)

// Option configures a Transport.
type Option func(*options)

type options struct {
	dialer           *websocket.Dialer
	header           http.Header
	codec            Codec
	dispatcher       dispatch.Dispatcher
	logger           *slog.Logger
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
	onError          func(*wire.ErrorMessage)
}

// WithDialer sets the WebSocket dialer. Default: websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithHeader adds request headers to the upgrade request.
func WithHeader(h http.Header) Option {
	return func(o *options) {
		o.header = h
	}
}

// WithCodec sets the payload codec. Default: JSON.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithDispatcher routes outputs through d instead of delivering them on the
// read goroutine.
func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWriteTimeout bounds each frame write. Default: 10 seconds.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithHandshakeTimeout bounds the Hello exchange. Default: 10 seconds.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}

// WithErrorHandler receives non-fatal Error frames from the host, such as a
// worker panic or a full mailbox. Default: logged at warn level.
func WithErrorHandler(fn func(*wire.ErrorMessage)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// Transport dials one WebSocket per connection.
type Transport[I, O any] struct {
	url  string
	opts options
}

// New creates a transport for the worker endpoint at url, for example
// "ws://localhost:8090/workers/counter".
func New[I, O any](url string, opts ...Option) *Transport[I, O] {
	o := options{
		dialer:           websocket.DefaultDialer,
		codec:            JSON,
		logger:           slog.Default(),
		writeTimeout:     10 * time.Second,
		handshakeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Transport[I, O]{url: url, opts: o}
}

var _ bridge.Transport[int, int] = (*Transport[int, int])(nil)

// Connect dials the host, exchanges Hello frames and starts the read loop.
func (t *Transport[I, O]) Connect(ctx context.Context, sink func(O)) (bridge.Conn[I], error) {
	ws, _, err := t.opts.dialer.DialContext(ctx, t.url, t.opts.header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}

	connID, err := t.handshake(ctx, ws)
	if err != nil {
		ws.Close()
		return nil, err
	}

	c := &Conn[I, O]{
		id:     connID,
		ws:     ws,
		sink:   sink,
		opts:   t.opts,
		logger: t.opts.logger.With("url", t.url, "conn_id", connID),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (t *Transport[I, O]) handshake(ctx context.Context, ws *websocket.Conn) (string, error) {
	deadline := time.Now().Add(t.opts.handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	hello, err := wire.NewFrame(wire.FrameHello, wire.EncodeHello(&wire.Hello{
		Version: wire.ProtocolVersion,
	})).Encode()
	if err != nil {
		return "", err
	}
	ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.BinaryMessage, hello); err != nil {
		return "", fmt.Errorf("send hello: %w", err)
	}

	ws.SetReadDeadline(deadline)
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read hello: %w", err)
	}
	ws.SetReadDeadline(time.Time{})

	frame, err := wire.DecodeFrame(msg)
	if err != nil {
		return "", bridgeerrors.New("B040").Wrap(err)
	}
	switch frame.Type {
	case wire.FrameHello:
		h, err := wire.DecodeHello(frame.Payload)
		if err != nil {
			return "", bridgeerrors.New("B040").Wrap(err)
		}
		return h.ConnID, nil
	case wire.FrameError:
		em, err := wire.DecodeErrorMessage(frame.Payload)
		if err != nil {
			return "", bridgeerrors.New("B040").Wrap(err)
		}
		return "", bridgeerrors.New("B004").Wrap(em)
	default:
		return "", bridgeerrors.New("B041").WithDetail(fmt.Sprintf("got %s during handshake", frame.Type))
	}
}

// Conn is one WebSocket connection to a worker.
type Conn[I, O any] struct {
	id     string
	ws     *websocket.Conn
	sink   func(O)
	opts   options
	logger *slog.Logger

	writeMu sync.Mutex
	closed  bool

	closeOnce  sync.Once
	closeErr   error
	done       chan struct{}
	delivering atomic.Bool // a handler is running on the read goroutine
}

// ID returns the connection ID assigned by the host.
func (c *Conn[I, O]) ID() string { return c.id }

// Done is closed when the read loop has exited.
func (c *Conn[I, O]) Done() <-chan struct{} { return c.done }

// Send encodes input and writes it as one Input frame.
func (c *Conn[I, O]) Send(input I) error {
	payload, err := c.opts.codec.Marshal(input)
	if err != nil {
		return bridgeerrors.New("B042").Wrap(err)
	}
	data, err := wire.NewFrame(wire.FrameInput, payload).Encode()
	if err != nil {
		return bridgeerrors.New("B043").Wrap(err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return bridge.ErrClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Close sends a Close frame and a WebSocket close message, closes the socket
// and waits for the read loop to exit. Called from a handler running on the
// read goroutine it returns without waiting.
func (c *Conn[I, O]) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		alreadyClosed := c.closed
		c.closed = true
		if !alreadyClosed {
			deadline := time.Now().Add(c.opts.writeTimeout)
			if data, err := wire.NewFrame(wire.FrameClose, wire.EncodeClose(wire.CloseNormal)).Encode(); err == nil {
				c.ws.SetWriteDeadline(deadline)
				c.closeErr = c.ws.WriteMessage(websocket.BinaryMessage, data)
			}
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		}
		c.writeMu.Unlock()

		if err := c.ws.Close(); err != nil && c.closeErr == nil && !alreadyClosed {
			c.closeErr = err
		}
		if !c.delivering.Load() {
			<-c.done
		}
	})
	return c.closeErr
}

func (c *Conn[I, O]) readLoop() {
	defer close(c.done)
	defer c.markClosed()

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if !c.isClosed() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				c.logger.Warn("read error", "error", err)
			}
			return
		}

		frame, err := wire.DecodeFrame(msg)
		if err != nil {
			c.logger.Warn("frame decode error", "error", err)
			continue
		}

		switch frame.Type {
		case wire.FrameOutput:
			c.deliver(frame.Payload)

		case wire.FrameError:
			em, err := wire.DecodeErrorMessage(frame.Payload)
			if err != nil {
				c.logger.Warn("error frame decode error", "error", err)
				continue
			}
			if em.Fatal {
				c.logger.Error("host closed connection", "code", em.Code, "message", em.Message)
				return
			}
			if c.opts.onError != nil {
				c.opts.onError(em)
			} else {
				c.logger.Warn("host error", "code", em.Code, "message", em.Message)
			}

		case wire.FrameClose:
			c.logger.Info("host closed connection", "reason", wire.DecodeClose(frame.Payload))
			return

		default:
			c.logger.Warn("unexpected frame", "type", frame.Type)
		}
	}
}

func (c *Conn[I, O]) deliver(payload []byte) {
	if c.isClosed() {
		return
	}
	var out O
	if err := c.opts.codec.Unmarshal(payload, &out); err != nil {
		c.logger.Warn("output decode error", "error", err)
		return
	}
	if c.opts.dispatcher == nil {
		c.delivering.Store(true)
		defer c.delivering.Store(false)
		c.sink(out)
		return
	}
	if !c.opts.dispatcher.Dispatch(func() { c.sink(out) }) {
		c.logger.Warn("output dispatcher rejected delivery")
	}
}

// markClosed makes later Sends fail with bridge.ErrClosed once the host has
// gone away.
func (c *Conn[I, O]) markClosed() {
	c.writeMu.Lock()
	c.closed = true
	c.writeMu.Unlock()
}

func (c *Conn[I, O]) isClosed() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.closed
}
