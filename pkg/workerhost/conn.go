package workerhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	bridgeerrors "github.com/vango-dev/bridge/internal/errors"
	"github.com/vango-dev/bridge/pkg/wire"
	"github.com/vango-dev/bridge/pkg/worker"
)

// conn is one client connection and its worker. It implements
// worker.Scope[json.RawMessage].
type conn struct {
	id     string
	name   string
	host   *Host
	ws     *websocket.Conn
	worker worker.Raw
	logger *slog.Logger
	opened time.Time

	mailbox chan json.RawMessage
	ctx     context.Context
	cancel  context.CancelFunc

	writeMu sync.Mutex
	closed  bool // no frames are written once set
}

func newConn(h *Host, name string, ws *websocket.Conn, w worker.Raw) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	id := newConnID()
	return &conn{
		id:      id,
		name:    name,
		host:    h,
		ws:      ws,
		worker:  w,
		logger:  h.logger.With("worker", name, "conn_id", id),
		opened:  time.Now(),
		mailbox: make(chan json.RawMessage, h.config.MailboxSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID implements worker.Scope.
func (c *conn) ID() string { return c.id }

// Respond implements worker.Scope. Outputs after the connection closed are
// dropped. An output too large for one frame is replaced by a non-fatal
// OutputTooLarge error frame.
func (c *conn) Respond(output json.RawMessage) {
	if c.ctx.Err() != nil {
		return
	}
	n, err := c.writeFrame(wire.FrameOutput, output)
	if errors.Is(err, wire.ErrFrameTooLarge) {
		c.host.observer.OutputRejected(c.name)
		c.logger.Warn("output dropped", "bytes", len(output), "error", err)
		c.sendError(wire.ErrOutputTooLarge, bridgeerrors.New("B043").
			WithDetail(fmt.Sprintf("output of %d bytes", len(output))).Error())
		return
	}
	if err != nil {
		c.logger.Warn("output write failed", "error", err)
		return
	}
	c.host.observer.OutputSent(c.name, n)
}

func (c *conn) serve() {
	c.host.observer.ConnOpened(c.name)
	c.logger.Info("worker connected")

	c.start()

	var g errgroup.Group
	g.Go(c.readLoop)
	g.Go(c.workLoop)
	if c.host.config.HeartbeatInterval > 0 {
		g.Go(c.pingLoop)
	}
	err := g.Wait()

	c.stop()
	c.markClosed()
	c.ws.Close()
	c.host.unregister(c)

	lifetime := time.Since(c.opened)
	c.host.observer.ConnClosed(c.name, lifetime)
	if err != nil {
		c.logger.Warn("worker disconnected", "error", err, "lifetime", lifetime)
		return
	}
	c.logger.Info("worker disconnected", "lifetime", lifetime)
}

// readLoop reads frames until the client closes or the socket fails. It is
// the only sender on the mailbox.
func (c *conn) readLoop() error {
	defer close(c.mailbox)
	defer c.cancel()

	cfg := c.host.config
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}

		frame, err := wire.DecodeFrame(msg)
		if err != nil {
			c.logger.Warn("frame decode error", "error", err)
			c.sendError(wire.ErrInvalidFrame, err.Error())
			continue
		}

		switch frame.Type {
		case wire.FrameInput:
			c.host.observer.InputReceived(c.name, len(frame.Payload))
			select {
			case c.mailbox <- json.RawMessage(frame.Payload):
			default:
				c.host.observer.InputRejected(c.name)
				c.sendError(wire.ErrMailboxFull, bridgeerrors.New("B003").Error())
			}

		case wire.FrameClose:
			c.logger.Debug("client closed", "reason", wire.DecodeClose(frame.Payload))
			return nil

		default:
			c.logger.Warn("unexpected frame", "type", frame.Type)
		}
	}
}

// workLoop feeds inputs to the worker one at a time.
func (c *conn) workLoop() error {
	for input := range c.mailbox {
		if c.ctx.Err() != nil {
			continue
		}
		c.receive(input)
	}
	return nil
}

func (c *conn) pingLoop() error {
	ticker := time.NewTicker(c.host.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case <-ticker.C:
			c.writeMu.Lock()
			if c.closed {
				c.writeMu.Unlock()
				return nil
			}
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.host.config.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				// Unblocks the read loop.
				c.ws.Close()
				return fmt.Errorf("heartbeat: %w", err)
			}
		}
	}
}

func (c *conn) receive(input json.RawMessage) {
	ctx, span := c.host.tracer.Start(c.ctx, "workerhost.receive",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("bridge.worker", c.name),
			attribute.String("bridge.conn_id", c.id),
			attribute.Int("bridge.input_bytes", len(input)),
		),
	)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			c.host.observer.WorkerPanicked(c.name)
			c.logger.Error("worker panic",
				"panic", r,
				"stack", string(debug.Stack()))
			err := bridgeerrors.New("B061").WithDetail(fmt.Sprint(r))
			span.RecordError(err)
			span.SetStatus(codes.Error, "worker panic")
			c.sendError(wire.ErrWorkerPanic, err.Error())
		}
	}()
	c.worker.Receive(ctx, input, c)
}

func (c *conn) start() {
	defer func() {
		if r := recover(); r != nil {
			c.host.observer.WorkerPanicked(c.name)
			c.logger.Error("worker panic in Connected", "panic", r)
		}
	}()
	worker.Start(c.worker, worker.Scope[json.RawMessage](c))
}

func (c *conn) stop() {
	defer func() {
		if r := recover(); r != nil {
			c.host.observer.WorkerPanicked(c.name)
			c.logger.Error("worker panic in Destroy", "panic", r)
		}
	}()
	worker.Stop(c.worker)
}

// writeFrame writes one frame and returns the number of bytes on the wire.
func (c *conn) writeFrame(ft wire.FrameType, payload []byte) (int, error) {
	data, err := wire.NewFrame(ft, payload).Encode()
	if err != nil {
		return 0, bridgeerrors.New("B043").Wrap(err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return 0, bridgeerrors.New("B002")
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.host.config.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (c *conn) sendError(code wire.ErrorCode, message string) {
	_, err := c.writeFrame(wire.FrameError, wire.EncodeErrorMessage(&wire.ErrorMessage{
		Code:    code,
		Message: message,
	}))
	if err != nil {
		c.logger.Debug("error frame not sent", "code", code, "error", err)
	}
}

// closeWith sends a Close frame and a WebSocket close message, then closes
// the socket. Later writes fail.
func (c *conn) closeWith(reason wire.CloseReason) {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return
	}
	deadline := time.Now().Add(c.host.config.WriteTimeout)
	if data, err := wire.NewFrame(wire.FrameClose, wire.EncodeClose(reason)).Encode(); err == nil {
		c.ws.SetWriteDeadline(deadline)
		_ = c.ws.WriteMessage(websocket.BinaryMessage, data)
	}
	code := websocket.CloseNormalClosure
	if reason == wire.CloseServerShutdown {
		code = websocket.CloseGoingAway
	}
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason.String()), deadline)
	c.closed = true
	c.writeMu.Unlock()

	c.ws.Close()
}

func (c *conn) markClosed() {
	c.writeMu.Lock()
	c.closed = true
	c.writeMu.Unlock()
}

func (c *conn) isClosed() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.closed
}
