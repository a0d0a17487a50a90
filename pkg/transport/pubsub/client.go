package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	bridgeerrors "github.com/vango-dev/bridge/internal/errors"
	"github.com/vango-dev/bridge/pkg/bridge"
	"github.com/vango-dev/bridge/pkg/dispatch"
	"github.com/vango-dev/bridge/pkg/wire"
)

// Option configures a client Transport.
type Option func(*options)

type options struct {
	topic            string
	dispatcher       dispatch.Dispatcher
	logger           *slog.Logger
	handshakeTimeout time.Duration
}

// WithTopic sets the topic prefix. Default: DefaultTopic.
func WithTopic(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.topic = prefix
		}
	}
}

// WithDispatcher routes outputs through d instead of delivering them on the
// subscription goroutine.
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

// WithHandshakeTimeout bounds the wait for the server to open the
// connection. Default: 10 seconds.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}

// Transport connects to a named worker run by a Server on the same bus.
type Transport[I, O any] struct {
	pub    message.Publisher
	sub    message.Subscriber
	worker string
	opts   options
}

// New creates a client transport for the worker registered as name.
func New[I, O any](pub message.Publisher, sub message.Subscriber, name string, opts ...Option) *Transport[I, O] {
	o := options{
		topic:            DefaultTopic,
		logger:           slog.Default(),
		handshakeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Transport[I, O]{pub: pub, sub: sub, worker: name, opts: o}
}

var _ bridge.Transport[int, int] = (*Transport[int, int])(nil)

// Connect subscribes to a fresh output topic, asks the server to open the
// worker and waits for its answer.
func (t *Transport[I, O]) Connect(ctx context.Context, sink func(O)) (bridge.Conn[I], error) {
	connID := uuid.NewString()
	subCtx, cancel := context.WithCancel(context.Background())

	msgs, err := t.sub.Subscribe(subCtx, OutputTopic(t.opts.topic, connID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	open := newMessage(KindOpen, connID, nil)
	open.Metadata.Set(MetaWorker, t.worker)
	if err := t.pub.Publish(InputTopic(t.opts.topic), open); err != nil {
		cancel()
		return nil, fmt.Errorf("publish open: %w", err)
	}

	if err := t.awaitOpened(ctx, msgs); err != nil {
		cancel()
		return nil, err
	}

	c := &Conn[I, O]{
		id:     connID,
		topic:  t.opts.topic,
		pub:    t.pub,
		sink:   sink,
		opts:   t.opts,
		logger: t.opts.logger.With("worker", t.worker, "conn_id", connID),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop(msgs)
	return c, nil
}

func (t *Transport[I, O]) awaitOpened(ctx context.Context, msgs <-chan *message.Message) error {
	timer := time.NewTimer(t.opts.handshakeTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-msgs:
		if !ok {
			return bridgeerrors.New("B002").WithDetail("subscription closed during handshake")
		}
		msg.Ack()
		switch kind := msg.Metadata.Get(MetaKind); kind {
		case KindOpened:
			return nil
		case KindError:
			em, err := wire.DecodeErrorMessage(msg.Payload)
			if err != nil {
				return bridgeerrors.New("B040").Wrap(err)
			}
			return bridgeerrors.New("B004").Wrap(em)
		default:
			return bridgeerrors.New("B041").WithDetail(fmt.Sprintf("got %q during handshake", kind))
		}
	case <-timer.C:
		return bridgeerrors.New("B004").WithDetail(fmt.Sprintf("no answer from worker %q within %s", t.worker, t.opts.handshakeTimeout))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Conn is one connection to a worker over the bus.
type Conn[I, O any] struct {
	id     string
	topic  string
	pub    message.Publisher
	sink   func(O)
	opts   options
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool

	cancel     context.CancelFunc
	closeOnce  sync.Once
	closeErr   error
	done       chan struct{}
	delivering atomic.Bool
}

// ID returns the connection ID.
func (c *Conn[I, O]) ID() string { return c.id }

// Done is closed when the subscription loop has exited.
func (c *Conn[I, O]) Done() <-chan struct{} { return c.done }

// Send publishes input to the server.
func (c *Conn[I, O]) Send(input I) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return bridgeerrors.New("B042").Wrap(err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return bridge.ErrClosed
	}
	return c.pub.Publish(InputTopic(c.topic), newMessage(KindInput, c.id, payload))
}

// Close tells the server to destroy the worker and ends the subscription.
// Called from a handler running on the subscription goroutine it returns
// without waiting for that goroutine.
func (c *Conn[I, O]) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		alreadyClosed := c.closed
		c.closed = true
		c.mu.Unlock()

		if !alreadyClosed {
			c.closeErr = c.pub.Publish(InputTopic(c.topic), newMessage(KindClose, c.id, nil))
		}
		c.cancel()
		if !c.delivering.Load() {
			<-c.done
		}
	})
	return c.closeErr
}

func (c *Conn[I, O]) readLoop(msgs <-chan *message.Message) {
	defer close(c.done)
	defer c.markClosed()
	// Nobody reads the subscription after this loop; end it so a blocking
	// bus does not wait on us.
	defer c.cancel()

	for msg := range msgs {
		msg.Ack()
		switch kind := msg.Metadata.Get(MetaKind); kind {
		case KindOutput:
			c.deliver(msg.Payload)

		case KindError:
			em, err := wire.DecodeErrorMessage(msg.Payload)
			if err != nil {
				c.logger.Warn("error message decode error", "error", err)
				continue
			}
			c.logger.Warn("worker error", "code", em.Code, "message", em.Message, "fatal", em.Fatal)
			if em.Fatal {
				return
			}

		case KindClosed:
			c.logger.Info("server closed connection")
			return

		default:
			c.logger.Warn("unexpected message", "kind", kind)
		}
	}
}

func (c *Conn[I, O]) deliver(payload []byte) {
	if c.isClosed() {
		return
	}
	var out O
	if err := json.Unmarshal(payload, &out); err != nil {
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

func (c *Conn[I, O]) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn[I, O]) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
