// Package local runs workers in-process, one goroutine per connection.
package local

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	bridgeerrors "github.com/vango-dev/bridge/internal/errors"
	"github.com/vango-dev/bridge/pkg/bridge"
	"github.com/vango-dev/bridge/pkg/dispatch"
	"github.com/vango-dev/bridge/pkg/worker"
)

// DefaultMailboxSize is the per-connection input buffer.
const DefaultMailboxSize = 128

// ErrMailboxFull is returned by Send when the worker is behind.
var ErrMailboxFull = bridgeerrors.New("B003")

// Option configures a Transport.
type Option func(*options)

type options struct {
	mailboxSize int
	dispatcher  dispatch.Dispatcher
	logger      *slog.Logger
}

// WithMailboxSize sets how many inputs may wait for the worker.
func WithMailboxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.mailboxSize = n
		}
	}
}

// WithDispatcher routes outputs through d, typically the component's
// dispatch.Loop. Without it, outputs are delivered on the worker goroutine.
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

// Transport connects to in-process workers created by a factory.
type Transport[I, O any] struct {
	factory worker.Factory[I, O]
	opts    options
	nextID  atomic.Uint64
}

// New creates a transport that builds a fresh worker per connection.
func New[I, O any](factory worker.Factory[I, O], opts ...Option) *Transport[I, O] {
	o := options{
		mailboxSize: DefaultMailboxSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Transport[I, O]{factory: factory, opts: o}
}

var _ bridge.Transport[int, int] = (*Transport[int, int])(nil)

// Connect starts a worker goroutine and returns its connection.
func (t *Transport[I, O]) Connect(ctx context.Context, sink func(O)) (bridge.Conn[I], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := t.factory()
	if w == nil {
		return nil, bridgeerrors.New("B060").WithDetail("factory returned no worker")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &conn[I, O]{
		id:         strconv.FormatUint(t.nextID.Add(1), 10),
		worker:     w,
		sink:       sink,
		dispatcher: t.opts.dispatcher,
		mailbox:    make(chan I, t.opts.mailboxSize),
		ctx:        runCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	c.logger = t.opts.logger.With("worker_conn", c.id)

	go c.loop()
	return c, nil
}

type conn[I, O any] struct {
	id         string
	worker     worker.Worker[I, O]
	sink       func(O)
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger

	mailbox chan I
	mu      sync.RWMutex
	closed  bool

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
	delivering atomic.Int32 // handlers running on the worker goroutine
}

func (c *conn[I, O]) ID() string { return c.id }

// Respond implements worker.Scope.
func (c *conn[I, O]) Respond(output O) {
	if c.ctx.Err() != nil {
		return
	}
	if c.dispatcher == nil {
		c.delivering.Add(1)
		defer c.delivering.Add(-1)
		c.sink(output)
		return
	}
	if !c.dispatcher.Dispatch(func() { c.sink(output) }) {
		c.logger.Warn("output dispatcher rejected delivery")
	}
}

// Send enqueues input without waiting for the worker.
func (c *conn[I, O]) Send(input I) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return bridge.ErrClosed
	}
	select {
	case c.mailbox <- input:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Close stops the worker and waits until the in-flight input is done and the
// worker is destroyed. Called from a handler running on the worker goroutine
// it returns without waiting.
func (c *conn[I, O]) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.mailbox)
		c.mu.Unlock()

		c.cancel()
		if c.delivering.Load() == 0 {
			<-c.done
		}
	})
	return nil
}

// loop runs the whole worker lifecycle on one goroutine, so Connected never
// delivers while Connect is still running.
func (c *conn[I, O]) loop() {
	defer close(c.done)
	c.start()
	for input := range c.mailbox {
		if c.ctx.Err() != nil {
			continue
		}
		c.receive(input)
	}
	worker.Stop(c.worker)
}

func (c *conn[I, O]) start() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("worker panic in Connected",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	worker.Start(c.worker, worker.Scope[O](c))
}

func (c *conn[I, O]) receive(input I) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("worker panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	c.worker.Receive(c.ctx, input, c)
}
