package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/vango-dev/bridge/pkg/wire"
	"github.com/vango-dev/bridge/pkg/worker"
	"github.com/vango-dev/bridge/pkg/workerhost"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerTopic sets the topic prefix. Default: DefaultTopic.
func WithServerTopic(prefix string) ServerOption {
	return func(s *Server) {
		if prefix != "" {
			s.topic = prefix
		}
	}
}

// WithServerLogger sets the logger. Default: slog.Default().
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMailboxSize sets how many inputs may wait per worker. Default: 128.
func WithMailboxSize(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.mailboxSize = n
		}
	}
}

// WithObserver reports connection traffic, using the same observer
// interface as the WebSocket host.
func WithObserver(o workerhost.Observer) ServerOption {
	return func(s *Server) {
		if o != nil {
			s.observer = o
		}
	}
}

// Server runs registered workers for clients on the bus.
type Server struct {
	pub         message.Publisher
	sub         message.Subscriber
	registry    *worker.Registry
	topic       string
	logger      *slog.Logger
	observer    workerhost.Observer
	mailboxSize int

	mu    sync.Mutex
	conns map[string]*serverConn
	wg    sync.WaitGroup
}

// NewServer creates a server for the workers in registry.
func NewServer(pub message.Publisher, sub message.Subscriber, registry *worker.Registry, opts ...ServerOption) *Server {
	s := &Server{
		pub:         pub,
		sub:         sub,
		registry:    registry,
		topic:       DefaultTopic,
		logger:      slog.Default(),
		observer:    workerhost.NopObserver{},
		mailboxSize: 128,
		conns:       make(map[string]*serverConn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "pubsub-server", "topic", s.topic)
	return s
}

// Run consumes the input topic until ctx is done, then closes every open
// connection and waits for its worker to be destroyed.
func (s *Server) Run(ctx context.Context) error {
	msgs, err := s.sub.Subscribe(ctx, InputTopic(s.topic))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", InputTopic(s.topic), err)
	}
	s.logger.Info("pubsub server started")

	defer func() {
		s.closeAll()
		s.wg.Wait()
		s.logger.Info("pubsub server stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			// Acked before handling; a blocking bus must not wait on a
			// worker to let the publisher go.
			msg.Ack()
			s.handle(msg)
		}
	}
}

// Conns returns the number of open connections.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handle(msg *message.Message) {
	connID := msg.Metadata.Get(MetaConn)
	if connID == "" {
		s.logger.Warn("message without connection id", "uuid", msg.UUID)
		return
	}

	switch kind := msg.Metadata.Get(MetaKind); kind {
	case KindOpen:
		s.open(connID, msg.Metadata.Get(MetaWorker))

	case KindInput:
		c := s.lookup(connID)
		if c == nil {
			go s.publishError(connID, wire.ErrServerError, "unknown connection", true)
			return
		}
		s.observer.InputReceived(c.name, len(msg.Payload))
		if !c.enqueue(json.RawMessage(msg.Payload)) {
			s.observer.InputRejected(c.name)
			go s.publishError(connID, wire.ErrMailboxFull, "mailbox full", false)
		}

	case KindClose:
		if c := s.remove(connID); c != nil {
			c.close()
		}

	default:
		s.logger.Warn("unexpected message", "kind", kind, "conn_id", connID)
	}
}

func (s *Server) open(connID, name string) {
	factory, err := s.registry.Lookup(name)
	if err != nil {
		s.logger.Warn("open for unknown worker", "worker", name, "conn_id", connID)
		go s.publishError(connID, wire.ErrWorkerNotFound, err.Error(), true)
		return
	}

	c := &serverConn{
		id:      connID,
		name:    name,
		server:  s,
		worker:  factory(),
		mailbox: make(chan json.RawMessage, s.mailboxSize),
		logger:  s.logger.With("worker", name, "conn_id", connID),
		opened:  time.Now(),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	s.mu.Lock()
	if _, dup := s.conns[connID]; dup {
		s.mu.Unlock()
		c.cancel()
		s.logger.Warn("duplicate open", "conn_id", connID)
		return
	}
	s.conns[connID] = c
	s.wg.Add(1)
	s.mu.Unlock()

	go c.run()
}

func (s *Server) lookup(connID string) *serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[connID]
}

func (s *Server) remove(connID string) *serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conns[connID]
	delete(s.conns, connID)
	return c
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[string]*serverConn)
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
		s.publish(c.id, newMessage(KindClosed, c.id, nil))
	}
}

func (s *Server) publish(connID string, msg *message.Message) error {
	err := s.pub.Publish(OutputTopic(s.topic, connID), msg)
	if err != nil {
		s.logger.Warn("publish failed", "conn_id", connID, "kind", msg.Metadata.Get(MetaKind), "error", err)
	}
	return err
}

func (s *Server) publishError(connID string, code wire.ErrorCode, text string, fatal bool) {
	s.publish(connID, newMessage(KindError, connID, wire.EncodeErrorMessage(&wire.ErrorMessage{
		Code:    code,
		Message: text,
		Fatal:   fatal,
	})))
}

// serverConn runs one worker. It implements worker.Scope[json.RawMessage].
type serverConn struct {
	id     string
	name   string
	server *Server
	worker worker.Raw
	logger *slog.Logger
	opened time.Time

	mu      sync.RWMutex
	closed  bool
	mailbox chan json.RawMessage

	ctx    context.Context
	cancel context.CancelFunc
}

func (c *serverConn) ID() string { return c.id }

// Respond implements worker.Scope.
func (c *serverConn) Respond(output json.RawMessage) {
	if c.ctx.Err() != nil {
		return
	}
	if c.server.publish(c.id, newMessage(KindOutput, c.id, output)) == nil {
		c.server.observer.OutputSent(c.name, len(output))
	}
}

func (c *serverConn) enqueue(input json.RawMessage) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.mailbox <- input:
		return true
	default:
		return false
	}
}

func (c *serverConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.mailbox)
	c.cancel()
}

func (c *serverConn) run() {
	defer c.server.wg.Done()

	s := c.server
	s.observer.ConnOpened(c.name)
	c.logger.Info("worker opened")
	if s.publish(c.id, newMessage(KindOpened, c.id, nil)) != nil {
		if removed := s.remove(c.id); removed != nil {
			removed.close()
		}
	}

	c.safely("Connected", func() {
		worker.Start(c.worker, worker.Scope[json.RawMessage](c))
	})
	for input := range c.mailbox {
		if c.ctx.Err() != nil {
			continue
		}
		c.safely("Receive", func() {
			c.worker.Receive(c.ctx, input, c)
		})
	}
	c.safely("Destroy", func() {
		worker.Stop(c.worker)
	})

	s.observer.ConnClosed(c.name, time.Since(c.opened))
	c.logger.Info("worker closed")
}

func (c *serverConn) safely(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.server.observer.WorkerPanicked(c.name)
			c.logger.Error("worker panic",
				"stage", stage,
				"panic", r,
				"stack", string(debug.Stack()))
			if stage == "Receive" {
				go c.server.publishError(c.id, wire.ErrWorkerPanic, fmt.Sprint(r), false)
			}
		}
	}()
	fn()
}
