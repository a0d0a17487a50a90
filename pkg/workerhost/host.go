package workerhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	bridgeerrors "github.com/vango-dev/bridge/internal/errors"
	"github.com/vango-dev/bridge/pkg/wire"
	"github.com/vango-dev/bridge/pkg/worker"
)

// DefaultTracerName is the tracer used when WithTracer is not given.
const DefaultTracerName = "github.com/vango-dev/bridge/workerhost"

// Option configures a Host.
type Option func(*Host)

// WithConfig sets the per-connection configuration. Zero fields keep their
// defaults.
func WithConfig(c *Config) Option {
	return func(h *Host) {
		h.config = c.withDefaults()
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithObserver sets the observer notified of connection traffic.
func WithObserver(o Observer) Option {
	return func(h *Host) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithTracer sets the tracer used for per-input spans.
func WithTracer(t trace.Tracer) Option {
	return func(h *Host) {
		if t != nil {
			h.tracer = t
		}
	}
}

// Host serves workers from a registry.
type Host struct {
	registry *worker.Registry
	config   *Config
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[string]*conn
	closing bool
	wg      sync.WaitGroup
}

// New creates a host for the workers in registry.
func New(registry *worker.Registry, opts ...Option) *Host {
	h := &Host{
		registry: registry,
		config:   DefaultConfig(),
		logger:   slog.Default(),
		observer: NopObserver{},
		tracer:   otel.Tracer(DefaultTracerName),
		conns:    make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "workerhost")

	checkOrigin := h.config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  h.config.ReadBufferSize,
		WriteBufferSize: h.config.WriteBufferSize,
		CheckOrigin:     checkOrigin,
	}
	return h
}

// Router returns the HTTP routes of the host:
//
//	GET /healthz          liveness, 503 once shutting down
//	GET /workers          registered worker names as JSON
//	GET /workers/{name}   WebSocket endpoint for one worker connection
func (h *Host) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealth)
	r.Get("/workers", h.handleList)
	r.Get("/workers/{name}", h.HandleWorker)
	return r
}

func (h *Host) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.isClosing() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Host) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.registry.Names()); err != nil {
		h.logger.Error("list workers", "error", err)
	}
}

// HandleWorker upgrades the request and serves one worker connection until
// either side closes it.
func (h *Host) HandleWorker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	factory, err := h.registry.Lookup(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if h.isClosing() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(h.config.MaxMessageSize)

	if err := h.handshake(ws); err != nil {
		h.logger.Warn("handshake failed", "worker", name, "error", err)
		ws.Close()
		return
	}

	c := newConn(h, name, ws, factory())
	if !h.register(c) {
		c.cancel()
		c.closeWith(wire.CloseServerShutdown)
		return
	}
	defer h.wg.Done()

	if _, err := c.writeFrame(wire.FrameHello, wire.EncodeHello(&wire.Hello{
		Version: wire.ProtocolVersion,
		ConnID:  c.id,
	})); err != nil {
		h.logger.Warn("server hello failed", "worker", name, "error", err)
		c.cancel()
		h.unregister(c)
		ws.Close()
		return
	}
	c.serve()
}

// handshake reads the client Hello and rejects unsupported versions.
func (h *Host) handshake(ws *websocket.Conn) error {
	ws.SetReadDeadline(time.Now().Add(h.config.HandshakeTimeout))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return err
	}
	ws.SetReadDeadline(time.Time{})

	frame, err := wire.DecodeFrame(msg)
	if err != nil {
		h.rejectHandshake(ws, wire.ErrInvalidFrame, err.Error())
		return bridgeerrors.New("B040").Wrap(err)
	}
	if frame.Type != wire.FrameHello {
		h.rejectHandshake(ws, wire.ErrInvalidFrame, "expected Hello")
		return bridgeerrors.New("B041").WithDetail(fmt.Sprintf("got %s, expected Hello", frame.Type))
	}
	hello, err := wire.DecodeHello(frame.Payload)
	if err != nil {
		h.rejectHandshake(ws, wire.ErrInvalidFrame, err.Error())
		return bridgeerrors.New("B040").Wrap(err)
	}
	if hello.Version != wire.ProtocolVersion {
		msg := fmt.Sprintf("protocol version %d not supported, want %d", hello.Version, wire.ProtocolVersion)
		h.rejectHandshake(ws, wire.ErrVersionMismatch, msg)
		return bridgeerrors.New("B004").WithDetail(msg)
	}
	return nil
}

func (h *Host) rejectHandshake(ws *websocket.Conn, code wire.ErrorCode, message string) {
	data, err := wire.NewFrame(wire.FrameError, wire.EncodeErrorMessage(&wire.ErrorMessage{
		Code:    code,
		Message: message,
		Fatal:   true,
	})).Encode()
	if err != nil {
		return
	}
	ws.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	_ = ws.WriteMessage(websocket.BinaryMessage, data)
}

func (h *Host) register(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[c.id] = c
	h.wg.Add(1)
	return true
}

func (h *Host) unregister(c *conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
}

func (h *Host) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// Conns returns the number of open worker connections.
func (h *Host) Conns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown stops accepting connections, sends Close{ServerShutdown} to every
// open one and waits until their workers are destroyed or ctx is done.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.logger.Info("shutting down", "connections", len(conns))
	for _, c := range conns {
		c.closeWith(wire.CloseServerShutdown)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newConnID() string {
	return uuid.NewString()
}
