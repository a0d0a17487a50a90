package workerhost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/bridge/internal/demo"
	"github.com/vango-dev/bridge/pkg/wire"
	"github.com/vango-dev/bridge/pkg/worker"
)

type counts struct {
	opened, closed   int
	inputs, outputs  int
	rejected, panics int
	oversized        int
}

type recordingObserver struct {
	mu sync.Mutex
	c  counts
}

func (o *recordingObserver) update(fn func(c *counts)) {
	o.mu.Lock()
	fn(&o.c)
	o.mu.Unlock()
}

func (o *recordingObserver) ConnOpened(string) { o.update(func(c *counts) { c.opened++ }) }
func (o *recordingObserver) ConnClosed(string, time.Duration) {
	o.update(func(c *counts) { c.closed++ })
}
func (o *recordingObserver) InputReceived(string, int) { o.update(func(c *counts) { c.inputs++ }) }
func (o *recordingObserver) OutputSent(string, int)    { o.update(func(c *counts) { c.outputs++ }) }
func (o *recordingObserver) InputRejected(string)      { o.update(func(c *counts) { c.rejected++ }) }
func (o *recordingObserver) WorkerPanicked(string)     { o.update(func(c *counts) { c.panics++ }) }
func (o *recordingObserver) OutputRejected(string)     { o.update(func(c *counts) { c.oversized++ }) }

func (o *recordingObserver) snapshot() counts {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.c
}

func newTestHost(t *testing.T, opts ...Option) (*Host, *httptest.Server) {
	t.Helper()
	reg := worker.NewRegistry()
	demo.Register(reg, nil)
	reg.Register("panicky", func() worker.Raw {
		return worker.Func[json.RawMessage, json.RawMessage](func(_ context.Context, in json.RawMessage, scope worker.Scope[json.RawMessage]) {
			switch string(in) {
			case `"boom"`:
				panic("boom")
			case `"huge"`:
				scope.Respond(json.RawMessage(`"` + strings.Repeat("x", 70000) + `"`))
				return
			}
			scope.Respond(in)
		})
	})

	h := New(reg, opts...)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return h, srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func writeFrame(t *testing.T, ws *websocket.Conn, ft wire.FrameType, payload []byte) {
	t.Helper()
	data, err := wire.NewFrame(ft, payload).Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("write %s frame: %v", ft, err)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) *wire.Frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	frame, err := wire.DecodeFrame(msg)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	return frame
}

// connect dials a worker and completes the Hello exchange.
func connect(t *testing.T, srv *httptest.Server, name string) (*websocket.Conn, string) {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/workers/"+name), nil)
	if err != nil {
		t.Fatalf("Dial(%q): %v", name, err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	writeFrame(t, ws, wire.FrameHello, wire.EncodeHello(&wire.Hello{Version: wire.ProtocolVersion}))
	frame := readFrame(t, ws)
	if frame.Type != wire.FrameHello {
		t.Fatalf("frame type = %v, want Hello", frame.Type)
	}
	hello, err := wire.DecodeHello(frame.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if hello.ConnID == "" {
		t.Fatal("host did not assign a connection ID")
	}
	return ws, hello.ConnID
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestHealthAndWorkerList(t *testing.T) {
	_, srv := newTestHost(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/workers")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "counter,echo,panicky" {
		t.Errorf("GET /workers = %v", names)
	}
}

func TestUnknownWorkerIsNotFound(t *testing.T) {
	_, srv := newTestHost(t)

	resp, err := http.Get(srv.URL + "/workers/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEchoRoundTrip(t *testing.T) {
	obs := &recordingObserver{}
	h, srv := newTestHost(t, WithObserver(obs))
	ws, _ := connect(t, srv, demo.EchoName)

	writeFrame(t, ws, wire.FrameInput, []byte(`{"text":"one"}`))
	writeFrame(t, ws, wire.FrameInput, []byte(`{"text":"two","upper":true}`))

	for _, want := range []string{`{"text":"one"}`, `{"text":"TWO","upper":true}`} {
		frame := readFrame(t, ws)
		if frame.Type != wire.FrameOutput || string(frame.Payload) != want {
			t.Fatalf("frame = %v %s, want Output %s", frame.Type, frame.Payload, want)
		}
	}
	if h.Conns() != 1 {
		t.Errorf("Conns() = %d, want 1", h.Conns())
	}

	writeFrame(t, ws, wire.FrameClose, wire.EncodeClose(wire.CloseNormal))
	waitFor(t, func() bool { return obs.snapshot().closed == 1 })

	got := obs.snapshot()
	if got.opened != 1 || got.inputs != 2 || got.outputs != 2 {
		t.Errorf("observer = %+v", got)
	}
	if h.Conns() != 0 {
		t.Errorf("Conns() after close = %d, want 0", h.Conns())
	}
}

func TestCounterKeepsStatePerConnection(t *testing.T) {
	_, srv := newTestHost(t)
	a, idA := connect(t, srv, demo.CounterName)
	b, idB := connect(t, srv, demo.CounterName)
	if idA == idB {
		t.Fatal("connections share an ID")
	}

	writeFrame(t, a, wire.FrameInput, []byte(`{"times":2}`))
	writeFrame(t, b, wire.FrameInput, []byte(`{}`))

	var last demo.CounterEvent
	for i := 0; i < 2; i++ {
		if err := json.Unmarshal(readFrame(t, a).Payload, &last); err != nil {
			t.Fatal(err)
		}
	}
	if last.Kind != demo.IncrementCounter || last.Total != 2 {
		t.Errorf("connection A last event = %+v", last)
	}
	if err := json.Unmarshal(readFrame(t, b).Payload, &last); err != nil {
		t.Fatal(err)
	}
	if last.Total != 1 {
		t.Errorf("connection B event = %+v, want total 1", last)
	}
}

func TestVersionMismatchRejected(t *testing.T) {
	_, srv := newTestHost(t)
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/workers/echo"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	writeFrame(t, ws, wire.FrameHello, wire.EncodeHello(&wire.Hello{Version: 99}))
	frame := readFrame(t, ws)
	if frame.Type != wire.FrameError {
		t.Fatalf("frame type = %v, want Error", frame.Type)
	}
	em, err := wire.DecodeErrorMessage(frame.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if em.Code != wire.ErrVersionMismatch || !em.Fatal {
		t.Errorf("error = %+v", em)
	}
}

func TestWorkerPanicIsReportedAndConnectionSurvives(t *testing.T) {
	obs := &recordingObserver{}
	_, srv := newTestHost(t, WithObserver(obs))
	ws, _ := connect(t, srv, "panicky")

	writeFrame(t, ws, wire.FrameInput, []byte(`"boom"`))
	frame := readFrame(t, ws)
	if frame.Type != wire.FrameError {
		t.Fatalf("frame type = %v, want Error", frame.Type)
	}
	em, err := wire.DecodeErrorMessage(frame.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if em.Code != wire.ErrWorkerPanic || em.Fatal {
		t.Errorf("error = %+v", em)
	}

	writeFrame(t, ws, wire.FrameInput, []byte(`"still here"`))
	if frame := readFrame(t, ws); string(frame.Payload) != `"still here"` {
		t.Errorf("payload after panic = %s", frame.Payload)
	}
	if obs.snapshot().panics != 1 {
		t.Errorf("panics = %d, want 1", obs.snapshot().panics)
	}
}

func TestOversizedOutputIsReported(t *testing.T) {
	obs := &recordingObserver{}
	_, srv := newTestHost(t, WithObserver(obs))
	ws, _ := connect(t, srv, "panicky")

	writeFrame(t, ws, wire.FrameInput, []byte(`"huge"`))
	frame := readFrame(t, ws)
	if frame.Type != wire.FrameError {
		t.Fatalf("frame type = %v, want Error", frame.Type)
	}
	em, err := wire.DecodeErrorMessage(frame.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if em.Code != wire.ErrOutputTooLarge || em.Fatal {
		t.Errorf("error = %+v, want non-fatal OutputTooLarge", em)
	}
	if obs.snapshot().oversized != 1 {
		t.Errorf("oversized outputs = %d, want 1", obs.snapshot().oversized)
	}

	writeFrame(t, ws, wire.FrameInput, []byte(`"next"`))
	if frame := readFrame(t, ws); frame.Type != wire.FrameOutput || string(frame.Payload) != `"next"` {
		t.Errorf("frame after oversized output = %v %s", frame.Type, frame.Payload)
	}
}

func TestLargestFrameIsAccepted(t *testing.T) {
	_, srv := newTestHost(t)
	ws, _ := connect(t, srv, "panicky")

	payload := []byte(`"` + strings.Repeat("x", wire.MaxPayloadSize-2) + `"`)
	writeFrame(t, ws, wire.FrameInput, payload)

	frame := readFrame(t, ws)
	if frame.Type != wire.FrameOutput || len(frame.Payload) != wire.MaxPayloadSize {
		t.Fatalf("frame = %v with %d bytes, want Output with %d", frame.Type, len(frame.Payload), wire.MaxPayloadSize)
	}
}

func TestConfigReadLimitCoversLargestFrame(t *testing.T) {
	cfg := &Config{MaxMessageSize: 1024}
	if got := cfg.withDefaults().MaxMessageSize; got != wire.MaxFrameSize {
		t.Errorf("MaxMessageSize = %d, want %d", got, wire.MaxFrameSize)
	}
	if got := DefaultConfig().MaxMessageSize; got < wire.MaxFrameSize {
		t.Errorf("default MaxMessageSize = %d is below the largest frame %d", got, wire.MaxFrameSize)
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	obs := &recordingObserver{}
	h, srv := newTestHost(t, WithObserver(obs), WithConfig(&Config{HeartbeatInterval: 10 * time.Millisecond}))
	ws, _ := connect(t, srv, demo.EchoName)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	frame := readFrame(t, ws)
	if frame.Type != wire.FrameClose || wire.DecodeClose(frame.Payload) != wire.CloseServerShutdown {
		t.Errorf("frame = %v %v, want Close ServerShutdown", frame.Type, frame.Payload)
	}
	if got := obs.snapshot().closed; got != 1 {
		t.Errorf("closed = %d, want 1", got)
	}

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("GET /healthz after shutdown = %d, want 503", resp.StatusCode)
	}
}
