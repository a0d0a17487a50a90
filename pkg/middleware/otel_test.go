package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/bridge/pkg/bridge"
)

type recordingTracer struct {
	noop.Tracer
	mu    sync.Mutex
	names []string
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return r.Tracer.Start(ctx, name, opts...)
}

func (r *recordingTracer) spans() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

type recordingProvider struct {
	noop.TracerProvider
	tracer *recordingTracer
}

func (p recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return p.tracer
}

func TestTraceRecordsSpans(t *testing.T) {
	tracer := &recordingTracer{}
	sendErr := errors.New("send failed")

	var sink func(int)
	inner := bridge.TransportFunc[string, int](func(ctx context.Context, s func(int)) (bridge.Conn[string], error) {
		sink = s
		return nopConn{sendErr: sendErr}, nil
	})
	tr := Trace[string, int](inner,
		WithTracerProvider(recordingProvider{tracer: tracer}),
		WithTraceDeliveries(true),
	)

	var delivered int
	s := bridge.NewSession[string, int](tr)
	h, err := s.Use(context.Background(), func(int) { delivered++ })
	if err != nil {
		t.Fatal(err)
	}

	if err := h.Send("x"); !errors.Is(err, sendErr) {
		t.Errorf("Send() = %v, want the inner error unchanged", err)
	}
	sink(7)
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if err := s.Unmount(); err != nil {
		t.Fatal(err)
	}

	want := []string{"bridge.connect", "bridge.send", "bridge.deliver", "bridge.close"}
	got := tracer.spans()
	if len(got) != len(want) {
		t.Fatalf("spans = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("span %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTraceConnectErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	inner := bridge.TransportFunc[string, int](func(context.Context, func(int)) (bridge.Conn[string], error) {
		return nil, boom
	})

	conn, err := Trace[string, int](inner).Connect(context.Background(), func(int) {})
	if conn != nil || err != boom {
		t.Errorf("Connect() = %v, %v; want nil, boom", conn, err)
	}
}
