package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vango-dev/bridge/pkg/bridge"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

type nopConn struct{ sendErr error }

func (c nopConn) Send(string) error { return c.sendErr }
func (c nopConn) Close() error      { return nil }

func TestMetricsObserveSession(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()))

	var sink func(int)
	tr := bridge.TransportFunc[string, int](func(ctx context.Context, s func(int)) (bridge.Conn[string], error) {
		sink = s
		return nopConn{}, nil
	})

	s := bridge.NewSession[string, int](tr, bridge.WithObserver(m))
	h, err := s.Use(context.Background(), func(int) {})
	if err != nil {
		t.Fatal(err)
	}
	if got := metricGaugeValue(t, m.activeConnections); got != 1 {
		t.Fatalf("active_connections = %v, want 1", got)
	}

	_ = h.Send("a")
	_ = h.Send("b")
	sink(1)

	if err := s.Unmount(); err != nil {
		t.Fatal(err)
	}

	if got := metricCounterValue(t, m.connectsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("connects_total(success) = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.sendsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("sends_total(success) = %v, want 2", got)
	}
	if got := metricCounterValue(t, m.deliveriesTotal); got != 1 {
		t.Errorf("deliveries_total = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.disconnectsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("disconnects_total(success) = %v, want 1", got)
	}
	if got := metricGaugeValue(t, m.activeConnections); got != 0 {
		t.Errorf("active_connections after unmount = %v, want 0", got)
	}
}

func TestMetricsLabelFailures(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))

	m.ConnectFailed(context.DeadlineExceeded)
	m.ConnectFailed(errors.New("dial tcp: connection refused"))
	m.Sent(1, bridge.ErrClosed)

	if got := metricCounterValue(t, m.connectsTotal.WithLabelValues("timeout")); got != 1 {
		t.Errorf("connects_total(timeout) = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.connectsTotal.WithLabelValues("refused")); got != 1 {
		t.Errorf("connects_total(refused) = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.sendsTotal.WithLabelValues(bridge.ErrClosed.Code)); got != 1 {
		t.Errorf("sends_total(%s) = %v, want 1", bridge.ErrClosed.Code, got)
	}
}

func TestMetricsObserveHost(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()))

	m.ConnOpened("echo")
	m.InputReceived("echo", 10)
	m.OutputSent("echo", 14)
	m.OutputSent("echo", 14)
	m.InputRejected("echo")
	m.OutputRejected("echo")
	m.WorkerPanicked("echo")

	if got := metricGaugeValue(t, m.hostConnections.WithLabelValues("echo")); got != 1 {
		t.Errorf("host_connections = %v, want 1", got)
	}
	m.ConnClosed("echo", 2*time.Second)

	if got := metricGaugeValue(t, m.hostConnections.WithLabelValues("echo")); got != 0 {
		t.Errorf("host_connections after close = %v, want 0", got)
	}
	if got := metricHistogramCount(t, m.hostConnDuration.WithLabelValues("echo")); got != 1 {
		t.Errorf("host_connection_seconds count = %d, want 1", got)
	}
	if got := metricCounterValue(t, m.hostMessages.WithLabelValues("echo", "out")); got != 2 {
		t.Errorf("host_messages_total(out) = %v, want 2", got)
	}
	if got := metricCounterValue(t, m.hostBytes.WithLabelValues("echo", "in")); got != 10 {
		t.Errorf("host_bytes_total(in) = %v, want 10", got)
	}
	for _, dir := range []string{"in", "out"} {
		if got := metricCounterValue(t, m.hostRejected.WithLabelValues("echo", dir)); got != 1 {
			t.Errorf("host_rejected_total(%s) = %v, want 1", dir, got)
		}
	}
	if got := metricCounterValue(t, m.hostPanics.WithLabelValues("echo")); got != 1 {
		t.Errorf("host_worker_panics_total = %v, want 1", got)
	}
}

func TestNewMetricsTwiceOnOneRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(WithRegistry(reg))

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewMetrics(WithRegistry(reg))
}
