package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	bridgeerrors "github.com/vango-dev/bridge/internal/errors"
	"github.com/vango-dev/bridge/pkg/bridge"
	"github.com/vango-dev/bridge/pkg/workerhost"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "bridge").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for connection lifetime in seconds.
	// Default: 1s to about 2.3h.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "bridge",
		Buckets:   prometheus.ExponentialBuckets(1, 3, 9),
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records bridge and worker host activity.
//
// Client side (bridge.Observer):
//   - bridge_connects_total{status}
//   - bridge_active_connections
//   - bridge_sends_total{status}
//   - bridge_deliveries_total
//   - bridge_disconnects_total{status}
//
// Host side (workerhost.Observer):
//   - bridge_host_connections{worker}
//   - bridge_host_connection_seconds{worker}
//   - bridge_host_messages_total{worker,direction}
//   - bridge_host_bytes_total{worker,direction}
//   - bridge_host_rejected_total{worker,direction}
//   - bridge_host_worker_panics_total{worker}
type Metrics struct {
	connectsTotal     *prometheus.CounterVec
	activeConnections prometheus.Gauge
	sendsTotal        *prometheus.CounterVec
	deliveriesTotal   prometheus.Counter
	disconnectsTotal  *prometheus.CounterVec

	hostConnections  *prometheus.GaugeVec
	hostConnDuration *prometheus.HistogramVec
	hostMessages     *prometheus.CounterVec
	hostBytes        *prometheus.CounterVec
	hostRejected     *prometheus.CounterVec
	hostPanics       *prometheus.CounterVec
}

var (
	_ bridge.Observer     = (*Metrics)(nil)
	_ workerhost.Observer = (*Metrics)(nil)
)

// NewMetrics registers the metrics with the configured registry. Registering
// twice with one registry panics, as with promauto.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Metrics{
		connectsTotal: counterVec("connects_total",
			"Total connection attempts by outcome", "status"),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_connections",
			Help:        "Number of open bridge connections",
			ConstLabels: config.ConstLabels,
		}),

		sendsTotal: counterVec("sends_total",
			"Total inputs sent to workers by outcome", "status"),

		deliveriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "deliveries_total",
			Help:        "Total worker outputs delivered to handlers",
			ConstLabels: config.ConstLabels,
		}),

		disconnectsTotal: counterVec("disconnects_total",
			"Total connection teardowns by outcome", "status"),

		hostConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "host_connections",
			Help:        "Number of open worker host connections",
			ConstLabels: config.ConstLabels,
		}, []string{"worker"}),

		hostConnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "host_connection_seconds",
			Help:        "Worker host connection lifetime in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"worker"}),

		hostMessages: counterVec("host_messages_total",
			"Total frames handled by the worker host", "worker", "direction"),

		hostBytes: counterVec("host_bytes_total",
			"Total payload bytes handled by the worker host", "worker", "direction"),

		hostRejected: counterVec("host_rejected_total",
			"Total inputs rejected on a full mailbox and outputs too large for a frame", "worker", "direction"),

		hostPanics: counterVec("host_worker_panics_total",
			"Total worker panics recovered by the host", "worker"),
	}
}

// Connected implements bridge.Observer.
func (m *Metrics) Connected(uint64) {
	m.connectsTotal.WithLabelValues("success").Inc()
	m.activeConnections.Inc()
}

// ConnectFailed implements bridge.Observer.
func (m *Metrics) ConnectFailed(err error) {
	m.connectsTotal.WithLabelValues(categorizeError(err)).Inc()
}

// Sent implements bridge.Observer.
func (m *Metrics) Sent(_ uint64, err error) {
	status := "success"
	if err != nil {
		status = categorizeError(err)
	}
	m.sendsTotal.WithLabelValues(status).Inc()
}

// Delivered implements bridge.Observer.
func (m *Metrics) Delivered(uint64) {
	m.deliveriesTotal.Inc()
}

// Disconnected implements bridge.Observer.
func (m *Metrics) Disconnected(_ uint64, err error) {
	status := "success"
	if err != nil {
		status = categorizeError(err)
	}
	m.disconnectsTotal.WithLabelValues(status).Inc()
	m.activeConnections.Dec()
}

// ConnOpened implements workerhost.Observer.
func (m *Metrics) ConnOpened(worker string) {
	m.hostConnections.WithLabelValues(worker).Inc()
}

// ConnClosed implements workerhost.Observer.
func (m *Metrics) ConnClosed(worker string, lifetime time.Duration) {
	m.hostConnections.WithLabelValues(worker).Dec()
	m.hostConnDuration.WithLabelValues(worker).Observe(lifetime.Seconds())
}

// InputReceived implements workerhost.Observer.
func (m *Metrics) InputReceived(worker string, bytes int) {
	m.hostMessages.WithLabelValues(worker, "in").Inc()
	m.hostBytes.WithLabelValues(worker, "in").Add(float64(bytes))
}

// OutputSent implements workerhost.Observer.
func (m *Metrics) OutputSent(worker string, bytes int) {
	m.hostMessages.WithLabelValues(worker, "out").Inc()
	m.hostBytes.WithLabelValues(worker, "out").Add(float64(bytes))
}

// InputRejected implements workerhost.Observer.
func (m *Metrics) InputRejected(worker string) {
	m.hostRejected.WithLabelValues(worker, "in").Inc()
}

// OutputRejected implements workerhost.Observer.
func (m *Metrics) OutputRejected(worker string) {
	m.hostRejected.WithLabelValues(worker, "out").Inc()
}

// WorkerPanicked implements workerhost.Observer.
func (m *Metrics) WorkerPanicked(worker string) {
	m.hostPanics.WithLabelValues(worker).Inc()
}

// categorizeError returns a low-cardinality label for err: its bridge error
// code when it has one, otherwise a coarse category.
func categorizeError(err error) string {
	if code := bridgeerrors.Code(err); code != "" {
		return code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "refused"):
		return "refused"
	case strings.Contains(msg, "websocket"):
		return "websocket"
	default:
		return "internal"
	}
}
