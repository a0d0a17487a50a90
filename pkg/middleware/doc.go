// Package middleware provides observability for bridges and worker hosts.
//
// # Prometheus Metrics
//
// Metrics implements both bridge.Observer and workerhost.Observer, so one
// instance can watch the client side and the host side of a deployment:
//
//	m := middleware.NewMetrics(middleware.WithNamespace("myapp"))
//	s := bridge.NewSession(transport, bridge.WithObserver(m))
//	host := workerhost.New(registry, workerhost.WithObserver(m))
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # OpenTelemetry
//
// Trace wraps any bridge.Transport and records a span for connect, each
// send, close and, optionally, each delivered output:
//
//	tr := middleware.Trace(ws.New[In, Out](url), middleware.WithTracerName("my-app"))
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given.
package middleware
