package middleware

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/bridge/pkg/bridge"
)

// Default tracer name for bridge transports.
const defaultTracerName = "github.com/vango-dev/bridge"

// OTelConfig configures the OpenTelemetry transport wrapper.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "github.com/vango-dev/bridge").
	TracerName string

	// TracerProvider resolves the tracer.
	// Default: the global provider from otel.GetTracerProvider.
	TracerProvider trace.TracerProvider

	// Attributes are added to every span.
	Attributes []attribute.KeyValue

	// TraceDeliveries records a span around every output handed to the
	// handler. Disabled by default; outputs can be frequent.
	TraceDeliveries bool
}

// OTelOption configures the OpenTelemetry transport wrapper.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithAttributes adds attributes to every span.
func WithAttributes(attrs ...attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.Attributes = append(c.Attributes, attrs...)
	}
}

// WithTraceDeliveries enables a span per delivered output.
func WithTraceDeliveries(enabled bool) OTelOption {
	return func(c *OTelConfig) {
		c.TraceDeliveries = enabled
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
	}
}

// Trace wraps inner so that connect, send and close each record a span.
// Errors are recorded on the span and returned unchanged.
func Trace[I, O any](inner bridge.Transport[I, O], opts ...OTelOption) bridge.Transport[I, O] {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &tracedTransport[I, O]{
		inner:  inner,
		tracer: tp.Tracer(config.TracerName),
		config: config,
	}
}

type tracedTransport[I, O any] struct {
	inner  bridge.Transport[I, O]
	tracer trace.Tracer
	config OTelConfig
}

func (t *tracedTransport[I, O]) Connect(ctx context.Context, sink func(O)) (bridge.Conn[I], error) {
	ctx, span := t.tracer.Start(ctx, "bridge.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.config.Attributes...),
	)
	defer span.End()

	if t.config.TraceDeliveries {
		sink = t.traceSink(span.SpanContext(), sink)
	}

	conn, err := t.inner.Connect(ctx, sink)
	if err != nil {
		recordResult(span, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return &tracedConn[I]{inner: conn, tracer: t.tracer, link: span.SpanContext(), attrs: t.config.Attributes}, nil
}

// traceSink records a span per output, linked to the connect span.
func (t *tracedTransport[I, O]) traceSink(link trace.SpanContext, sink func(O)) func(O) {
	return func(out O) {
		_, span := t.tracer.Start(context.Background(), "bridge.deliver",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithLinks(trace.Link{SpanContext: link}),
			trace.WithAttributes(t.config.Attributes...),
			trace.WithAttributes(attribute.String("bridge.output_type", fmt.Sprintf("%T", out))),
		)
		defer span.End()
		sink(out)
	}
}

type tracedConn[I any] struct {
	inner  bridge.Conn[I]
	tracer trace.Tracer
	link   trace.SpanContext
	attrs  []attribute.KeyValue
}

func (c *tracedConn[I]) Send(input I) error {
	_, span := c.tracer.Start(context.Background(), "bridge.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithLinks(trace.Link{SpanContext: c.link}),
		trace.WithAttributes(c.attrs...),
	)
	defer span.End()

	err := c.inner.Send(input)
	recordResult(span, err)
	return err
}

func (c *tracedConn[I]) Close() error {
	_, span := c.tracer.Start(context.Background(), "bridge.close",
		trace.WithLinks(trace.Link{SpanContext: c.link}),
		trace.WithAttributes(c.attrs...),
	)
	defer span.End()

	err := c.inner.Close()
	recordResult(span, err)
	return err
}

func recordResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
