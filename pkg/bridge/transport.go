package bridge

import "context"

// Conn is an established connection to a worker.
type Conn[I any] interface {
	// Send enqueues input for the worker. It must not wait for a response.
	Send(input I) error

	// Close tears the connection down. The bridge calls it exactly once.
	Close() error
}

// Transport establishes connections to a worker.
//
// Connect registers sink to be called once per output message, in the order
// the worker produced them.
type Transport[I, O any] interface {
	Connect(ctx context.Context, sink func(output O)) (Conn[I], error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc[I, O any] func(ctx context.Context, sink func(output O)) (Conn[I], error)

// Connect calls f(ctx, sink).
func (f TransportFunc[I, O]) Connect(ctx context.Context, sink func(output O)) (Conn[I], error) {
	return f(ctx, sink)
}
