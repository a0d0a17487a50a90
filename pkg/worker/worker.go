package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	bridgeerrors "github.com/vango-dev/bridge/internal/errors"
)

// Scope is a worker's view of its connection.
type Scope[O any] interface {
	// ID identifies the connection.
	ID() string

	// Respond sends output back to the connected component. Outputs are
	// delivered in the order Respond is called.
	Respond(output O)
}

// Worker handles inputs for one connection.
type Worker[I, O any] interface {
	Receive(ctx context.Context, input I, scope Scope[O])
}

// Connector is implemented by workers that act when a connection opens.
type Connector[O any] interface {
	Connected(scope Scope[O])
}

// Destroyer is implemented by workers that release resources when their
// connection closes.
type Destroyer interface {
	Destroy()
}

// Factory creates a fresh worker for a new connection.
type Factory[I, O any] func() Worker[I, O]

// Func adapts a function to the Worker interface.
type Func[I, O any] func(ctx context.Context, input I, scope Scope[O])

// Receive calls f(ctx, input, scope).
func (f Func[I, O]) Receive(ctx context.Context, input I, scope Scope[O]) {
	f(ctx, input, scope)
}

// Raw is a worker speaking JSON, as registered with network hosts.
type Raw = Worker[json.RawMessage, json.RawMessage]

// RawFactory creates raw workers.
type RawFactory = Factory[json.RawMessage, json.RawMessage]

// Typed adapts a typed factory into a raw one. Inputs that fail to decode
// are reported through onError and dropped; a nil onError ignores them.
func Typed[I, O any](factory Factory[I, O], onError func(error)) RawFactory {
	return func() Raw {
		return &typed[I, O]{inner: factory(), onError: onError}
	}
}

type typed[I, O any] struct {
	inner   Worker[I, O]
	onError func(error)
}

func (t *typed[I, O]) Receive(ctx context.Context, input json.RawMessage, scope Scope[json.RawMessage]) {
	var in I
	if err := json.Unmarshal(input, &in); err != nil {
		t.report(bridgeerrors.New("B042").WithDetail("decode worker input").Wrap(err))
		return
	}
	t.inner.Receive(ctx, in, t.scope(scope))
}

func (t *typed[I, O]) Connected(scope Scope[json.RawMessage]) {
	if c, ok := t.inner.(Connector[O]); ok {
		c.Connected(t.scope(scope))
	}
}

func (t *typed[I, O]) Destroy() {
	if d, ok := t.inner.(Destroyer); ok {
		d.Destroy()
	}
}

func (t *typed[I, O]) scope(raw Scope[json.RawMessage]) Scope[O] {
	return encodingScope[O]{raw: raw, report: t.report}
}

func (t *typed[I, O]) report(err error) {
	if t.onError != nil {
		t.onError(err)
	}
}

type encodingScope[O any] struct {
	raw    Scope[json.RawMessage]
	report func(error)
}

func (s encodingScope[O]) ID() string { return s.raw.ID() }

func (s encodingScope[O]) Respond(output O) {
	data, err := json.Marshal(output)
	if err != nil {
		s.report(bridgeerrors.New("B042").WithDetail("encode worker output").Wrap(err))
		return
	}
	s.raw.Respond(data)
}

// Registry maps worker names to raw factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]RawFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]RawFactory)}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, factory RawFactory) {
	if name == "" || factory == nil {
		panic(fmt.Sprintf("worker: invalid registration %q", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (RawFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, bridgeerrors.New("B060").WithDetail(fmt.Sprintf("worker %q", name))
	}
	return f, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start runs the optional Connected hook of w.
func Start[I, O any](w Worker[I, O], scope Scope[O]) {
	if c, ok := w.(Connector[O]); ok {
		c.Connected(scope)
	}
}

// Stop runs the optional Destroy hook of w.
func Stop[I, O any](w Worker[I, O]) {
	if d, ok := w.(Destroyer); ok {
		d.Destroy()
	}
}
