// Package demo provides the workers registered by "bridge serve".
package demo

import (
	"context"
	"strings"
	"sync"

	"github.com/vango-dev/bridge/pkg/worker"
)

// Worker names as registered by Register.
const (
	CounterName = "counter"
	EchoName    = "echo"
)

// CounterRequest asks the counter worker to emit Times increments.
// Zero means one.
type CounterRequest struct {
	Times int `json:"times,omitempty"`
}

// CounterEvent is emitted by the counter worker.
type CounterEvent struct {
	Kind  string `json:"kind"`
	Total int    `json:"total"`
}

// IncrementCounter is the Kind of every event the counter emits.
const IncrementCounter = "IncrementCounter"

// Counter emits one IncrementCounter event per requested increment and keeps
// a running total for its connection.
type Counter struct {
	mu    sync.Mutex
	total int
}

// NewCounter creates a counter worker.
func NewCounter() worker.Worker[CounterRequest, CounterEvent] {
	return &Counter{}
}

// Receive implements worker.Worker.
func (c *Counter) Receive(ctx context.Context, req CounterRequest, scope worker.Scope[CounterEvent]) {
	n := req.Times
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		c.total++
		total := c.total
		c.mu.Unlock()
		scope.Respond(CounterEvent{Kind: IncrementCounter, Total: total})
	}
}

// Total returns the number of increments emitted so far.
func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// EchoMessage is both input and output of the echo worker.
type EchoMessage struct {
	Text  string `json:"text"`
	Upper bool   `json:"upper,omitempty"`
}

// NewEcho creates a worker that responds with its input, upper-cased when
// requested.
func NewEcho() worker.Worker[EchoMessage, EchoMessage] {
	return worker.Func[EchoMessage, EchoMessage](func(_ context.Context, in EchoMessage, scope worker.Scope[EchoMessage]) {
		if in.Upper {
			in.Text = strings.ToUpper(in.Text)
		}
		scope.Respond(in)
	})
}

// Register adds the demo workers to reg. onError receives JSON decoding
// failures; it may be nil.
func Register(reg *worker.Registry, onError func(error)) {
	reg.Register(CounterName, worker.Typed[CounterRequest, CounterEvent](NewCounter, onError))
	reg.Register(EchoName, worker.Typed[EchoMessage, EchoMessage](NewEcho, onError))
}
