package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Dispatcher schedules fn to run on an owning goroutine. It reports false
// if fn was not accepted because the owner is gone.
type Dispatcher interface {
	Dispatch(fn func()) bool
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(fn func()) bool

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) bool {
	return f(fn)
}

// Immediate runs fn on the calling goroutine.
var Immediate Dispatcher = DispatcherFunc(func(fn func()) bool {
	fn()
	return true
})

// Loop is a FIFO of functions executed by one goroutine.
//
// The queue is unbounded so Dispatch never blocks and never drops; ordering
// across Dispatch calls from one goroutine is preserved.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}

	logger *slog.Logger
}

// NewLoop creates a loop. A nil logger uses slog.Default().
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Dispatch queues fn. It returns false after Close.
func (l *Loop) Dispatch(fn func()) bool {
	if fn == nil {
		return false
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of queued functions.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain runs every function queued at the time of the call on the calling
// goroutine and returns how many ran. Functions dispatched while draining
// wait for the next Drain.
func (l *Loop) Drain() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		l.execute(fn)
	}
	return len(batch)
}

// Run executes queued functions until ctx is canceled or Close is called.
// After Close, work queued before the close still runs before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			l.Drain()
			return nil
		case <-l.wake:
		}
	}
}

// Close stops accepting work and makes Run return.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}

// Done is closed once Close was called.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("dispatch panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
