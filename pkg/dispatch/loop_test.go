package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLoopDrainRunsInOrder(t *testing.T) {
	l := NewLoop(nil)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		if !l.Dispatch(func() { got = append(got, i) }) {
			t.Fatal("Dispatch should accept work before Close")
		}
	}

	if n := l.Drain(); n != 5 {
		t.Errorf("Drain() = %d, want 5", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v, want ascending", got)
		}
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d after Drain, want 0", l.Len())
	}
}

func TestLoopDispatchDuringDrainWaitsForNextDrain(t *testing.T) {
	l := NewLoop(nil)

	var got []string
	l.Dispatch(func() {
		got = append(got, "outer")
		l.Dispatch(func() { got = append(got, "inner") })
	})

	l.Drain()
	if len(got) != 1 {
		t.Fatalf("after first Drain got %v, want [outer]", got)
	}
	l.Drain()
	if len(got) != 2 || got[1] != "inner" {
		t.Fatalf("after second Drain got %v, want [outer inner]", got)
	}
}

func TestLoopRunExecutesFromOtherGoroutines(t *testing.T) {
	l := NewLoop(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- l.Run(ctx) }()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			i := i
			l.Dispatch(func() {
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
			})
		}
	}()
	wg.Wait()

	finished := make(chan struct{})
	l.Dispatch(func() { close(finished) })
	select {
	case <-finished:
	case <-ctx.Done():
		t.Fatal("loop did not run dispatched work")
	}

	l.Close()
	if err := <-runDone; err != nil {
		t.Errorf("Run() = %v, want nil after Close", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("ran %d functions, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order at %d: %d", i, v)
		}
	}
}

func TestLoopRejectsAfterClose(t *testing.T) {
	l := NewLoop(nil)
	l.Close()
	l.Close()

	if l.Dispatch(func() {}) {
		t.Error("Dispatch after Close should return false")
	}
	select {
	case <-l.Done():
	default:
		t.Error("Done() should be closed")
	}
}

func TestLoopRecoversPanics(t *testing.T) {
	l := NewLoop(nil)
	ran := false
	l.Dispatch(func() { panic("boom") })
	l.Dispatch(func() { ran = true })

	l.Drain()
	if !ran {
		t.Error("work after a panicking function should still run")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	l := NewLoop(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Run(ctx); err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}
