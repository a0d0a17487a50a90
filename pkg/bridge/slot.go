package bridge

import "sync/atomic"

// Handler processes one output message from the worker.
type Handler[O any] func(output O)

// CallbackSlot holds the currently active output handler.
//
// Load copies the handler out; nothing stays locked while the caller invokes
// it, so the handler may call Replace on the same slot.
type CallbackSlot[O any] struct {
	current atomic.Pointer[Handler[O]]
}

// NewCallbackSlot returns a slot holding initial.
func NewCallbackSlot[O any](initial Handler[O]) *CallbackSlot[O] {
	s := &CallbackSlot[O]{}
	s.Replace(initial)
	return s
}

// Replace makes h the current handler. A nil handler is ignored.
func (s *CallbackSlot[O]) Replace(h Handler[O]) {
	if h == nil {
		return
	}
	s.current.Store(&h)
}

// Load returns the current handler, or nil if none was ever set.
func (s *CallbackSlot[O]) Load() Handler[O] {
	p := s.current.Load()
	if p == nil {
		return nil
	}
	return *p
}
