package workerhost

import "time"

// Observer receives host-side connection and traffic notifications.
// Methods may be called from several goroutines at once.
type Observer interface {
	ConnOpened(worker string)
	ConnClosed(worker string, lifetime time.Duration)
	InputReceived(worker string, bytes int)
	OutputSent(worker string, bytes int)
	InputRejected(worker string)
	OutputRejected(worker string)
	WorkerPanicked(worker string)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) ConnOpened(string)                {}
func (NopObserver) ConnClosed(string, time.Duration) {}
func (NopObserver) InputReceived(string, int)        {}
func (NopObserver) OutputSent(string, int)           {}
func (NopObserver) InputRejected(string)             {}
func (NopObserver) OutputRejected(string)            {}
func (NopObserver) WorkerPanicked(string)            {}
