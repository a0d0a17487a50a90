package bridge

// Observer receives lifecycle and traffic notifications from sessions.
// Implementations must be cheap; they run inline on the calling goroutine.
type Observer interface {
	// Connected is called after a session's connection is established.
	Connected(conn uint64)

	// ConnectFailed is called when Transport.Connect returns an error.
	ConnectFailed(err error)

	// Sent is called after every Send with the transport's result.
	Sent(conn uint64, err error)

	// Delivered is called before an output is handed to the current handler.
	Delivered(conn uint64)

	// Disconnected is called once, after the connection was closed.
	Disconnected(conn uint64, err error)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) Connected(uint64)           {}
func (NopObserver) ConnectFailed(error)        {}
func (NopObserver) Sent(uint64, error)         {}
func (NopObserver) Delivered(uint64)           {}
func (NopObserver) Disconnected(uint64, error) {}
