package bridge

// forward returns the sink handed to Transport.Connect. Each call invokes
// the handler that is current at that moment, exactly once.
func forward[O any](slot *CallbackSlot[O], conn uint64, observer Observer) func(O) {
	return func(output O) {
		handler := slot.Load()
		if handler == nil {
			return
		}
		observer.Delivered(conn)
		handler(output)
	}
}
