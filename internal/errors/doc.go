// Package errors provides structured error values for the bridge runtime.
//
// Every failure the bridge raises on its own behalf carries a stable code
// (e.g. "B001") that maps to a registered template:
//   - A short message describing the failure
//   - A longer explanation of when it happens
//   - A category used for grouping in logs and metrics
//
// # Error Categories
//
//   - lifecycle: session install/unmount ordering mistakes
//   - transport: connection establishment and teardown failures
//   - protocol: malformed or unexpected wire frames
//   - worker: worker registry and execution failures
//   - config: configuration loading and validation
//
// # Usage
//
//	err := errors.New("B001").
//	    WithDetail("dial ws://localhost:7070/workers/counter").
//	    Wrap(dialErr)
//
//	fmt.Println(err.Format())
//	// ERROR B001: Worker connection failed
//	//
//	//   dial ws://localhost:7070/workers/counter
//	//
//	//   Caused by: connection refused
//
// Wrapped causes stay reachable through errors.Is and errors.As.
package errors
