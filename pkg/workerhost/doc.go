// Package workerhost serves registered workers over WebSocket.
//
// Each connection to /workers/{name} gets its own worker instance created
// from the registry. Inputs are processed one at a time in arrival order and
// every Respond call becomes one Output frame, so a client sees outputs in
// the order the worker produced them.
//
// Lifecycle of one connection:
//
//  1. Upgrade and Hello exchange (the host assigns the connection ID)
//  2. Worker created, Connected hook run
//  3. Read loop, work loop and heartbeat loop run until either side closes
//  4. Worker Destroy hook run, connection unregistered
//
// Shutdown sends Close{ServerShutdown} to every open connection and waits for
// their workers to be destroyed.
package workerhost
