// Package worker defines the background workers that bridges connect to.
//
// A worker instance serves exactly one connection. It receives inputs one at
// a time, in order, and answers through its [Scope], which may emit any
// number of outputs per input (including none). Workers that need setup or
// teardown implement [Connector] and [Destroyer].
//
// Hosts that move bytes over the network register raw workers, which take
// and produce JSON. [Typed] adapts a typed worker factory into a raw one.
package worker
