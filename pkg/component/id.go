package component

import "sync/atomic"

var globalIDCounter atomic.Uint64

// nextID returns the next unique owner ID. IDs are never reused.
func nextID() uint64 {
	return globalIDCounter.Add(1)
}
