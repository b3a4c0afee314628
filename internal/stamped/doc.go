// Package stamped provides an in-process read/write gate with optimistic,
// stamp-validated reads.
//
// A [Gate] combines two mechanisms:
//
//   - a generation counter (a seqlock): it is incremented when a writer enters
//     and again when it leaves, so an odd value means a write is in flight.
//     [Gate.OptimisticRead] snapshots the counter without blocking and
//     [Gate.Validate] checks that it has not moved since.
//   - a weighted semaphore from golang.org/x/sync/semaphore: readers take one
//     unit, writers take every unit. Waiters are served in FIFO order, so a
//     queued writer holds back readers that arrive after it.
//
// # Basic Usage
//
//	g := stamped.New()
//
//	// Lock-free read
//	s := g.OptimisticRead()
//	v := load()
//	if !g.Validate(s) {
//	    // a writer intervened; discard v
//	}
//
//	// Read-then-write without an unlock/relock window
//	if ws, ok := g.TryUpgrade(s); ok {
//	    defer g.ReleaseWrite(ws)
//	    store(v + 1)
//	}
//
// # Stamps
//
// A [Stamp] is only meaningful to the gate that issued it. Validity of an
// optimistic stamp is a point-in-time fact and must be re-checked, never
// cached. Releasing a stamp that is not held panics, like unlocking an
// unlocked sync.Mutex.
//
// # Thread Safety
//
// All [Gate] methods are safe for concurrent use.
package stamped
