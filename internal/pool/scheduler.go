package pool

// Scheduler picks the worker slot a task should be dispatched to. It is
// always invoked under the pool's lock, so implementations need no
// locking of their own. Returning -1 means no worker is available and the
// task must be queued.
//
// The pool only depends on this interface; alternate policies
// (least-loaded, priority) can be substituted without touching callers.
type Scheduler interface {
	Next(idle []bool) int
}

// RoundRobin scans for an idle worker starting at a rotating cursor, so
// consecutive dispatches spread across the pool instead of piling onto
// slot zero.
type RoundRobin struct {
	cursor int
}

// NewRoundRobin returns the default scheduling policy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Next(idle []bool) int {
	n := len(idle)
	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		if idle[idx] {
			r.cursor = (idx + 1) % n
			return idx
		}
	}
	return -1
}
