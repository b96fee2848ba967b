package app

import "sync"

// lockRegistry hands out one mutex per operation ID, so mutating access
// to a single operation is serialized while different operations proceed
// fully concurrently. Entries are reference counted and removed once the
// last holder releases, the registry does not grow with history.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[int64]*opLock
}

type opLock struct {
	sync.Mutex
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{
		locks: make(map[int64]*opLock),
	}
}

// acquire blocks until the per-operation lock is held and returns the
// release function.
func (r *lockRegistry) acquire(id int64) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &opLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}
