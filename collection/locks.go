package collection

import "sync"

// parentLocks serializes structural mutations per parent so the
// read-compute-write sequence for one parent never interleaves with
// another mutation on the same parent. Mutexes are kept for the lifetime
// of the service; the map is bounded by the number of distinct parents
// seen by this process.
type parentLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newParentLocks() *parentLocks {
	return &parentLocks{m: make(map[string]*sync.Mutex)}
}

func (l *parentLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.m[id]
	if !ok {
		m = &sync.Mutex{}
		l.m[id] = m
	}
	return m
}

// lock acquires the mutex for one parent and returns the unlock func.
func (l *parentLocks) lock(id string) func() {
	m := l.get(id)
	m.Lock()
	return m.Unlock
}

// lockPair acquires two parent mutexes in a stable order so concurrent
// cross-parent moves cannot deadlock.
func (l *parentLocks) lockPair(a, b string) func() {
	if a == b {
		return l.lock(a)
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	fm, sm := l.get(first), l.get(second)
	fm.Lock()
	sm.Lock()
	return func() {
		sm.Unlock()
		fm.Unlock()
	}
}
