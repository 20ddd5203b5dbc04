package overlay

import "sync"

// docLocks serializes writers per document inside one process. Entries are
// dropped once no writer holds or waits on them.
type docLocks struct {
	mu    sync.Mutex
	locks map[int64]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[int64]*docLock)}
}

// lock blocks until the caller is the only writer of docID and returns the
// matching unlock.
func (d *docLocks) lock(docID int64) func() {
	d.mu.Lock()
	l, ok := d.locks[docID]
	if !ok {
		l = &docLock{}
		d.locks[docID] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, docID)
		}
		d.mu.Unlock()
	}
}

func (d *docLocks) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locks)
}
