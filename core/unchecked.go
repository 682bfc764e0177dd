package core

import "sync"

// maxUncheckedSize bounds the gap-retry buffer the way the teacher's
// mempool bounds pending transactions, evicting the oldest entry (by
// dependency arrival order) once full.
const maxUncheckedSize = 65_536

// UncheckedEntry is one block waiting on a dependency it does not yet have,
// queued after a GapPrevious/GapSource result (spec §7).
type UncheckedEntry struct {
	Block  *Block
	Result ProcessResult // GapPrevious, GapSource, or GapEpochOpenPending
}

// Unchecked is a thread-safe buffer of blocks queued against the hash of
// the dependency each is waiting for (a previous block, a send source, or
// a pending-epoch-open account). When that dependency is later processed,
// Release returns every block that can now be retried.
type Unchecked struct {
	mu   sync.Mutex
	byDep map[Hash][]*UncheckedEntry
	ord   []Hash // dependency-arrival-ordered keys, for bounded eviction
}

// NewUnchecked creates an empty gap-retry buffer.
func NewUnchecked() *Unchecked {
	return &Unchecked{byDep: make(map[Hash][]*UncheckedEntry)}
}

// Add queues blk against dep, the hash it is missing.
func (u *Unchecked) Add(dep Hash, blk *Block, result ProcessResult) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, exists := u.byDep[dep]; !exists {
		u.ord = append(u.ord, dep)
	}
	u.byDep[dep] = append(u.byDep[dep], &UncheckedEntry{Block: blk, Result: result})
	u.evictLocked()
}

// Release removes and returns every block waiting on dep, in queued order.
func (u *Unchecked) Release(dep Hash) []*UncheckedEntry {
	u.mu.Lock()
	defer u.mu.Unlock()
	entries, ok := u.byDep[dep]
	if !ok {
		return nil
	}
	delete(u.byDep, dep)
	for i, k := range u.ord {
		if k == dep {
			u.ord = append(u.ord[:i], u.ord[i+1:]...)
			break
		}
	}
	return entries
}

// Size returns the total number of queued blocks across all dependencies.
func (u *Unchecked) Size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, entries := range u.byDep {
		n += len(entries)
	}
	return n
}

// evictLocked drops the oldest dependency bucket once the buffer is full.
// Callers hold u.mu.
func (u *Unchecked) evictLocked() {
	for len(u.ord) > 0 && u.totalLocked() > maxUncheckedSize {
		oldest := u.ord[0]
		u.ord = u.ord[1:]
		delete(u.byDep, oldest)
	}
}

func (u *Unchecked) totalLocked() int {
	n := 0
	for _, entries := range u.byDep {
		n += len(entries)
	}
	return n
}
