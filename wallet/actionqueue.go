package wallet

import (
	"container/heap"
	"sync"

	"github.com/tolelom/latticenode/core"
)

// Priority orders action-queue entries; higher runs first (spec §4.8).
type Priority int64

const (
	// PriorityGenerate is used for work precaching, the lowest priority.
	PriorityGenerate Priority = 0
	// PriorityHigh is used for representative changes.
	PriorityHigh Priority = 1 << 62
)

// AmountPriority converts a receive amount into its queue priority:
// higher amount, higher priority (spec §4.8 "amount for receives").
func AmountPriority(amount core.Amount) Priority {
	b := amount.Big()
	if !b.IsInt64() {
		return Priority(1<<62 - 1)
	}
	return Priority(b.Int64())
}

type actionEntry struct {
	priority Priority
	seq      uint64 // insertion order, tie-break for stable FIFO within a priority
	closure  func()
}

// actionHeap is a max-heap on (priority, insertion order): higher
// priority first; among equal priorities, earlier insertion first.
type actionHeap []*actionEntry

func (h actionHeap) Len() int { return len(h) }
func (h actionHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h actionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *actionHeap) Push(x any)   { *h = append(*h, x.(*actionEntry)) }
func (h *actionHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// ActionQueue is a priority queue of wallet actions drained by a single
// dedicated worker goroutine (spec §4.8: "a dedicated worker thread pops
// entries and invokes the closure under a global 'wallet busy' observer
// signal").
type ActionQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    actionHeap
	nextSeq uint64
	stopped bool

	// Busy is set true for the duration of each closure invocation, the
	// "wallet busy" observer signal.
	Busy func(bool)
}

// NewActionQueue builds an empty, unstarted ActionQueue.
func NewActionQueue() *ActionQueue {
	q := &ActionQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a closure at the given priority.
func (q *ActionQueue) Enqueue(priority Priority, closure func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	heap.Push(&q.heap, &actionEntry{priority: priority, seq: q.nextSeq, closure: closure})
	q.nextSeq++
	q.cond.Signal()
}

// Run drains the queue until Stop is called. It is meant to be the body
// of the dedicated wallet-actions goroutine (spec §5 thread model).
func (q *ActionQueue) Run() {
	for {
		q.mu.Lock()
		for len(q.heap) == 0 && !q.stopped {
			q.cond.Wait()
		}
		if q.stopped && len(q.heap) == 0 {
			q.mu.Unlock()
			return
		}
		entry := heap.Pop(&q.heap).(*actionEntry)
		q.mu.Unlock()

		if q.Busy != nil {
			q.Busy(true)
		}
		entry.closure()
		if q.Busy != nil {
			q.Busy(false)
		}
	}
}

// Stop signals Run to drain remaining entries and return.
func (q *ActionQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	q.cond.Broadcast()
}

// Len reports how many actions are currently queued.
func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
