package wallet

import (
	"testing"
	"time"

	"github.com/tolelom/latticenode/core"
)

func TestActionQueueRunsInPriorityThenInsertionOrder(t *testing.T) {
	q := NewActionQueue()
	var order []int
	done := make(chan struct{})

	// Priority(1) is the lowest of the four, so it is the last to run;
	// closing `done` there marks the whole batch as drained.
	q.Enqueue(Priority(1), func() {
		order = append(order, 1)
		close(done)
	})
	q.Enqueue(Priority(5), func() { order = append(order, 2) })
	q.Enqueue(Priority(5), func() { order = append(order, 3) }) // same priority, later insertion
	q.Enqueue(PriorityHigh, func() { order = append(order, 4) })

	go q.Run()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the action queue to drain")
	}
	q.Stop()

	want := []int{4, 2, 3, 1}
	if len(order) != len(want) {
		t.Fatalf("order: got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order: got %v want %v", order, want)
		}
	}
}

func TestActionQueueBusyCallbackBracketsExecution(t *testing.T) {
	q := NewActionQueue()
	var states []bool
	q.Busy = func(busy bool) { states = append(states, busy) }

	done := make(chan struct{})
	q.Enqueue(0, func() { close(done) })
	go q.Run()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	q.Stop()
	time.Sleep(10 * time.Millisecond) // let Busy(false) land after the closure returns

	if len(states) < 2 || states[0] != true || states[1] != false {
		t.Errorf("Busy callback sequence: got %v want [true false ...]", states)
	}
}

func TestActionQueueLenReflectsPendingEntries(t *testing.T) {
	q := NewActionQueue()
	q.Enqueue(0, func() {})
	q.Enqueue(0, func() {})
	if got := q.Len(); got != 2 {
		t.Errorf("Len: got %d want 2", got)
	}
}

func TestAmountPriorityOrdersByAmount(t *testing.T) {
	small := AmountPriority(core.NewAmount(1))
	large := AmountPriority(core.NewAmount(1000))
	if !(large > small) {
		t.Errorf("AmountPriority: expected larger amounts to yield higher priority, got small=%d large=%d", small, large)
	}
}
