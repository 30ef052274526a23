package index

import (
	"container/heap"
	"sync"
)

// Queue is a thread-safe min-priority queue of pending operations.
// Lower priority drains sooner; ties break in enqueue order.
//
// There is no blocking dequeue. The gateway polls under the queue's own
// lock, which it can also take across compound read/modify sequences
// via SyncRoot (drain-if-nonempty and the like).
type Queue struct {
	mu   sync.Mutex
	h    opHeap
	next uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// SyncRoot exposes the queue's internal lock for compound operations.
// Callers must not invoke Enqueue/Dequeue/Len/Clear while holding it;
// use the *Locked variants instead.
func (q *Queue) SyncRoot() *sync.Mutex {
	return &q.mu
}

// Enqueue adds an operation. The operation's seq is assigned here, so
// FIFO order within a priority band is the order of Enqueue calls.
func (q *Queue) Enqueue(op *Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueLocked(op)
}

// Dequeue removes and returns the lowest-priority operation, or nil if
// the queue is empty.
func (q *Queue) Dequeue() *Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.DequeueLocked()
}

// DequeueLocked is Dequeue for callers already holding SyncRoot.
func (q *Queue) DequeueLocked() *Operation {
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*Operation)
}

// Len returns the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// LenLocked is Len for callers already holding SyncRoot.
func (q *Queue) LenLocked() int {
	return len(q.h)
}

// Clear drops every pending operation.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.h = q.h[:0]
}

func (q *Queue) enqueueLocked(op *Operation) {
	op.seq = q.next
	q.next++
	heap.Push(&q.h, op)
}

// opHeap implements heap.Interface ordered by (priority, seq).
type opHeap []*Operation

func (h opHeap) Len() int { return len(h) }

func (h opHeap) Less(i, j int) bool {
	pi, pj := h[i].Kind.Priority(), h[j].Kind.Priority()
	if pi != pj {
		return pi < pj
	}
	return h[i].seq < h[j].seq
}

func (h opHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *opHeap) Push(x any) {
	*h = append(*h, x.(*Operation))
}

func (h *opHeap) Pop() any {
	old := *h
	n := len(old)
	op := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return op
}
