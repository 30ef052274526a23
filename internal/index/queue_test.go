package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedtools/feedindex/internal/feed"
)

func TestQueue_Dequeue_LowestPriorityWins(t *testing.T) {
	// Given: operations enqueued in arbitrary order
	q := NewQueue()
	q.Enqueue(newAddOperation(&feed.Document{Link: "a"}, ""))
	q.Enqueue(newDeleteFeedOperation(feed.FeedTerm("http://example.com/feed")))
	q.Enqueue(newAddOperation(&feed.Document{Link: "b"}, ""))
	q.Enqueue(newOptimizeOperation())

	// Then: they drain in nondecreasing priority order
	require.Equal(t, 4, q.Len())
	assert.Equal(t, KindOptimize, q.Dequeue().Kind)
	assert.Equal(t, KindDeleteFeed, q.Dequeue().Kind)
	assert.Equal(t, "a", q.Dequeue().Doc.Link)
	assert.Equal(t, "b", q.Dequeue().Doc.Link)
	assert.Nil(t, q.Dequeue())
}

func TestQueue_Dequeue_FIFOWithinPriorityBand(t *testing.T) {
	// Given: many operations of the same kind
	q := NewQueue()
	links := []string{"one", "two", "three", "four", "five"}
	for _, l := range links {
		q.Enqueue(newAddOperation(&feed.Document{Link: l}, ""))
	}

	// Then: they come out in enqueue order
	for _, want := range links {
		op := q.Dequeue()
		require.NotNil(t, op)
		assert.Equal(t, want, op.Doc.Link)
	}
}

func TestQueue_Dequeue_DeletesDrainLast(t *testing.T) {
	// Given: an add and a per-item delete for the same link
	q := NewQueue()
	q.Enqueue(newDeleteOperation(feed.ItemTerm("x")))
	q.Enqueue(newAddOperation(&feed.Document{Link: "x"}, ""))

	// Then: the add drains first even though the delete was enqueued
	// earlier, so add+delete churn cancels out
	assert.Equal(t, KindAddSingle, q.Dequeue().Kind)
	assert.Equal(t, KindDelete, q.Dequeue().Kind)
}

func TestQueue_Clear_DropsEverything(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 10; i++ {
		q.Enqueue(newOptimizeOperation())
	}

	q.Clear()

	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Dequeue())
}

func TestQueue_ConcurrentEnqueue_NothingLost(t *testing.T) {
	// Given: many producers enqueueing concurrently
	q := NewQueue()
	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(newAddOperation(&feed.Document{Link: "l"}, ""))
			}
		}()
	}
	wg.Wait()

	// Then: every operation is present
	assert.Equal(t, producers*perProducer, q.Len())
}

func TestQueue_SyncRoot_CompoundDrain(t *testing.T) {
	// Given: a queue with two operations
	q := NewQueue()
	q.Enqueue(newAddOperation(&feed.Document{Link: "a"}, ""))
	q.Enqueue(newAddOperation(&feed.Document{Link: "b"}, ""))

	// When: draining under the exposed lock
	q.SyncRoot().Lock()
	var drained []*Operation
	for q.LenLocked() > 0 {
		drained = append(drained, q.DequeueLocked())
	}
	q.SyncRoot().Unlock()

	// Then: both came out atomically
	require.Len(t, drained, 2)
	assert.Equal(t, 0, q.Len())
}
