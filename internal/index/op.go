// Package index implements the serializing gateway in front of the
// Bleve index. The index permits a single concurrent mutator, so every
// mutation is enqueued on a priority queue and drained by one worker
// goroutine that owns the writer session.
package index

import (
	"time"

	"github.com/feedtools/feedindex/internal/feed"
)

// Kind identifies one pending mutation. The numeric value doubles as the
// drain priority: lower drains sooner.
//
// A whole-feed delete must land before the adds and deletes of its
// individual items, otherwise pending item-adds would re-populate a feed
// the user just removed. Per-item deletes drain last so that add+delete
// churn for the same item cancels out within a batch. Optimize carries
// the most urgent priority but is never executed during a final drain
// (see Gateway.Flush) because it is the longest operation.
type Kind int

const (
	KindOptimize   Kind = 1
	KindDeleteFeed Kind = 2
	KindAddSingle  Kind = 10
	KindAddBatch   Kind = 11
	KindDelete     Kind = 50
)

// Priority returns the drain priority of the kind. Lower drains sooner.
func (k Kind) Priority() int {
	return int(k)
}

func (k Kind) String() string {
	switch k {
	case KindOptimize:
		return "optimize"
	case KindDeleteFeed:
		return "delete_feed"
	case KindAddSingle:
		return "add"
	case KindAddBatch:
		return "add_batch"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is one pending index mutation. It is immutable once
// enqueued: the queue owns it until dequeue, the worker until the
// completion callback has fired.
type Operation struct {
	Kind Kind

	// Doc is set for KindAddSingle.
	Doc *feed.Document
	// Docs is set for KindAddBatch.
	Docs []*feed.Document
	// Culture is the optional analyzer hint for adds ("fr", "pt-BR").
	Culture string
	// Term is the delete predicate for KindDelete and KindDeleteFeed.
	Term feed.Term

	// EnqueuedAt is when the operation entered the queue.
	EnqueuedAt time.Time

	// seq breaks priority ties in enqueue order.
	seq uint64
}

func newAddOperation(doc *feed.Document, culture string) *Operation {
	return &Operation{Kind: KindAddSingle, Doc: doc, Culture: culture, EnqueuedAt: time.Now()}
}

func newAddBatchOperation(docs []*feed.Document, culture string) *Operation {
	return &Operation{Kind: KindAddBatch, Docs: docs, Culture: culture, EnqueuedAt: time.Now()}
}

func newDeleteOperation(term feed.Term) *Operation {
	return &Operation{Kind: KindDelete, Term: term, EnqueuedAt: time.Now()}
}

func newDeleteFeedOperation(term feed.Term) *Operation {
	return &Operation{Kind: KindDeleteFeed, Term: term, EnqueuedAt: time.Now()}
}

func newOptimizeOperation() *Operation {
	return &Operation{Kind: KindOptimize, EnqueuedAt: time.Now()}
}
