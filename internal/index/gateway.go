package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/feedtools/feedindex/internal/config"
	ferrors "github.com/feedtools/feedindex/internal/errors"
	"github.com/feedtools/feedindex/internal/feed"
	"github.com/feedtools/feedindex/internal/store"
)

const (
	// drainBatchFloor is the minimum drain batch: percentage-based
	// sizing alone would produce useless dwarf batches on small queues.
	drainBatchFloor = 200

	// shutdownDrainMax bounds the final drain. Draining the whole
	// queue on exit can hang the host UI for the duration; the cost is
	// a known loss of unindexed items.
	shutdownDrainMax = 10

	// stopPollInterval is how often Stop re-checks an active drain.
	stopPollInterval = 50 * time.Millisecond
)

// Gateway serializes all index mutations. Producers enqueue from any
// goroutine; a single worker drains the queue against the handle, which
// is the only path to the underlying writer.
type Gateway struct {
	cfg     *config.Config
	handle  *Handle
	queue   *Queue
	catalog *store.Catalog

	// wakeup is the edge-triggered work signal: capacity one, send
	// never blocks, redundant signals collapse.
	wakeup chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	running         atomic.Bool
	flushInProgress atomic.Bool

	started  bool
	startMu  sync.Mutex
	stopOnce sync.Once

	retryDelay time.Duration
	pacing     time.Duration

	// FinishedOperation, when set before Start, is invoked exactly
	// once per drained operation, after (attempted) execution, from
	// the draining goroutine.
	FinishedOperation func(*Operation)
}

// New creates a gateway over an opened index handle.
// The catalog is optional.
func New(cfg *config.Config, catalog *store.Catalog) (*Gateway, error) {
	h := NewHandle(cfg)
	if err := h.Init(); err != nil {
		return nil, err
	}

	return &Gateway{
		cfg:        cfg,
		handle:     h,
		queue:      NewQueue(),
		catalog:    catalog,
		wakeup:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		retryDelay: cfg.RetryDelayDuration(),
		pacing:     cfg.PacingSleepDuration(),
	}, nil
}

// Handle exposes the underlying index handle for the read side.
func (g *Gateway) Handle() *Handle {
	return g.handle
}

// Start launches the worker. Producers are no-ops until it runs.
func (g *Gateway) Start(ctx context.Context) {
	g.startMu.Lock()
	defer g.startMu.Unlock()

	if g.started {
		return
	}
	g.started = true
	g.running.Store(true)
	go g.workerLoop(ctx)
}

// Add enqueues a single-document add. Culture optionally selects the
// analyzer; empty means the document's own hint or the default language.
func (g *Gateway) Add(doc *feed.Document, culture string) {
	g.enqueue(newAddOperation(doc, culture))
}

// AddMany enqueues a multi-document add with one culture for the batch.
func (g *Gateway) AddMany(docs []*feed.Document, culture string) {
	g.enqueue(newAddBatchOperation(docs, culture))
}

// Delete enqueues a delete of all documents matching the term.
func (g *Gateway) Delete(term feed.Term) {
	g.enqueue(newDeleteOperation(term))
}

// DeleteFeed enqueues a whole-feed delete. Same action as Delete but at
// a priority that overtakes pending item adds for the removed feed.
func (g *Gateway) DeleteFeed(term feed.Term) {
	g.enqueue(newDeleteFeedOperation(term))
}

// Optimize enqueues a full segment merge.
func (g *Gateway) Optimize() {
	g.enqueue(newOptimizeOperation())
}

// enqueue adds an operation and signals the worker. After the gateway
// has signaled stop, producers are silent no-ops: nothing is enqueued
// and no completion event will fire.
func (g *Gateway) enqueue(op *Operation) {
	if !g.running.Load() {
		slog.Debug("operation dropped, gateway stopped",
			slog.String("op", op.Kind.String()))
		return
	}
	g.queue.Enqueue(op)
	g.signal()
}

// signal wakes the worker. Non-blocking: an already-pending wakeup
// absorbs further edges.
func (g *Gateway) signal() {
	select {
	case g.wakeup <- struct{}{}:
	default:
	}
}

// Flush drains up to shutdownDrainMax pending operations when
// closeWriter is set, then flushes the handle. Errors are logged, not
// propagated: flush runs on shutdown paths where the host cannot react.
func (g *Gateway) Flush(ctx context.Context, closeWriter bool) {
	if closeWriter {
		n := g.queue.Len()
		if n > shutdownDrainMax {
			n = shutdownDrainMax
		}
		if n > 0 {
			g.flushPending(ctx, n, true)
		}
	}

	if err := g.handle.Flush(closeWriter); err != nil {
		slog.Error("index flush failed", slog.String("error", err.Error()))
	}
}

// Reset clears the pending queue and resets the on-disk index.
// I/O errors propagate: a failed reset leaves no index to fall back to.
func (g *Gateway) Reset(ctx context.Context) error {
	g.queue.Clear()
	if err := g.handle.Reset(); err != nil {
		return err
	}
	if g.catalog != nil {
		if err := g.catalog.Clear(ctx); err != nil {
			slog.Error("catalog clear failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Stop stops the worker, waits out any active drain, then runs the
// bounded final drain and closes the writer. Pending operations beyond
// the drain bound are dropped without completion events.
func (g *Gateway) Stop(ctx context.Context) {
	g.stopWorker()

	for g.flushInProgress.Load() {
		time.Sleep(stopPollInterval)
	}

	g.Flush(ctx, true)
}

// DocCount reports the number of indexed documents.
func (g *Gateway) DocCount(ctx context.Context) (uint64, error) {
	return g.handle.DocCount(ctx)
}

// PendingCount reports the number of enqueued operations.
func (g *Gateway) PendingCount() int {
	return g.queue.Len()
}

// Close releases the gateway without a final drain: worker down, writer
// closed. Prefer Stop for an orderly shutdown.
func (g *Gateway) Close() error {
	g.stopWorker()
	return g.handle.Close()
}

// stopWorker signals the worker to exit and waits for it. The wakeup
// signal is released before the handle can be closed, so a stopping
// worker never observes a dead writer.
func (g *Gateway) stopWorker() {
	g.running.Store(false)
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})
	g.signal()

	g.startMu.Lock()
	started := g.started
	g.startMu.Unlock()
	if started {
		<-g.doneCh
	}
}

// flushPending drains up to max operations. finalDrain marks the
// shutdown path, where optimize is skipped: it is the longest operation
// and would stall exit; a future enqueue reintroduces it.
//
// Re-entrant calls are rejected via flushInProgress, which Stop also
// observes to wait out an active drain.
func (g *Gateway) flushPending(ctx context.Context, max int, finalDrain bool) {
	if !g.flushInProgress.CompareAndSwap(false, true) {
		return
	}
	defer g.flushInProgress.Store(false)

	for i := 0; i < max; i++ {
		// A stopping gateway finishes the current operation, never the
		// batch. The final drain runs with running already false.
		if !finalDrain && !g.running.Load() {
			return
		}

		op := g.queue.Dequeue()
		if op == nil {
			return
		}

		if op.Kind == KindOptimize && finalDrain {
			// Dropped, not requeued: drained but never executed.
			g.finish(op)
			continue
		}

		g.perform(ctx, op)
		g.finish(op)
	}
}

// perform executes one operation and applies the recovery policy on
// failure. The operation is never requeued; the queue keeps moving.
func (g *Gateway) perform(ctx context.Context, op *Operation) {
	err := g.execute(ctx, op)
	if err == nil {
		g.record(ctx, op)
		return
	}

	switch classifyFailure(err) {
	case actionReset:
		slog.Error("index corrupted",
			slog.String("op", op.Kind.String()),
			slog.String("error", err.Error()))
		if rerr := g.handle.Reset(); rerr != nil {
			slog.Error("index reset failed", slog.String("error", rerr.Error()))
		}

	case actionBackoff:
		slog.Warn("index directory locked by another process",
			slog.String("op", op.Kind.String()),
			slog.String("error", err.Error()))
		time.Sleep(g.retryDelay)

	case actionRepairSegments:
		g.repair(segmentsArtifact, op, err)

	case actionRepairDeleteable:
		g.repair(deleteableArtifact, op, err)

	default:
		slog.Error("index operation dropped",
			slog.String("op", op.Kind.String()),
			slog.String("error", err.Error()))
	}
}

// execute dispatches one operation against the handle.
func (g *Gateway) execute(ctx context.Context, op *Operation) error {
	switch op.Kind {
	case KindAddSingle:
		return g.handle.Add(ctx, op.Doc, op.Culture)
	case KindAddBatch:
		return g.handle.AddMany(ctx, op.Docs, op.Culture)
	case KindDelete, KindDeleteFeed:
		return g.handle.DeleteTerm(ctx, op.Term)
	case KindOptimize:
		return g.handle.Optimize(ctx)
	default:
		return ferrors.UnknownOperation(int(op.Kind))
	}
}

// record updates the feed catalog after a successful operation.
func (g *Gateway) record(ctx context.Context, op *Operation) {
	if g.catalog == nil {
		return
	}

	var err error
	switch op.Kind {
	case KindAddSingle:
		err = g.catalog.RecordItems(ctx, op.Doc.Feed, 1)
	case KindAddBatch:
		counts := make(map[string]int)
		for _, d := range op.Docs {
			counts[d.Feed]++
		}
		for url, n := range counts {
			if e := g.catalog.RecordItems(ctx, url, n); e != nil && err == nil {
				err = e
			}
		}
	case KindDeleteFeed:
		err = g.catalog.RecordFeedRemoved(ctx, op.Term.Value)
	}

	if err != nil {
		slog.Warn("catalog update failed", slog.String("error", err.Error()))
	}
}

// repair promotes a partial-write artifact and logs the outcome. The
// failed operation is dropped either way; the next one runs against the
// repaired directory.
func (g *Gateway) repair(artifact string, op *Operation, cause error) {
	slog.Warn("repairing partial write",
		slog.String("artifact", artifact),
		slog.String("op", op.Kind.String()),
		slog.String("error", cause.Error()))

	if err := repairArtifact(g.cfg.IndexDir(), artifact); err != nil {
		slog.Error("partial write repair failed",
			slog.String("artifact", artifact),
			slog.String("error", err.Error()))
	}
}

// finish raises the completion event for a drained operation.
// Exactly once per dequeued operation, success or not.
func (g *Gateway) finish(op *Operation) {
	if cb := g.FinishedOperation; cb != nil {
		cb(op)
	}
}
