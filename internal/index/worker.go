package index

import (
	"context"
	"time"
)

// workerLoop is the single consumer. It waits on the wakeup signal,
// drains bounded batches with a pacing sleep between them, and exits
// cooperatively when the gateway stops.
//
// The pacing deliberately coalesces bursts: a feed-refresh wave lands
// hundreds of adds within seconds, and draining them in paced batches
// amortizes writer churn. A single worker is mandatory because the
// index permits one writer.
func (g *Gateway) workerLoop(ctx context.Context) {
	defer close(g.doneCh)

	for {
		select {
		case <-g.wakeup:
		case <-g.stopCh:
			return
		case <-ctx.Done():
			return
		}

		if !g.running.Load() {
			return
		}
		if g.flushInProgress.Load() {
			// A host-initiated flush owns the queue right now.
			continue
		}

		for g.running.Load() && g.queue.Len() > 0 {
			n := g.queue.Len() / 10
			if n < drainBatchFloor {
				n = drainBatchFloor
			}
			g.flushPending(ctx, n, false)

			if !g.running.Load() {
				return
			}
			select {
			case <-time.After(g.pacing):
			case <-g.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
