package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/index/scorch/mergeplan"
	"github.com/gofrs/flock"

	"github.com/feedtools/feedindex/internal/config"
	ferrors "github.com/feedtools/feedindex/internal/errors"
	"github.com/feedtools/feedindex/internal/feed"
)

// deletePageSize bounds how many matches one delete-by-term pass collects.
const deletePageSize = 1000

// Handle wraps the single-writer index session. All mutators serialize
// on the mutator lock; the open flag has its own lock so AssureOpen and
// Reset cannot race.
//
// Lock order: callers never take the mutator lock while holding the
// open lock's critical section open across a filesystem mutation —
// Reset deliberately mutates the directory outside the open lock.
type Handle struct {
	cfg *config.Config

	// openMu guards open. Reset holds it only for the flag transition,
	// never across its directory removal; Init and Close hold it while
	// opening or closing the writer.
	openMu sync.Mutex
	open   bool

	// mu is the mutator lock. One thread inside at any instant.
	mu  sync.Mutex
	idx bleve.Index

	// flk excludes writers from other processes. Its lock file sits
	// next to the index directory so Reset can remove the directory
	// without dropping the lock.
	flk *flock.Flock

	generation atomic.Uint64

	// docSeq disambiguates repeated submissions of the same item.
	// There is no dedup contract at this layer: adding a document
	// twice yields two hits for its key until a delete drains.
	docSeq atomic.Uint64

	// beforeApply, when set, runs inside the mutator region before the
	// underlying index call. Tests use it to inject failures and to
	// probe mutual exclusion.
	beforeApply func(op string) error
}

// NewHandle creates an unopened handle for the configured index location.
func NewHandle(cfg *config.Config) *Handle {
	h := &Handle{cfg: cfg}
	if !cfg.InMemory() {
		h.flk = flock.New(cfg.IndexDir() + ".lock")
	}
	return h
}

// Init opens a writer session at the configured directory, creating the
// index if none exists there. Safe to call on a freshly reset directory
// and idempotent while open.
func (h *Handle) Init() error {
	h.openMu.Lock()
	defer h.openMu.Unlock()

	if h.open {
		return nil
	}

	if !h.cfg.InMemory() {
		dir := h.cfg.IndexDir()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
		if !h.flk.Locked() {
			acquired, err := h.flk.TryLock()
			if err != nil {
				return fmt.Errorf("failed to lock index directory: %w", err)
			}
			if !acquired {
				return ferrors.IndexLocked(dir, nil)
			}
		}
	}

	idx, err := h.openIndex()
	if err != nil {
		if h.flk != nil && h.flk.Locked() {
			_ = h.flk.Unlock()
		}
		return err
	}

	h.idx = idx
	h.open = true
	return nil
}

// AssureOpen fails with the closed-index contract error when no session
// is live. It takes the open lock to see a consistent view during resets.
func (h *Handle) AssureOpen() error {
	h.openMu.Lock()
	defer h.openMu.Unlock()

	if !h.open {
		return ferrors.IndexClosed()
	}
	return nil
}

// Add appends one document. When culture is given, the matching
// language analyzer is used, else the document's own language hint or
// the default language.
func (h *Handle) Add(ctx context.Context, doc *feed.Document, culture string) error {
	if err := h.AssureOpen(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.applyHook("add"); err != nil {
		return err
	}

	idx, err := h.writerLocked()
	if err != nil {
		return err
	}

	d := h.localized(doc, culture)
	if err := idx.Index(h.docID(d), d); err != nil {
		return fmt.Errorf("failed to index %s: %w", d.Key(), err)
	}

	h.generation.Add(1)
	return nil
}

// AddMany appends documents in batches of DocsPerSegment. The culture
// analyzer is resolved once for the whole batch.
func (h *Handle) AddMany(ctx context.Context, docs []*feed.Document, culture string) error {
	if len(docs) == 0 {
		return nil
	}
	if err := h.AssureOpen(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.applyHook("add_many"); err != nil {
		return err
	}

	idx, err := h.writerLocked()
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, doc := range docs {
		d := h.localized(doc, culture)
		if err := batch.Index(h.docID(d), d); err != nil {
			return fmt.Errorf("failed to batch %s: %w", d.Key(), err)
		}
		if batch.Size() >= h.cfg.Tuning.DocsPerSegment {
			if err := idx.Batch(batch); err != nil {
				return fmt.Errorf("failed to flush batch: %w", err)
			}
			batch = idx.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to flush batch: %w", err)
		}
	}

	h.generation.Add(1)
	return nil
}

// DeleteTerm deletes every document whose indexed field matches the term.
func (h *Handle) DeleteTerm(ctx context.Context, term feed.Term) error {
	if err := h.AssureOpen(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.applyHook("delete"); err != nil {
		return err
	}

	idx, err := h.writerLocked()
	if err != nil {
		return err
	}

	for {
		q := bleve.NewTermQuery(term.Value)
		q.SetField(term.Field)
		req := bleve.NewSearchRequest(q)
		req.Size = deletePageSize
		req.Fields = []string{}

		result, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to find %s: %w", term, err)
		}
		if len(result.Hits) == 0 {
			return nil
		}

		batch := idx.NewBatch()
		for _, hit := range result.Hits {
			batch.Delete(hit.ID)
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete %s: %w", term, err)
		}

		h.generation.Add(1)
	}
}

// Optimize merges all segments into one. May be long-running.
// In-memory indexes have no segment files to merge; this is a no-op there.
func (h *Handle) Optimize(ctx context.Context) error {
	if err := h.AssureOpen(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.applyHook("optimize"); err != nil {
		return err
	}

	idx, err := h.writerLocked()
	if err != nil {
		return err
	}

	advanced, err := idx.Advanced()
	if err != nil {
		return fmt.Errorf("failed to reach index internals: %w", err)
	}

	s, ok := advanced.(*scorch.Scorch)
	if !ok {
		slog.Debug("optimize skipped: index has no segment store")
		return nil
	}

	if err := s.ForceMerge(ctx, &mergeplan.SingleSegmentMergePlanOptions); err != nil {
		return fmt.Errorf("failed to merge segments: %w", err)
	}

	h.generation.Add(1)
	return nil
}

// Flush closes the current writer to force on-disk visibility. If
// closeWriterOnly is false, a fresh writer is reopened afterward; the
// next mutation reopens one lazily either way.
func (h *Handle) Flush(closeWriterOnly bool) error {
	if err := h.AssureOpen(); err != nil {
		return err
	}

	// Flush is a persistence barrier. An in-memory index has nothing
	// to persist, and closing it would discard the data instead.
	if h.cfg.InMemory() {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.idx != nil {
		if err := h.idx.Close(); err != nil {
			return fmt.Errorf("failed to close writer: %w", err)
		}
		h.idx = nil
	}

	if closeWriterOnly {
		return nil
	}

	idx, err := h.openIndex()
	if err != nil {
		return err
	}
	h.idx = idx
	return nil
}

// Reset closes the session, removes and recreates the on-disk directory
// (no-op for in-memory), and reopens. The generation advances so that
// read-side caches drop results from before the reset.
func (h *Handle) Reset() error {
	defer h.generation.Add(1)

	h.openMu.Lock()
	h.open = false
	h.openMu.Unlock()

	h.mu.Lock()
	if h.idx != nil {
		_ = h.idx.Close()
		h.idx = nil
	}
	h.mu.Unlock()

	// Directory mutation happens outside the open lock so filesystem
	// state and open state cannot deadlock against AssureOpen.
	if !h.cfg.InMemory() {
		dir := h.cfg.IndexDir()
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove index directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to recreate index directory: %w", err)
		}
	}

	return h.Init()
}

// Close closes the writer and marks the handle not open. Idempotent.
func (h *Handle) Close() error {
	h.openMu.Lock()
	defer h.openMu.Unlock()

	if !h.open {
		return nil
	}
	h.open = false

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.idx != nil {
		err = h.idx.Close()
		h.idx = nil
	}

	if h.flk != nil && h.flk.Locked() {
		_ = h.flk.Unlock()
	}

	return err
}

// DocCount reports the current document count under the mutator lock.
func (h *Handle) DocCount(ctx context.Context) (uint64, error) {
	if err := h.AssureOpen(); err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	idx, err := h.writerLocked()
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

// Search runs a query against the live session.
func (h *Handle) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	if err := h.AssureOpen(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	idx, err := h.writerLocked()
	if err != nil {
		return nil, err
	}
	return idx.SearchInContext(ctx, req)
}

// Generation returns a counter that advances on every applied mutation.
// Read-side caches key on it.
func (h *Handle) Generation() uint64 {
	return h.generation.Load()
}

// writerLocked returns the live writer, lazily reopening one after a
// closing flush. Callers hold the mutator lock.
func (h *Handle) writerLocked() (bleve.Index, error) {
	if h.idx != nil {
		return h.idx, nil
	}
	idx, err := h.openIndex()
	if err != nil {
		return nil, err
	}
	h.idx = idx
	return idx, nil
}

// docID builds the internal document ID for one submission. The key
// field stays the item link; the suffix only keeps repeated submissions
// from overwriting each other.
func (h *Handle) docID(d *feed.Document) string {
	return fmt.Sprintf("%s@%d", d.Key(), h.docSeq.Add(1))
}

// applyHook runs the injected failure hook if any.
func (h *Handle) applyHook(op string) error {
	if h.beforeApply != nil {
		return h.beforeApply(op)
	}
	return nil
}

// localized copies the document with its language resolved for analyzer
// selection. The stored operation record stays untouched.
func (h *Handle) localized(doc *feed.Document, culture string) *feed.Document {
	d := *doc
	switch {
	case culture != "":
		d.Lang = h.cfg.Language(culture)
	case d.Lang != "":
		d.Lang = h.cfg.Language(d.Lang)
	default:
		d.Lang = h.cfg.Index.DefaultLanguage
	}
	return &d
}

// openIndex opens or creates the underlying Bleve index with the
// gateway's tuning applied: merge factor, merge callbacks, debug sink.
func (h *Handle) openIndex() (bleve.Index, error) {
	m, err := buildIndexMapping(h.cfg)
	if err != nil {
		return nil, err
	}

	if h.cfg.InMemory() {
		return bleve.NewMemOnly(m)
	}

	dir := h.cfg.IndexDir()
	kvconfig := map[string]interface{}{
		"eventCallbackName":      sinkCallbackName,
		"asyncErrorCallbackName": sinkCallbackName,
		"scorchMergePlanOptions": h.mergePlanOptions(),
	}

	if err := validateIntegrity(dir); err != nil {
		slog.Warn("index corrupted, clearing",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return nil, fmt.Errorf("corrupt index at %s cannot be removed: %w", dir, rmErr)
		}
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, mkErr
		}
	}

	idx, err := bleve.OpenUsing(dir, kvconfig)
	if err == bleve.ErrorIndexPathDoesNotExist || err == bleve.ErrorIndexMetaMissing {
		return bleve.NewUsing(dir, m, scorch.Name, scorch.Name, kvconfig)
	}
	if err != nil && isCorruptionError(err) {
		slog.Warn("index open failed, recreating",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return nil, fmt.Errorf("corrupt index at %s cannot be removed: %w", dir, rmErr)
		}
		return bleve.NewUsing(dir, m, scorch.Name, scorch.Name, kvconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return idx, nil
}

// mergePlanOptions applies the merge factor: background merging kicks
// in once a tier accumulates that many segments. Scorch reads this value
// through JSON, so only the overridden fields are passed; the others
// keep scorch's defaults.
func (h *Handle) mergePlanOptions() map[string]interface{} {
	return map[string]interface{}{
		"MaxSegmentsPerTier":   h.cfg.Tuning.MergeFactor,
		"SegmentsPerMergeTask": h.cfg.Tuning.MergeFactor,
	}
}

// validateIntegrity checks the index metadata before opening.
// Returns nil when the directory holds no index yet.
func validateIntegrity(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(dir, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		// An empty directory is fine; one with segment data but no
		// metadata is a partial write.
		entries, readErr := os.ReadDir(dir)
		if readErr == nil && len(entries) == 0 {
			return nil
		}
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}
