// Package syncer drives resumable background pagination against the remote
// folder source, feeding the shared index-batch operation and persisting
// per-folder progress so an interrupted pass picks up where it stopped.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maildex/maildex/internal/indexer"
	"github.com/maildex/maildex/internal/source"
	"github.com/maildex/maildex/internal/store"
)

// Options configures sync behavior.
type Options struct {
	// Folders are synced strictly sequentially, in order.
	Folders []string

	// Freshness is how long a completed folder stays trusted before a
	// catch-up pass revisits it (default: 1 hour).
	Freshness time.Duration

	// PageDelay is the fixed wait between page fetches, bounding request
	// rate against the remote source (default: 2s).
	PageDelay time.Duration

	// ActivationDelay defers the first fetch so a fresh activation yields
	// to interactive work; the fixed delay stands in for platforms without
	// an idle-scheduling primitive (default: 500ms).
	ActivationDelay time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Folders:         []string{"inbox", "sent"},
		Freshness:       time.Hour,
		PageDelay:       2 * time.Second,
		ActivationDelay: 500 * time.Millisecond,
	}
}

// Engine runs one connection's background sync. Exactly one Engine is
// active per connection; switching connections cancels it before the next
// one starts.
type Engine struct {
	source  source.FolderSource
	store   *store.Store
	indexer *indexer.Indexer
	logger  *slog.Logger
	opts    *Options
	now     func() time.Time
}

// New creates a sync engine.
func New(src source.FolderSource, st *store.Store, in *indexer.Indexer, opts *Options) *Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Freshness <= 0 {
		opts.Freshness = time.Hour
	}
	return &Engine{
		source:  src,
		store:   st,
		indexer: in,
		logger:  slog.Default(),
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// WithNow overrides the clock. Tests only.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run executes one sync activation: every configured folder, in order,
// one pagination loop at a time. A folder error is logged and the engine
// moves on; progress persisted for completed pages is never lost.
// Cancellation is cooperative and silent.
func (e *Engine) Run(ctx context.Context) error {
	if err := sleepCtx(ctx, e.opts.ActivationDelay); err != nil {
		return nil
	}

	for _, folder := range e.opts.Folders {
		err := e.syncFolder(ctx, folder)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		e.logger.Warn("folder sync failed", "folder", folder, "error", err)
	}
	return nil
}

// syncFolder runs the per-folder state machine: decide where to enter
// (skip / catch-up / resume / fresh paging), then page until the folder is
// exhausted or the catch-up short-circuit fires.
func (e *Engine) syncFolder(ctx context.Context, folder string) error {
	prog, err := e.store.GetSyncProgress(folder)
	if err != nil {
		return err
	}

	cursor := ""
	catchingUp := false
	var totalIndexed int64

	if prog != nil {
		totalIndexed = prog.TotalIndexed
		switch {
		case prog.Completed && e.now().Sub(prog.LastSyncedAt) < e.opts.Freshness:
			e.logger.Debug("folder is fresh, skipping", "folder", folder)
			return nil
		case prog.Completed:
			// Completed but stale: revisit from the top and stop as soon
			// as a page holds only known threads.
			catchingUp = true
			e.logger.Info("catching up stale folder", "folder", folder, "last_synced", prog.LastSyncedAt)
		default:
			cursor = prog.NextPageToken
			if cursor != "" {
				e.logger.Info("resuming folder sync", "folder", folder, "indexed", totalIndexed)
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := e.source.FetchPage(ctx, folder, cursor)
		if err != nil {
			return err
		}

		if len(page.Threads) == 0 {
			return e.markCompleted(folder, totalIndexed)
		}

		if catchingUp {
			known, err := e.pageFullyKnown(page.Threads)
			if err != nil {
				return err
			}
			if known {
				// The provider lists newest-first, so a fully known page
				// means everything older is already indexed. This ordering
				// is assumed, not a verified provider contract.
				e.logger.Info("catch-up found no new threads", "folder", folder)
				return e.markCompleted(folder, totalIndexed)
			}
		}

		if err := e.indexer.IndexBatch(ctx, page.Threads); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A malformed batch is skipped; the loop and prior state survive.
			e.logger.Warn("skipping unindexable batch", "folder", folder, "threads", len(page.Threads), "error", err)
		} else {
			totalIndexed += int64(len(page.Threads))
		}

		if page.NextPageToken == "" {
			return e.markCompleted(folder, totalIndexed)
		}

		cursor = page.NextPageToken
		if err := e.store.PutSyncProgress(&store.SyncProgress{
			Folder:        folder,
			NextPageToken: cursor,
			Completed:     false,
			LastSyncedAt:  e.now(),
			TotalIndexed:  totalIndexed,
		}); err != nil {
			return err
		}

		if err := sleepCtx(ctx, e.opts.PageDelay); err != nil {
			return err
		}
	}
}

// pageFullyKnown reports whether every thread id in the page already exists
// in the persistent store.
func (e *Engine) pageFullyKnown(threads []source.ThreadSummary) (bool, error) {
	ids := make([]string, 0, len(threads))
	for _, t := range threads {
		if t.ID != "" {
			ids = append(ids, t.ID)
		}
	}
	existing, err := e.store.DocumentsExistBatch(ids)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if !existing[id] {
			return false, nil
		}
	}
	return len(ids) > 0, nil
}

// markCompleted records a folder as fully synced with a cleared cursor.
func (e *Engine) markCompleted(folder string, totalIndexed int64) error {
	e.logger.Info("folder sync completed", "folder", folder, "indexed", totalIndexed)
	return e.store.PutSyncProgress(&store.SyncProgress{
		Folder:       folder,
		Completed:    true,
		LastSyncedAt: e.now(),
		TotalIndexed: totalIndexed,
	})
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
