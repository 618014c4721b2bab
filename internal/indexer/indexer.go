// Package indexer implements the single idempotent "index batch" operation
// both producers converge on: the foreground listing observer and the
// background sync engine. Concurrent writers are reconciled by per-id
// upsert (last write wins); there is no cross-document transaction.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maildex/maildex/internal/contacts"
	"github.com/maildex/maildex/internal/index"
	"github.com/maildex/maildex/internal/source"
	"github.com/maildex/maildex/internal/store"
)

// Indexer fans one thread batch out to the persistent store, the full-text
// index, and the contact directory.
type Indexer struct {
	store    *store.Store
	idx      *index.Index
	contacts *contacts.Cache
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Indexer over the given store, index, and contact cache.
func New(st *store.Store, idx *index.Index, cache *contacts.Cache) *Indexer {
	return &Indexer{
		store:    st,
		idx:      idx,
		contacts: cache,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets the logger.
func (in *Indexer) WithLogger(logger *slog.Logger) *Indexer {
	in.logger = logger
	return in
}

// WithNow overrides the clock. Tests only.
func (in *Indexer) WithNow(now func() time.Time) *Indexer {
	in.now = now
	return in
}

// IndexBatch persists and indexes one batch of thread summaries.
// Batches may be duplicated or arrive out of order; re-indexing an id
// replaces the prior record everywhere. Entries without an id are logged
// and skipped, never aborting the batch.
func (in *Indexer) IndexBatch(ctx context.Context, summaries []source.ThreadSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := in.now()
	threads := make([]*store.Thread, 0, len(summaries))
	var sightings []contacts.Sighting

	for i := range summaries {
		sum := &summaries[i]
		if sum.ID == "" {
			in.logger.Warn("skipping thread without id", "subject", sum.Subject)
			continue
		}
		threads = append(threads, buildThread(sum, now))
		sightings = append(sightings, contacts.Extract(sum)...)
	}
	if len(threads) == 0 {
		return nil
	}

	if err := in.store.UpsertDocumentsBatch(threads); err != nil {
		return fmt.Errorf("persist batch: %w", err)
	}

	for _, t := range threads {
		if err := in.idx.Upsert(t); err != nil {
			return fmt.Errorf("index batch: %w", err)
		}
	}

	if err := contacts.Upsert(in.store, sightings, now); err != nil {
		return fmt.Errorf("upsert contacts: %w", err)
	}
	if err := in.contacts.LoadFromStore(in.store); err != nil {
		return fmt.Errorf("refresh contact cache: %w", err)
	}

	return nil
}

// OnBatch is the foreground observer entry point: whenever the host
// application's own listing cache updates, it hands the fresh summaries
// here. Failures are logged, not surfaced, so a bad batch never disturbs
// the host's own refresh path.
func (in *Indexer) OnBatch(ctx context.Context, summaries []source.ThreadSummary) {
	if err := in.IndexBatch(ctx, summaries); err != nil {
		if ctx.Err() != nil {
			return
		}
		in.logger.Warn("foreground index batch failed", "threads", len(summaries), "error", err)
	}
}

// buildThread flattens a summary into the stored document shape:
// space-joined recipient lists and a comma-joined label list, ready for
// tokenized indexing.
func buildThread(sum *source.ThreadSummary, now time.Time) *store.Thread {
	toEmails := make([]string, 0, len(sum.To))
	toNames := make([]string, 0, len(sum.To))
	for _, a := range sum.To {
		if a.Email != "" {
			toEmails = append(toEmails, strings.ToLower(a.Email))
		}
		if a.Name != "" {
			toNames = append(toNames, a.Name)
		}
	}
	ccEmails := make([]string, 0, len(sum.Cc))
	for _, a := range sum.Cc {
		if a.Email != "" {
			ccEmails = append(ccEmails, strings.ToLower(a.Email))
		}
	}

	return &store.Thread{
		ID:           sum.ID,
		Subject:      sum.Subject,
		Snippet:      sum.Snippet,
		SenderName:   sum.Sender.Name,
		SenderEmail:  strings.ToLower(sum.Sender.Email),
		ToEmails:     strings.Join(toEmails, " "),
		ToNames:      strings.Join(toNames, " "),
		CcEmails:     strings.Join(ccEmails, " "),
		ReceivedOn:   sum.ReceivedOn,
		Labels:       strings.Join(sum.Labels, ","),
		HasUnread:    sum.HasUnread,
		IsStarred:    sum.IsStarred,
		TotalReplies: sum.TotalReplies,
		IndexedAt:    now,
	}
}
