package syncer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/maildex/maildex/internal/contacts"
	"github.com/maildex/maildex/internal/index"
	"github.com/maildex/maildex/internal/indexer"
	"github.com/maildex/maildex/internal/source"
	"github.com/maildex/maildex/internal/store"
	"github.com/maildex/maildex/internal/syncer"
	"github.com/maildex/maildex/internal/testutil"
)

func fastOptions(folders ...string) *syncer.Options {
	return &syncer.Options{
		Folders:         folders,
		Freshness:       time.Hour,
		PageDelay:       time.Millisecond,
		ActivationDelay: 0,
	}
}

func newTestEngine(t *testing.T, src source.FolderSource, opts *syncer.Options) (*syncer.Engine, *store.Store, *index.Index) {
	t.Helper()
	s := testutil.OpenTestStore(t)
	ix, err := index.New()
	testutil.MustNoErr(t, err)
	in := indexer.New(s, ix, contacts.NewCache())
	return syncer.New(src, s, in, opts), s, ix
}

func TestRunSyncsAllPages(t *testing.T) {
	src := source.NewMockSource()
	src.AddPage("inbox",
		testutil.NewThreadSummary("t1").Build(),
		testutil.NewThreadSummary("t2").Build(),
	)
	src.AddPage("inbox", testutil.NewThreadSummary("t3").Build())

	eng, s, ix := newTestEngine(t, src, fastOptions("inbox"))
	testutil.MustNoErr(t, eng.Run(context.Background()))

	prog, err := s.GetSyncProgress("inbox")
	testutil.MustNoErr(t, err)
	if prog == nil || !prog.Completed {
		t.Fatalf("progress = %+v, want completed", prog)
	}
	if prog.TotalIndexed != 3 {
		t.Errorf("totalIndexed = %d, want 3", prog.TotalIndexed)
	}
	if prog.NextPageToken != "" {
		t.Errorf("cursor = %q, want empty", prog.NextPageToken)
	}
	if got := ix.Size(); got != 3 {
		t.Errorf("index size = %d, want 3", got)
	}
}

func TestRunFoldersStrictlySequential(t *testing.T) {
	src := source.NewMockSource()
	src.AddPage("inbox", testutil.NewThreadSummary("i1").Build())
	src.AddPage("sent", testutil.NewThreadSummary("s1").Build())

	eng, _, _ := newTestEngine(t, src, fastOptions("inbox", "sent"))
	testutil.MustNoErr(t, eng.Run(context.Background()))

	want := []string{"inbox", "sent"}
	if diff := cmp.Diff(want, src.FetchFolders); diff != "" {
		t.Errorf("fetch order mismatch (-want +got):\n%s", diff)
	}
}

func TestRunResumesFromSavedCursor(t *testing.T) {
	src := source.NewMockSource()
	src.AddPage("inbox", testutil.NewThreadSummary("t1").Build(), testutil.NewThreadSummary("t2").Build())
	src.AddPage("inbox", testutil.NewThreadSummary("t3").Build(), testutil.NewThreadSummary("t4").Build())
	src.AddPage("inbox", testutil.NewThreadSummary("t5").Build())

	eng, s, _ := newTestEngine(t, src, fastOptions("inbox"))

	// A prior activation stopped after persisting page 0.
	testutil.MustNoErr(t, s.PutSyncProgress(&store.SyncProgress{
		Folder:        "inbox",
		NextPageToken: "page_1",
		Completed:     false,
		LastSyncedAt:  time.Now().UTC(),
		TotalIndexed:  2,
	}))

	testutil.MustNoErr(t, eng.Run(context.Background()))

	// Page 0 is never re-fetched.
	want := []string{"page_1", "page_2"}
	if diff := cmp.Diff(want, src.FetchCursors); diff != "" {
		t.Errorf("cursors mismatch (-want +got):\n%s", diff)
	}

	prog, err := s.GetSyncProgress("inbox")
	testutil.MustNoErr(t, err)
	if !prog.Completed {
		t.Error("folder not completed after resume")
	}
	if prog.TotalIndexed != 5 {
		t.Errorf("totalIndexed = %d, want monotonic 5", prog.TotalIndexed)
	}
}

func TestRunSkipsFreshCompletedFolder(t *testing.T) {
	src := source.NewMockSource()
	src.AddPage("inbox", testutil.NewThreadSummary("t1").Build())

	eng, s, _ := newTestEngine(t, src, fastOptions("inbox"))
	testutil.MustNoErr(t, s.PutSyncProgress(&store.SyncProgress{
		Folder:       "inbox",
		Completed:    true,
		LastSyncedAt: time.Now().UTC(),
		TotalIndexed: 1,
	}))

	testutil.MustNoErr(t, eng.Run(context.Background()))

	if src.FetchCalls != 0 {
		t.Errorf("fresh folder fetched %d times, want 0", src.FetchCalls)
	}
}

func TestRunCatchUpShortCircuit(t *testing.T) {
	src := source.NewMockSource()
	src.AddPage("inbox",
		testutil.NewThreadSummary("known-1").Build(),
		testutil.NewThreadSummary("known-2").Build(),
	)
	src.AddPage("inbox", testutil.NewThreadSummary("old").Build())

	eng, s, _ := newTestEngine(t, src, fastOptions("inbox"))

	// Both page-0 threads were indexed by an earlier activation, and the
	// completed record has gone stale.
	testutil.MustNoErr(t, s.UpsertDocument(&store.Thread{ID: "known-1"}))
	testutil.MustNoErr(t, s.UpsertDocument(&store.Thread{ID: "known-2"}))
	testutil.MustNoErr(t, s.PutSyncProgress(&store.SyncProgress{
		Folder:       "inbox",
		Completed:    true,
		LastSyncedAt: time.Now().UTC().Add(-2 * time.Hour),
		TotalIndexed: 3,
	}))

	testutil.MustNoErr(t, eng.Run(context.Background()))

	// First page held only known threads: deeper pages are never fetched.
	if src.FetchCalls != 1 {
		t.Errorf("fetch calls = %d, want short-circuit after 1", src.FetchCalls)
	}

	prog, err := s.GetSyncProgress("inbox")
	testutil.MustNoErr(t, err)
	if !prog.Completed {
		t.Error("catch-up did not re-complete the folder")
	}
	if time.Since(prog.LastSyncedAt) > time.Minute {
		t.Errorf("lastSyncedAt %v not refreshed", prog.LastSyncedAt)
	}
}

func TestRunCatchUpIndexesNewThreads(t *testing.T) {
	src := source.NewMockSource()
	src.AddPage("inbox",
		testutil.NewThreadSummary("new").Build(),
		testutil.NewThreadSummary("known").Build(),
	)

	eng, s, ix := newTestEngine(t, src, fastOptions("inbox"))
	testutil.MustNoErr(t, s.UpsertDocument(&store.Thread{ID: "known"}))
	testutil.MustNoErr(t, s.PutSyncProgress(&store.SyncProgress{
		Folder:       "inbox",
		Completed:    true,
		LastSyncedAt: time.Now().UTC().Add(-2 * time.Hour),
	}))

	testutil.MustNoErr(t, eng.Run(context.Background()))

	if ix.Get("new") == nil {
		t.Error("new thread not indexed during catch-up")
	}
}

func TestRunFolderErrorIsolation(t *testing.T) {
	src := source.NewMockSource()
	src.AddPage("inbox", testutil.NewThreadSummary("i1").Build())
	src.AddPage("sent", testutil.NewThreadSummary("s1").Build())
	src.FetchErrorAt["inbox"] = 0

	eng, s, _ := newTestEngine(t, src, fastOptions("inbox", "sent"))
	testutil.MustNoErr(t, eng.Run(context.Background()))

	// inbox failed, sent still completed.
	sent, err := s.GetSyncProgress("sent")
	testutil.MustNoErr(t, err)
	if sent == nil || !sent.Completed {
		t.Errorf("sent progress = %+v, want completed despite inbox failure", sent)
	}
}

func TestRunCancelledBeforeStartIsSilent(t *testing.T) {
	src := source.NewMockSource()
	src.AddPage("inbox", testutil.NewThreadSummary("t1").Build())

	eng, _, _ := newTestEngine(t, src, fastOptions("inbox"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := eng.Run(ctx); err != nil {
		t.Errorf("cancelled run returned %v, want nil", err)
	}
	if src.FetchCalls != 0 {
		t.Errorf("cancelled run fetched %d pages", src.FetchCalls)
	}
}

// cancellingSource cancels the given CancelFunc after n successful fetches.
type cancellingSource struct {
	inner  source.FolderSource
	cancel context.CancelFunc
	after  int
	calls  int
}

func (c *cancellingSource) FetchPage(ctx context.Context, folder, cursor string) (*source.Page, error) {
	page, err := c.inner.FetchPage(ctx, folder, cursor)
	c.calls++
	if c.calls >= c.after {
		c.cancel()
	}
	return page, err
}

func TestRunCancelledMidSyncKeepsProgress(t *testing.T) {
	mock := source.NewMockSource()
	mock.AddPage("inbox", testutil.NewThreadSummary("t1").Build())
	mock.AddPage("inbox", testutil.NewThreadSummary("t2").Build())
	mock.AddPage("inbox", testutil.NewThreadSummary("t3").Build())

	ctx, cancel := context.WithCancel(context.Background())
	src := &cancellingSource{inner: mock, cancel: cancel, after: 2}

	eng, s, _ := newTestEngine(t, src, fastOptions("inbox"))
	if err := eng.Run(ctx); err != nil {
		t.Errorf("cancelled run returned %v, want nil", err)
	}

	// Page 0 was fully processed before cancellation: its progress record
	// survives for the next activation to resume from.
	prog, err := s.GetSyncProgress("inbox")
	testutil.MustNoErr(t, err)
	if prog == nil {
		t.Fatal("no progress persisted")
	}
	if prog.Completed {
		t.Error("folder marked completed despite cancellation")
	}
	if prog.NextPageToken != "page_1" {
		t.Errorf("cursor = %q, want page_1", prog.NextPageToken)
	}
}

func TestRunRateLimitedSourceCancellation(t *testing.T) {
	// Cancellation must stay recognizable through the rate-limited wrapper's
	// error chain.
	mock := source.NewMockSource()
	mock.AddPage("inbox", testutil.NewThreadSummary("t1").Build())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limited := source.NewRateLimited(mock, 1000)
	_, err := limited.FetchPage(ctx, "inbox", "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
}

func TestRunEmptyFolderCompletesImmediately(t *testing.T) {
	src := source.NewMockSource()

	eng, s, _ := newTestEngine(t, src, fastOptions("inbox"))
	testutil.MustNoErr(t, eng.Run(context.Background()))

	prog, err := s.GetSyncProgress("inbox")
	testutil.MustNoErr(t, err)
	if prog == nil || !prog.Completed {
		t.Errorf("progress = %+v, want completed for empty folder", prog)
	}
	if prog.TotalIndexed != 0 {
		t.Errorf("totalIndexed = %d, want 0", prog.TotalIndexed)
	}
}
