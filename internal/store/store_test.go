package store_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/maildex/maildex/internal/store"
	"github.com/maildex/maildex/internal/testutil"
)

func TestUpsertDocumentRoundTrip(t *testing.T) {
	s := testutil.OpenTestStore(t)

	th := &store.Thread{
		ID:           "thread-1",
		Subject:      "quarterly review",
		Snippet:      "numbers look good",
		SenderName:   "Alice",
		SenderEmail:  "alice@example.com",
		ToEmails:     "bob@example.com carol@example.com",
		ToNames:      "Bob Carol",
		CcEmails:     "dave@example.com",
		ReceivedOn:   "2024-03-01T10:00:00Z",
		Labels:       "inbox,important",
		HasUnread:    true,
		IsStarred:    true,
		TotalReplies: 4,
		IndexedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	testutil.MustNoErr(t, s.UpsertDocument(th))

	got, err := s.GetDocument("thread-1")
	testutil.MustNoErr(t, err)
	if diff := cmp.Diff(th, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertDocumentReplacesInPlace(t *testing.T) {
	s := testutil.OpenTestStore(t)

	testutil.MustNoErr(t, s.UpsertDocument(&store.Thread{ID: "t1", Subject: "v1"}))
	testutil.MustNoErr(t, s.UpsertDocument(&store.Thread{ID: "t1", Subject: "v2", HasUnread: true}))

	n, err := s.CountDocuments()
	testutil.MustNoErr(t, err)
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	got, err := s.GetDocument("t1")
	testutil.MustNoErr(t, err)
	if got.Subject != "v2" || !got.HasUnread {
		t.Errorf("got %+v, want replaced record", got)
	}
}

func TestGetDocumentMissing(t *testing.T) {
	s := testutil.OpenTestStore(t)

	got, err := s.GetDocument("nope")
	testutil.MustNoErr(t, err)
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestUpsertDocumentsBatch(t *testing.T) {
	s := testutil.OpenTestStore(t)

	threads := make([]*store.Thread, 25)
	for i := range threads {
		threads[i] = &store.Thread{ID: fmt.Sprintf("t%02d", i), Subject: "batch"}
	}
	testutil.MustNoErr(t, s.UpsertDocumentsBatch(threads))

	n, err := s.CountDocuments()
	testutil.MustNoErr(t, err)
	if n != 25 {
		t.Errorf("count = %d, want 25", n)
	}

	// Re-running the same batch changes nothing.
	testutil.MustNoErr(t, s.UpsertDocumentsBatch(threads))
	n, err = s.CountDocuments()
	testutil.MustNoErr(t, err)
	if n != 25 {
		t.Errorf("count after duplicate batch = %d, want 25", n)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := testutil.OpenTestStore(t)

	testutil.MustNoErr(t, s.UpsertDocument(&store.Thread{ID: "t1"}))
	testutil.MustNoErr(t, s.DeleteDocument("t1"))
	testutil.MustNoErr(t, s.DeleteDocument("t1")) // missing id is a no-op

	got, err := s.GetDocument("t1")
	testutil.MustNoErr(t, err)
	if got != nil {
		t.Errorf("document survived delete: %+v", got)
	}
}

func TestDocumentsExistBatch(t *testing.T) {
	s := testutil.OpenTestStore(t)

	testutil.MustNoErr(t, s.UpsertDocument(&store.Thread{ID: "known-1"}))
	testutil.MustNoErr(t, s.UpsertDocument(&store.Thread{ID: "known-2"}))

	existing, err := s.DocumentsExistBatch([]string{"known-1", "known-2", "unknown"})
	testutil.MustNoErr(t, err)

	want := map[string]bool{"known-1": true, "known-2": true}
	if diff := cmp.Diff(want, existing); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	empty, err := s.DocumentsExistBatch(nil)
	testutil.MustNoErr(t, err)
	if len(empty) != 0 {
		t.Errorf("empty id list returned %v", empty)
	}
}

func TestContactRoundTrip(t *testing.T) {
	s := testutil.OpenTestStore(t)

	c := &store.Contact{
		Email:            "alice@example.com",
		Name:             "Alice",
		InteractionCount: 3,
		LastSeen:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	testutil.MustNoErr(t, s.UpsertContact(c))

	got, err := s.GetContact("alice@example.com")
	testutil.MustNoErr(t, err)
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	missing, err := s.GetContact("nobody@example.com")
	testutil.MustNoErr(t, err)
	if missing != nil {
		t.Errorf("got %+v, want nil", missing)
	}
}

func TestAllContactsRankedByInteractionCount(t *testing.T) {
	s := testutil.OpenTestStore(t)

	for email, count := range map[string]int64{
		"rare@example.com":   1,
		"often@example.com":  9,
		"middle@example.com": 5,
	} {
		testutil.MustNoErr(t, s.UpsertContact(&store.Contact{
			Email:            email,
			InteractionCount: count,
			LastSeen:         time.Now().UTC(),
		}))
	}

	all, err := s.AllContacts()
	testutil.MustNoErr(t, err)

	var got []string
	for _, c := range all {
		got = append(got, c.Email)
	}
	want := []string{"often@example.com", "middle@example.com", "rare@example.com"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncProgressRoundTrip(t *testing.T) {
	s := testutil.OpenTestStore(t)

	p := &store.SyncProgress{
		Folder:        "inbox",
		NextPageToken: "page_3",
		Completed:     false,
		LastSyncedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		TotalIndexed:  120,
	}
	testutil.MustNoErr(t, s.PutSyncProgress(p))

	got, err := s.GetSyncProgress("inbox")
	testutil.MustNoErr(t, err)
	if diff := cmp.Diff(p, got, cmpopts.IgnoreFields(store.SyncProgress{}, "ID")); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if got.ID != store.ProgressID("inbox") {
		t.Errorf("id = %q, want deterministic ProgressID", got.ID)
	}

	never, err := s.GetSyncProgress("archive")
	testutil.MustNoErr(t, err)
	if never != nil {
		t.Errorf("got %+v for unsynced folder, want nil", never)
	}
}

func TestPutSyncProgressCompletedClearsCursor(t *testing.T) {
	s := testutil.OpenTestStore(t)

	testutil.MustNoErr(t, s.PutSyncProgress(&store.SyncProgress{
		Folder:        "inbox",
		NextPageToken: "page_5",
		LastSyncedAt:  time.Now().UTC(),
	}))

	// Completing the folder must drop the stale cursor even if the caller
	// left one on the record.
	testutil.MustNoErr(t, s.PutSyncProgress(&store.SyncProgress{
		Folder:        "inbox",
		NextPageToken: "page_5",
		Completed:     true,
		LastSyncedAt:  time.Now().UTC(),
		TotalIndexed:  200,
	}))

	got, err := s.GetSyncProgress("inbox")
	testutil.MustNoErr(t, err)
	if !got.Completed {
		t.Error("record not completed")
	}
	if got.NextPageToken != "" {
		t.Errorf("cursor = %q, want empty on completed record", got.NextPageToken)
	}
}

func TestProgressIDDeterministic(t *testing.T) {
	if store.ProgressID("inbox") != store.ProgressID("inbox") {
		t.Error("ProgressID not deterministic")
	}
	if store.ProgressID("inbox") == store.ProgressID("sent") {
		t.Error("distinct folders share a progress id")
	}
}

func TestGetStats(t *testing.T) {
	s := testutil.OpenTestStore(t)

	testutil.MustNoErr(t, s.UpsertDocument(&store.Thread{ID: "t1"}))
	testutil.MustNoErr(t, s.UpsertDocument(&store.Thread{ID: "t2"}))
	testutil.MustNoErr(t, s.UpsertContact(&store.Contact{Email: "a@example.com", LastSeen: time.Now().UTC()}))
	testutil.MustNoErr(t, s.PutSyncProgress(&store.SyncProgress{Folder: "inbox", LastSyncedAt: time.Now().UTC()}))

	stats, err := s.GetStats()
	testutil.MustNoErr(t, err)

	if stats.DocumentCount != 2 {
		t.Errorf("documents = %d, want 2", stats.DocumentCount)
	}
	if stats.ContactCount != 1 {
		t.Errorf("contacts = %d, want 1", stats.ContactCount)
	}
	if stats.FolderCount != 1 {
		t.Errorf("folders = %d, want 1", stats.FolderCount)
	}
	if stats.DatabaseSize <= 0 {
		t.Error("database size not reported")
	}
}
