// Package testutil provides shared helpers for constructing fixtures in
// tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/maildex/maildex/internal/source"
	"github.com/maildex/maildex/internal/store"
)

// MustNoErr fails the test immediately on a non-nil error.
func MustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// OpenTestStore opens a fresh store in a temp directory with the schema
// applied. The store is closed when the test finishes.
func OpenTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ThreadSummaryBuilder provides a fluent API for constructing
// source.ThreadSummary fixtures.
type ThreadSummaryBuilder struct {
	s source.ThreadSummary
}

// NewThreadSummary creates a builder with sensible defaults.
func NewThreadSummary(id string) *ThreadSummaryBuilder {
	return &ThreadSummaryBuilder{
		s: source.ThreadSummary{
			ID:         id,
			Subject:    "Test Subject",
			Snippet:    "Test snippet",
			Sender:     source.Address{Name: "Sender", Email: "sender@example.com"},
			ReceivedOn: "2024-01-01T00:00:00Z",
		},
	}
}

func (b *ThreadSummaryBuilder) WithSubject(s string) *ThreadSummaryBuilder {
	b.s.Subject = s
	return b
}

func (b *ThreadSummaryBuilder) WithSnippet(s string) *ThreadSummaryBuilder {
	b.s.Snippet = s
	return b
}

func (b *ThreadSummaryBuilder) WithSender(name, email string) *ThreadSummaryBuilder {
	b.s.Sender = source.Address{Name: name, Email: email}
	return b
}

func (b *ThreadSummaryBuilder) WithTo(addrs ...source.Address) *ThreadSummaryBuilder {
	b.s.To = addrs
	return b
}

func (b *ThreadSummaryBuilder) WithCc(addrs ...source.Address) *ThreadSummaryBuilder {
	b.s.Cc = addrs
	return b
}

func (b *ThreadSummaryBuilder) WithReceivedOn(iso string) *ThreadSummaryBuilder {
	b.s.ReceivedOn = iso
	return b
}

func (b *ThreadSummaryBuilder) WithLabels(labels ...string) *ThreadSummaryBuilder {
	b.s.Labels = labels
	return b
}

func (b *ThreadSummaryBuilder) WithUnread(unread bool) *ThreadSummaryBuilder {
	b.s.HasUnread = unread
	return b
}

func (b *ThreadSummaryBuilder) WithStarred(starred bool) *ThreadSummaryBuilder {
	b.s.IsStarred = starred
	return b
}

func (b *ThreadSummaryBuilder) WithReplies(n int) *ThreadSummaryBuilder {
	b.s.TotalReplies = n
	return b
}

// Build returns the constructed summary.
func (b *ThreadSummaryBuilder) Build() source.ThreadSummary {
	return b.s
}
