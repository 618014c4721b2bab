// Package source defines the remote, paginated, per-folder thread source the
// sync engine consumes. Implementations wrap whatever transport the host
// application uses; the search core only sees this boundary.
package source

import "context"

// Address is a single sender or recipient.
type Address struct {
	Name  string
	Email string
}

// ThreadSummary carries the listing fields needed to build an indexed
// thread document. Providers return summaries newest-first within a folder.
type ThreadSummary struct {
	ID           string
	Subject      string
	Snippet      string
	Sender       Address
	To           []Address
	Cc           []Address
	Labels       []string
	ReceivedOn   string // ISO-8601
	HasUnread    bool
	IsStarred    bool
	TotalReplies int
}

// Page is one page of a folder listing. An empty NextPageToken means the
// folder is exhausted.
type Page struct {
	Threads       []ThreadSummary
	NextPageToken string
}

// FolderSource lists threads for a named folder one page at a time.
// An empty cursor starts from the newest thread.
type FolderSource interface {
	FetchPage(ctx context.Context, folder, cursor string) (*Page, error)
}
