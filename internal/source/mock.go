package source

import (
	"context"
	"fmt"
	"sync"
)

// MockSource is an in-memory FolderSource for tests. Pages are configured
// per folder; cursors are "page_N" tokens like the real providers' opaque
// continuations.
type MockSource struct {
	mu sync.Mutex

	// Pages maps folder name to its ordered page fixtures.
	Pages map[string][][]ThreadSummary

	// FetchError, when set, is returned by every FetchPage call.
	FetchError error

	// FetchErrorAt returns an error for a specific (folder, page index).
	FetchErrorAt map[string]int

	// Call tracking for assertions.
	FetchCalls   int
	FetchCursors []string
	FetchFolders []string
}

// NewMockSource creates an empty mock source.
func NewMockSource() *MockSource {
	return &MockSource{
		Pages:        make(map[string][][]ThreadSummary),
		FetchErrorAt: make(map[string]int),
	}
}

// AddPage appends a page of threads to a folder's fixtures.
func (m *MockSource) AddPage(folder string, threads ...ThreadSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pages[folder] = append(m.Pages[folder], threads)
}

// FetchPage returns the configured page for the cursor.
func (m *MockSource) FetchPage(ctx context.Context, folder, cursor string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.FetchCalls++
	m.FetchFolders = append(m.FetchFolders, folder)
	m.FetchCursors = append(m.FetchCursors, cursor)

	if m.FetchError != nil {
		return nil, m.FetchError
	}

	pageNum := 0
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "page_%d", &pageNum); err != nil {
			return nil, fmt.Errorf("invalid page token: %s", cursor)
		}
	}

	if at, ok := m.FetchErrorAt[folder]; ok && at == pageNum {
		return nil, fmt.Errorf("injected fetch error at %s page %d", folder, pageNum)
	}

	pages := m.Pages[folder]
	if pageNum >= len(pages) {
		return &Page{}, nil
	}

	page := &Page{Threads: pages[pageNum]}
	if pageNum+1 < len(pages) {
		page.NextPageToken = fmt.Sprintf("page_%d", pageNum+1)
	}
	return page, nil
}

// Reset clears call tracking but keeps page fixtures.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls = 0
	m.FetchCursors = nil
	m.FetchFolders = nil
	m.FetchError = nil
	m.FetchErrorAt = make(map[string]int)
}

var _ FolderSource = (*MockSource)(nil)
