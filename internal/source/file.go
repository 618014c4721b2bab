package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFilePageSize is how many threads a FileSource returns per page.
const DefaultFilePageSize = 100

// FileSource is a FolderSource backed by JSON files on disk. Each folder is
// a <dir>/<folder>.json file holding an array of thread summaries, newest
// first. Useful for local archives and for exercising the sync engine
// without a live provider.
type FileSource struct {
	dir      string
	pageSize int

	mu     sync.Mutex
	loaded map[string][]ThreadSummary
}

// NewFileSource creates a source over dir. pageSize <= 0 uses the default.
func NewFileSource(dir string, pageSize int) *FileSource {
	if pageSize <= 0 {
		pageSize = DefaultFilePageSize
	}
	return &FileSource{
		dir:      dir,
		pageSize: pageSize,
		loaded:   make(map[string][]ThreadSummary),
	}
}

// FetchPage returns one page of the folder's file, paginated with the same
// "page_N" continuation tokens the mock provider uses.
func (f *FileSource) FetchPage(ctx context.Context, folder, cursor string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	threads, err := f.load(folder)
	if err != nil {
		return nil, err
	}

	pageNum := 0
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "page_%d", &pageNum); err != nil {
			return nil, fmt.Errorf("invalid page token: %s", cursor)
		}
	}

	start := pageNum * f.pageSize
	if start >= len(threads) {
		return &Page{}, nil
	}
	end := start + f.pageSize
	if end > len(threads) {
		end = len(threads)
	}

	page := &Page{Threads: threads[start:end]}
	if end < len(threads) {
		page.NextPageToken = fmt.Sprintf("page_%d", pageNum+1)
	}
	return page, nil
}

// load reads and caches a folder's file. A missing file is an empty folder,
// not an error, so configured folders without an archive simply complete.
func (f *FileSource) load(folder string) ([]ThreadSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if threads, ok := f.loaded[folder]; ok {
		return threads, nil
	}

	path := filepath.Join(f.dir, folder+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		f.loaded[folder] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read folder file: %w", err)
	}

	var threads []ThreadSummary
	if err := json.Unmarshal(data, &threads); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	f.loaded[folder] = threads
	return threads, nil
}

var _ FolderSource = (*FileSource)(nil)
