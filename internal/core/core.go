// Package core assembles the search subsystem for one active connection:
// persistent store, full-text index, contact cache, query engine, and the
// background sync engine. Switching connections tears the previous set
// down completely before the next one starts, so no entity ever leaks
// between connections.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/maildex/maildex/internal/contacts"
	"github.com/maildex/maildex/internal/index"
	"github.com/maildex/maildex/internal/indexer"
	"github.com/maildex/maildex/internal/search"
	"github.com/maildex/maildex/internal/source"
	"github.com/maildex/maildex/internal/store"
	"github.com/maildex/maildex/internal/syncer"
)

// Core owns the per-connection search components. All methods are safe for
// interleaved use from the host application's callbacks.
type Core struct {
	dataDir  string
	src      source.FolderSource
	syncOpts *syncer.Options
	logger   *slog.Logger

	mu           sync.Mutex
	connectionID string
	store        *store.Store // nil when storage is unavailable
	idx          *index.Index
	cache        *contacts.Cache
	engine       *search.Engine
	indexer      *indexer.Indexer
	syncCancel   context.CancelFunc
	syncDone     chan struct{}
}

// New creates a Core that stores each connection's database under dataDir.
func New(dataDir string, src source.FolderSource, syncOpts *syncer.Options) (*Core, error) {
	idx, err := index.New()
	if err != nil {
		return nil, err
	}
	if syncOpts == nil {
		syncOpts = syncer.DefaultOptions()
	}
	return &Core{
		dataDir:  dataDir,
		src:      src,
		syncOpts: syncOpts,
		logger:   slog.Default(),
		idx:      idx,
		cache:    contacts.NewCache(),
	}, nil
}

// WithLogger sets the logger.
func (c *Core) WithLogger(logger *slog.Logger) *Core {
	c.logger = logger
	return c
}

// SwitchConnection activates a connection: the previous sync engine is
// cancelled and awaited, the previous store handle closed, and the index
// and contact cache rebuilt from the new connection's store. A store that
// cannot be opened degrades to an empty, still-ready subsystem; a later
// sync repopulates it.
func (c *Core) SwitchConnection(ctx context.Context, connectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.connectionID = connectionID

	dbPath := filepath.Join(c.dataDir, connectionID+".db")
	st, err := store.Open(dbPath)
	if err == nil {
		err = st.InitSchema()
		if err != nil {
			st.Close()
		}
	}
	if err != nil {
		// Degrade to an empty subsystem rather than failing the host.
		c.logger.Error("store unavailable, starting empty", "connection", connectionID, "error", err)
		c.store = nil
		c.engine = search.NewEngine(c.idx, c.cache).WithLogger(c.logger)
		return nil
	}
	c.store = st

	if err := c.rebuild(ctx); err != nil {
		c.logger.Error("index rebuild failed, starting empty", "connection", connectionID, "error", err)
	}

	c.engine = search.NewEngine(c.idx, c.cache).WithLogger(c.logger)
	c.indexer = indexer.New(c.store, c.idx, c.cache).WithLogger(c.logger)
	c.startSyncLocked()
	return nil
}

// rebuild reloads the full-text index and contact cache from the store.
// The two loads are independent and run concurrently; neither blocks
// interactive search, which simply sees an empty index until done.
func (c *Core) rebuild(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		docs, err := c.store.AllDocuments()
		if err != nil {
			return fmt.Errorf("load documents: %w", err)
		}
		return c.idx.RebuildFromAll(docs)
	})
	g.Go(func() error {
		return c.cache.LoadFromStore(c.store)
	})

	return g.Wait()
}

// startSyncLocked launches the background sync engine for the active
// connection. Hosts that feed the index purely through OnBatch pass a nil
// source and get no background engine. Callers hold c.mu.
func (c *Core) startSyncLocked() {
	if c.src == nil {
		return
	}
	eng := syncer.New(c.src, c.store, c.indexer, c.syncOpts).WithLogger(c.logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.syncCancel = cancel
	c.syncDone = done

	go func() {
		defer close(done)
		if err := eng.Run(ctx); err != nil {
			c.logger.Warn("background sync ended with error", "error", err)
		}
	}()
}

// teardownLocked cancels the running sync engine, waits for it, and closes
// the store handle. Callers hold c.mu.
func (c *Core) teardownLocked() {
	if c.syncCancel != nil {
		c.syncCancel()
		<-c.syncDone
		c.syncCancel = nil
		c.syncDone = nil
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("closing store", "error", err)
		}
		c.store = nil
	}
	if err := c.idx.RebuildFromAll(nil); err != nil {
		c.logger.Warn("resetting index", "error", err)
	}
	c.cache.Clear()
	c.indexer = nil
	c.engine = nil
	c.connectionID = ""
}

// Close tears down the active connection, if any.
func (c *Core) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// OnBatch is the foreground observer hook: the host calls it whenever its
// own listing cache refreshes. Duplicate and out-of-order batches are fine;
// indexing is an idempotent per-id upsert.
func (c *Core) OnBatch(ctx context.Context, summaries []source.ThreadSummary) {
	c.mu.Lock()
	in := c.indexer
	c.mu.Unlock()

	if in == nil {
		return
	}
	in.OnBatch(ctx, summaries)
}

// Search executes a raw query against the active connection's index.
// With no active connection it returns empty results, never an error.
func (c *Core) Search(raw string, opts *search.Options) ([]search.Result, error) {
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()

	if eng == nil {
		return []search.Result{}, nil
	}
	return eng.Search(raw, opts)
}

// SearchContacts answers contact autocomplete from the in-memory cache.
func (c *Core) SearchContacts(raw string, limit int) []*store.Contact {
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()

	if eng == nil {
		return nil
	}
	return eng.SearchContacts(raw, limit)
}

// TriggerSync starts an immediate sync activation for the active
// connection, replacing any activation still in flight.
func (c *Core) TriggerSync() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil || c.indexer == nil {
		return fmt.Errorf("no active connection")
	}
	if c.src == nil {
		return fmt.Errorf("no mail source configured")
	}
	if c.syncCancel != nil {
		c.syncCancel()
		<-c.syncDone
	}
	c.startSyncLocked()
	return nil
}

// Stats reports store statistics plus the live index and cache sizes.
type Stats struct {
	ConnectionID string
	IndexedDocs  int
	Contacts     int
	Store        *store.Stats
	Folders      []*store.SyncProgress
}

// GetStats returns a snapshot of the subsystem's state.
func (c *Core) GetStats() (*Stats, error) {
	c.mu.Lock()
	st := c.store
	connID := c.connectionID
	c.mu.Unlock()

	stats := &Stats{
		ConnectionID: connID,
		IndexedDocs:  c.idx.Size(),
		Contacts:     c.cache.Size(),
	}
	if st != nil {
		storeStats, err := st.GetStats()
		if err != nil {
			return nil, err
		}
		stats.Store = storeStats

		folders, err := st.AllSyncProgress()
		if err != nil {
			return nil, err
		}
		stats.Folders = folders
	}
	return stats, nil
}
