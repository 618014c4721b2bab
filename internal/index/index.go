// Package index maintains the in-memory full-text index over thread
// documents. The index is rebuilt from the persistent store at startup;
// durability is the store's job, not this package's.
package index

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/maildex/maildex/internal/store"
)

// Per-field relevance boosts. Subject matches dominate, sender matches
// rank above body/recipient matches.
var fieldBoosts = map[string]float64{
	"subject":     3.0,
	"senderName":  2.0,
	"senderEmail": 2.0,
	"snippet":     1.0,
	"toNames":     1.0,
	"toEmails":    1.0,
}

// Hit is one ranked search candidate.
type Hit struct {
	Thread *store.Thread
	Score  float64
}

// Index is the in-memory inverted index plus a document table for
// materializing hits. Mutation and reads may interleave; both are guarded.
type Index struct {
	mu   sync.RWMutex
	idx  bleve.Index
	docs map[string]*store.Thread
}

// searchDoc is the shape handed to bleve for indexing.
type searchDoc struct {
	Subject     string `json:"subject"`
	Snippet     string `json:"snippet"`
	SenderName  string `json:"senderName"`
	SenderEmail string `json:"senderEmail"`
	ToNames     string `json:"toNames"`
	ToEmails    string `json:"toEmails"`
}

func newSearchDoc(t *store.Thread) searchDoc {
	return searchDoc{
		Subject:     t.Subject,
		Snippet:     t.Snippet,
		SenderName:  t.SenderName,
		SenderEmail: t.SenderEmail,
		ToNames:     t.ToNames,
		ToEmails:    t.ToEmails,
	}
}

func newIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	doc := bleve.NewDocumentMapping()
	for field := range fieldBoosts {
		fm := bleve.NewTextFieldMapping()
		fm.Store = false
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(field, fm)
	}
	im.DefaultMapping = doc

	return im
}

// New creates an empty in-memory index.
func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(newIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{
		idx:  idx,
		docs: make(map[string]*store.Thread),
	}, nil
}

// Upsert adds a thread document, replacing any existing document with the
// same id rather than duplicating it.
func (ix *Index) Upsert(t *store.Thread) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.idx.Index(t.ID, newSearchDoc(t)); err != nil {
		return fmt.Errorf("index document %s: %w", t.ID, err)
	}
	ix.docs[t.ID] = t
	return nil
}

// Remove deletes a document by id. Unknown ids are a no-op.
func (ix *Index) Remove(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.idx.Delete(id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	delete(ix.docs, id)
	return nil
}

// RebuildFromAll resets the index and bulk-loads the given documents.
// Used once at startup, off the interactive path.
func (ix *Index) RebuildFromAll(threads []*store.Thread) error {
	fresh, err := bleve.NewMemOnly(newIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	batch := fresh.NewBatch()
	docs := make(map[string]*store.Thread, len(threads))
	for _, t := range threads {
		if err := batch.Index(t.ID, newSearchDoc(t)); err != nil {
			return fmt.Errorf("batch index %s: %w", t.ID, err)
		}
		docs[t.ID] = t
	}
	if err := fresh.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}

	ix.mu.Lock()
	old := ix.idx
	ix.idx = fresh
	ix.docs = docs
	ix.mu.Unlock()

	_ = old.Close()
	return nil
}

// Size returns the number of indexed documents.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Get returns the indexed document with the given id, or nil.
func (ix *Index) Get(id string) *store.Thread {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.docs[id]
}

// Search runs a ranked free-text lookup and returns up to limit candidates.
// Each query term matches with a typo tolerance of roughly 20% of the term
// length, or as a prefix to support incremental typing.
func (ix *Index) Search(text string, limit int) ([]Hit, error) {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var perTerm []query.Query
	for _, term := range terms {
		var fields []query.Query
		for field, boost := range fieldBoosts {
			mq := bleve.NewMatchQuery(term)
			mq.SetField(field)
			mq.SetBoost(boost)
			mq.SetFuzziness(fuzziness(term))
			fields = append(fields, mq)

			pq := bleve.NewPrefixQuery(term)
			pq.SetField(field)
			pq.SetBoost(boost)
			fields = append(fields, pq)
		}
		perTerm = append(perTerm, bleve.NewDisjunctionQuery(fields...))
	}

	var q query.Query
	if len(perTerm) == 1 {
		q = perTerm[0]
	} else {
		q = bleve.NewConjunctionQuery(perTerm...)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := ix.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		t, ok := ix.docs[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Thread: t, Score: h.Score})
	}
	return hits, nil
}

// Scan returns up to limit documents ordered by receivedOn descending.
// Serves structured-only queries that have no free text to rank by.
func (ix *Index) Scan(limit int) []*store.Thread {
	ix.mu.RLock()
	threads := make([]*store.Thread, 0, len(ix.docs))
	for _, t := range ix.docs {
		threads = append(threads, t)
	}
	ix.mu.RUnlock()

	sort.Slice(threads, func(i, j int) bool {
		if threads[i].ReceivedOn != threads[j].ReceivedOn {
			return threads[i].ReceivedOn > threads[j].ReceivedOn
		}
		return threads[i].ID < threads[j].ID
	})

	if limit > 0 && len(threads) > limit {
		threads = threads[:limit]
	}
	return threads
}

// fuzziness returns the edit-distance tolerance for a term: about 20% of
// its length, capped at bleve's maximum of 2. Short terms match exactly.
func fuzziness(term string) int {
	f := len(term) / 5
	if f > 2 {
		f = 2
	}
	return f
}
