package search

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/maildex/maildex/internal/contacts"
	"github.com/maildex/maildex/internal/index"
	"github.com/maildex/maildex/internal/store"
)

const (
	// DefaultLimit is the result cap when the caller does not set one.
	DefaultLimit = 50

	// candidateCap bounds full-text candidates before post-filtering.
	candidateCap = 200

	// scanCap bounds the full-index scan for structured-only queries.
	scanCap = 10000
)

// Result is one ranked search hit: the full thread document plus its score.
// Structured-only queries carry a zero score.
type Result struct {
	Thread *store.Thread
	Score  float64
}

// Options tunes a single search call.
type Options struct {
	Limit int
}

// Engine is the only query surface over the index and contact cache.
// It never touches the network or the store on the query path.
type Engine struct {
	idx      *index.Index
	contacts *contacts.Cache
	logger   *slog.Logger
}

// NewEngine creates a search engine over the given index and contact cache.
func NewEngine(idx *index.Index, cache *contacts.Cache) *Engine {
	return &Engine{
		idx:      idx,
		contacts: cache,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// Search parses and executes a raw query against the local index.
//
// Queries using operators the index cannot honor return an empty result set
// unconditionally: a partial match set for has:attachment or label: would be
// silently misleading. Callers surface that as "unsupported syntax", which
// is a presentation concern outside this package.
func (e *Engine) Search(raw string, opts *Options) ([]Result, error) {
	limit := DefaultLimit
	if opts != nil && opts.Limit > 0 {
		limit = opts.Limit
	}

	q := Parse(raw)
	if q.HasUnsupported() {
		e.logger.Debug("query uses unsupported operators", "operators", q.Unsupported)
		return []Result{}, nil
	}

	var candidates []Result
	if q.FreeText == "" {
		// Pure structured filters: bounded scan, newest first.
		for _, t := range e.idx.Scan(scanCap) {
			candidates = append(candidates, Result{Thread: t})
		}
	} else {
		text := q.FreeText
		if q.Subject != "" {
			text = q.Subject + " " + text
		}
		hits, err := e.idx.Search(text, candidateCap)
		if err != nil {
			return nil, fmt.Errorf("index search: %w", err)
		}
		for _, h := range hits {
			candidates = append(candidates, Result{Thread: h.Thread, Score: h.Score})
		}
	}

	results := make([]Result, 0, limit)
	for _, cand := range candidates {
		if !matchesFilters(cand.Thread, q) {
			continue
		}
		results = append(results, cand)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// SearchContacts answers autocomplete lookups straight from the in-memory
// contact cache, bypassing the full-text index entirely.
func (e *Engine) SearchContacts(raw string, limit int) []*store.Contact {
	return e.contacts.Search(raw, limit)
}

// matchesFilters applies the structured post-filters to one candidate.
func matchesFilters(t *store.Thread, q *ParsedQuery) bool {
	if q.From != "" && !containsFold(t.SenderEmail, q.From) && !containsFold(t.SenderName, q.From) {
		return false
	}
	if q.To != "" &&
		!containsFold(t.ToEmails, q.To) &&
		!containsFold(t.ToNames, q.To) &&
		!containsFold(t.CcEmails, q.To) {
		return false
	}
	if q.Subject != "" && !containsFold(t.Subject, q.Subject) {
		return false
	}
	if q.IsUnread != nil && t.HasUnread != *q.IsUnread {
		return false
	}
	if q.IsStarred != nil && t.IsStarred != *q.IsStarred {
		return false
	}
	// ISO-8601 strings compare lexicographically, so date bounds are plain
	// string comparisons against the normalized YYYY-MM-DD value.
	if q.After != "" && t.ReceivedOn < q.After {
		return false
	}
	if q.Before != "" && t.ReceivedOn >= q.Before {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
