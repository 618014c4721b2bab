package source

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// RateLimited wraps a FolderSource with a token-bucket limiter so a sync
// pass cannot exceed the provider's request budget regardless of how short
// the configured inter-page delay is.
type RateLimited struct {
	inner   FolderSource
	limiter *rate.Limiter
}

// NewRateLimited wraps src at the given queries-per-second with a burst of 1.
func NewRateLimited(src FolderSource, qps float64) *RateLimited {
	return &RateLimited{
		inner:   src,
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
	}
}

// FetchPage waits for limiter capacity, then delegates.
func (r *RateLimited) FetchPage(ctx context.Context, folder, cursor string) (*Page, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := r.inner.FetchPage(ctx, folder, cursor)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch page for folder %s", folder)
	}
	return page, nil
}

var _ FolderSource = (*RateLimited)(nil)
