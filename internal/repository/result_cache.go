package repository

import (
	"context"
	"errors"
	"time"

	"EdgeScan/internal/domain/models"
	domrepo "EdgeScan/internal/domain/repository"
	"EdgeScan/pkg/cache"
)

// CachedResults implements ResultCache over any pkg/cache backend.
type CachedResults struct {
	c cache.Service
}

func NewCachedResults(c cache.Service) domrepo.ResultCache {
	return &CachedResults{c: c}
}

func (r *CachedResults) Get(ctx context.Context, key string) ([]models.CombinationResult, bool, error) {
	var out []models.CombinationResult
	if err := r.c.Get(ctx, key, &out); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	// the bit set is not serialized; rebuild it from the names
	for i := range out {
		out[i].Config.Filters, _ = models.ParseFilterSet(out[i].Config.Names)
	}
	return out, true, nil
}

// Set stores a copy of results; an empty ranking is cached as well.
func (r *CachedResults) Set(ctx context.Context, key string, results []models.CombinationResult, ttl time.Duration) error {
	if results == nil {
		results = []models.CombinationResult{}
	}
	return r.c.Set(ctx, key, results, ttl)
}
