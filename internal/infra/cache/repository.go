// Package cache wraps a Result Store with an in-process LRU.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

// Repository is a read-through LRU in front of another Repository.
// Results are never mutated after Put, so cached entries never go stale.
type Repository struct {
	next  domain.Repository
	cache *lru.Cache[domain.AnalysisID, *domain.CombinedAnalysisResult]
}

// New wraps next; size <= 0 returns next unchanged.
func New(next domain.Repository, size int) (domain.Repository, error) {
	if size <= 0 {
		return next, nil
	}
	c, err := lru.New[domain.AnalysisID, *domain.CombinedAnalysisResult](size)
	if err != nil {
		return nil, err
	}
	return &Repository{next: next, cache: c}, nil
}

func (r *Repository) Put(ctx context.Context, a *domain.CombinedAnalysisResult) error {
	if err := r.next.Put(ctx, a); err != nil {
		return err
	}
	r.cache.Add(a.ID, a)
	return nil
}

func (r *Repository) Get(ctx context.Context, id domain.AnalysisID) (*domain.CombinedAnalysisResult, error) {
	if a, ok := r.cache.Get(id); ok {
		return a, nil
	}
	a, err := r.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, a)
	return a, nil
}

// List always goes to the backing store; it only warms the cache.
func (r *Repository) List(ctx context.Context, limit int) ([]*domain.CombinedAnalysisResult, error) {
	list, err := r.next.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		r.cache.ContainsOrAdd(a.ID, a)
	}
	return list, nil
}

// Len jumlah entry di cache
func (r *Repository) Len() int { return r.cache.Len() }

var _ domain.Repository = (*Repository)(nil)

