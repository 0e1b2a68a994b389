// Package memory is the in-process Result Store used by default and by the CLI.
package memory

import (
	"context"
	"sync"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

// AnalysisRepository keeps results in a map plus insertion order.
// Stored values are treated as immutable; callers get the same pointer back.
type AnalysisRepository struct {
	mu    sync.RWMutex
	byID  map[domain.AnalysisID]*domain.CombinedAnalysisResult
	order []domain.AnalysisID
}

func NewAnalysisRepository() *AnalysisRepository {
	return &AnalysisRepository{byID: make(map[domain.AnalysisID]*domain.CombinedAnalysisResult)}
}

func (r *AnalysisRepository) Put(_ context.Context, a *domain.CombinedAnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.byID[a.ID] = a
	r.order = append(r.order, a.ID)
	return nil
}

func (r *AnalysisRepository) Get(_ context.Context, id domain.AnalysisID) (*domain.CombinedAnalysisResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

// List returns newest first (reverse insertion order).
func (r *AnalysisRepository) List(_ context.Context, limit int) ([]*domain.CombinedAnalysisResult, error) {
	limit = domain.ClampLimit(limit)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.CombinedAnalysisResult, 0, min(limit, len(r.order)))
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.byID[r.order[i]])
	}
	return out, nil
}

// Len jumlah hasil tersimpan
func (r *AnalysisRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
