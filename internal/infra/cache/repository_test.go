package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
	"github.com/bryanwahyu/agrivision/internal/infra/db/memory"
)

type countingRepo struct {
	domain.Repository
	gets int
}

func (c *countingRepo) Get(ctx context.Context, id domain.AnalysisID) (*domain.CombinedAnalysisResult, error) {
	c.gets++
	return c.Repository.Get(ctx, id)
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()
	backing := &countingRepo{Repository: memory.NewAnalysisRepository()}
	require.NoError(t, backing.Put(ctx, &domain.CombinedAnalysisResult{ID: "old"}))

	repo, err := New(backing, 2)
	require.NoError(t, err)

	_, err = repo.Get(ctx, "old")
	require.NoError(t, err)
	_, err = repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 1, backing.gets)

	// Put populates the cache
	require.NoError(t, repo.Put(ctx, &domain.CombinedAnalysisResult{ID: "new"}))
	_, err = repo.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 1, backing.gets)
}

func TestMissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	backing := &countingRepo{Repository: memory.NewAnalysisRepository()}
	repo, err := New(backing, 4)
	require.NoError(t, err)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 2, backing.gets)
}

func TestPutFailureLeavesCacheEmpty(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewAnalysisRepository()
	require.NoError(t, backing.Put(ctx, &domain.CombinedAnalysisResult{ID: "dup", Confidence: 0.1}))

	repo, err := New(backing, 4)
	require.NoError(t, err)

	err = repo.Put(ctx, &domain.CombinedAnalysisResult{ID: "dup", Confidence: 0.9})
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists))

	got, err := repo.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, 0.1, got.Confidence)
}

func TestListWarmsCache(t *testing.T) {
	ctx := context.Background()
	backing := &countingRepo{Repository: memory.NewAnalysisRepository()}
	for _, id := range []domain.AnalysisID{"a", "b", "c"} {
		require.NoError(t, backing.Put(ctx, &domain.CombinedAnalysisResult{ID: id}))
	}
	repo, err := New(backing, 2)
	require.NoError(t, err)

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, 2, repo.(*Repository).Len())
}

func TestZeroSizeDisablesCache(t *testing.T) {
	backing := memory.NewAnalysisRepository()
	repo, err := New(backing, 0)
	require.NoError(t, err)
	assert.Same(t, backing, repo)
}
