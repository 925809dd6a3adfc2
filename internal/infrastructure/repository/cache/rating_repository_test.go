package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/domain/rating"
	"github.com/inhouse-gg/queuebot/internal/platform/cache"
)

type countingRatings struct {
	gets    int
	updates int
	stored  rating.Rating
}

func (c *countingRatings) GetOrInit(context.Context, int64, int64, queue.Role) (rating.Rating, error) {
	c.gets++
	return c.stored, nil
}

func (c *countingRatings) Update(_ context.Context, _, _ int64, _ queue.Role, r rating.Rating) error {
	c.updates++
	c.stored = r
	return nil
}

func TestRatingRepository_CachesReads(t *testing.T) {
	t.Parallel()

	inner := &countingRatings{stored: rating.Default()}
	repo := NewRatingRepository(inner, cache.NewStore(time.Minute))
	ctx := context.Background()

	first, err := repo.GetOrInit(ctx, 100, 1, queue.RoleMid)
	require.NoError(t, err)
	second, err := repo.GetOrInit(ctx, 100, 1, queue.RoleMid)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, inner.gets, "second read must come from cache")
}

func TestRatingRepository_UpdateWritesThrough(t *testing.T) {
	t.Parallel()

	inner := &countingRatings{stored: rating.Default()}
	repo := NewRatingRepository(inner, cache.NewStore(time.Minute))
	ctx := context.Background()

	_, err := repo.GetOrInit(ctx, 100, 1, queue.RoleMid)
	require.NoError(t, err)

	updated := rating.Rating{Mu: 27.5, Sigma: 7.9}
	require.NoError(t, repo.Update(ctx, 100, 1, queue.RoleMid, updated))
	require.Equal(t, 1, inner.updates)

	got, err := repo.GetOrInit(ctx, 100, 1, queue.RoleMid)
	require.NoError(t, err)
	require.Equal(t, updated, got, "reads after update must see the new rating")
	require.Equal(t, 1, inner.gets, "update must refresh the cache, not invalidate it")
}

func TestRatingRepository_DistinctRolesDistinctKeys(t *testing.T) {
	t.Parallel()

	inner := &countingRatings{stored: rating.Default()}
	repo := NewRatingRepository(inner, cache.NewStore(time.Minute))
	ctx := context.Background()

	_, err := repo.GetOrInit(ctx, 100, 1, queue.RoleMid)
	require.NoError(t, err)
	_, err = repo.GetOrInit(ctx, 100, 1, queue.RoleTop)
	require.NoError(t, err)

	require.Equal(t, 2, inner.gets, "each role has its own cache entry")
}
