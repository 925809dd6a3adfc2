package cache

import (
	"context"
	"fmt"

	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/domain/rating"
	"github.com/inhouse-gg/queuebot/internal/platform/cache"
)

// RatingRepository decorates a rating store with a TTL cache. Reads during
// matchmaking hit every queued player's rating repeatedly as the search
// widens; ratings only change when a game is scored, so they cache well.
type RatingRepository struct {
	inner rating.Repository
	store *cache.Store
}

func NewRatingRepository(inner rating.Repository, store *cache.Store) *RatingRepository {
	return &RatingRepository{inner: inner, store: store}
}

var _ rating.Repository = (*RatingRepository)(nil)

func (r *RatingRepository) GetOrInit(ctx context.Context, serverID, playerID int64, role queue.Role) (rating.Rating, error) {
	value, err := r.store.GetOrLoad(ctx, ratingCacheKey(serverID, playerID, role), func(ctx context.Context) (any, error) {
		return r.inner.GetOrInit(ctx, serverID, playerID, role)
	})
	if err != nil {
		return rating.Rating{}, err
	}
	cached, ok := value.(rating.Rating)
	if !ok {
		return rating.Rating{}, fmt.Errorf("unexpected cached rating type %T", value)
	}
	return cached, nil
}

func (r *RatingRepository) Update(ctx context.Context, serverID, playerID int64, role queue.Role, rt rating.Rating) error {
	if err := r.inner.Update(ctx, serverID, playerID, role, rt); err != nil {
		// Stale cache after a failed write is worse than a miss.
		r.store.Delete(ctx, ratingCacheKey(serverID, playerID, role))
		return err
	}
	r.store.Set(ctx, ratingCacheKey(serverID, playerID, role), rt)
	return nil
}

func ratingCacheKey(serverID, playerID int64, role queue.Role) string {
	return fmt.Sprintf("rating:%d:%d:%s", serverID, playerID, role)
}
