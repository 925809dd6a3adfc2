package memory

import (
	"context"
	"sync"

	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/domain/rating"
)

type ratingKey struct {
	serverID int64
	playerID int64
	role     queue.Role
}

// RatingRepository keeps per-role ratings in process memory.
type RatingRepository struct {
	mu      sync.RWMutex
	ratings map[ratingKey]rating.Rating
}

func NewRatingRepository() *RatingRepository {
	return &RatingRepository{ratings: make(map[ratingKey]rating.Rating)}
}

var _ rating.Repository = (*RatingRepository)(nil)

func (r *RatingRepository) GetOrInit(_ context.Context, serverID, playerID int64, role queue.Role) (rating.Rating, error) {
	key := ratingKey{serverID: serverID, playerID: playerID, role: role}

	r.mu.RLock()
	existing, ok := r.ratings[key]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.ratings[key]; ok {
		return existing, nil
	}
	fresh := rating.Default()
	r.ratings[key] = fresh
	return fresh, nil
}

func (r *RatingRepository) Update(_ context.Context, serverID, playerID int64, role queue.Role, rt rating.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ratings[ratingKey{serverID: serverID, playerID: playerID, role: role}] = rt
	return nil
}
