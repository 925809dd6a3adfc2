package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/domain/rating"
)

type RatingRepository struct {
	db *sqlx.DB
}

func NewRatingRepository(db *sqlx.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

var _ rating.Repository = (*RatingRepository)(nil)

func (r *RatingRepository) GetOrInit(ctx context.Context, serverID, playerID int64, role queue.Role) (rating.Rating, error) {
	var row struct {
		Mu    float64 `db:"mu"`
		Sigma float64 `db:"sigma"`
	}
	// The no-op update makes RETURNING yield the existing row on conflict.
	err := r.db.GetContext(ctx, &row,
		`INSERT INTO player_rating (server_id, player_id, role, mu, sigma)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (server_id, player_id, role)
		 DO UPDATE SET mu = player_rating.mu
		 RETURNING mu, sigma`,
		serverID, playerID, string(role), rating.DefaultMu, rating.DefaultSigma)
	if err != nil {
		return rating.Rating{}, fmt.Errorf("get or init rating: %w", err)
	}
	return rating.Rating{Mu: row.Mu, Sigma: row.Sigma}, nil
}

func (r *RatingRepository) Update(ctx context.Context, serverID, playerID int64, role queue.Role, rt rating.Rating) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO player_rating (server_id, player_id, role, mu, sigma)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (server_id, player_id, role)
		 DO UPDATE SET mu = EXCLUDED.mu, sigma = EXCLUDED.sigma`,
		serverID, playerID, string(role), rt.Mu, rt.Sigma)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return nil
}
