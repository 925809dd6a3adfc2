package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
)

type MatchRepository struct {
	db *sqlx.DB
}

func NewMatchRepository(db *sqlx.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

var _ match.Repository = (*MatchRepository)(nil)

func (r *MatchRepository) Create(ctx context.Context, g match.Game) (match.Game, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return match.Game{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.GetContext(ctx, &id,
		`INSERT INTO game (started_at, server_id, blue_win_probability)
		 VALUES ($1, $2, $3) RETURNING id`,
		g.StartedAt, g.ServerID, g.BlueWinProbability); err != nil {
		return match.Game{}, fmt.Errorf("insert game: %w", err)
	}

	for slot, p := range g.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO game_participant (game_id, player_id, player_name, side, role, mu, sigma)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, p.PlayerID, p.Name, string(slot.Side), string(slot.Role), p.Mu, p.Sigma); err != nil {
			return match.Game{}, fmt.Errorf("insert participant %d: %w", p.PlayerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return match.Game{}, fmt.Errorf("commit tx: %w", err)
	}

	g.ID = id
	return g, nil
}

func (r *MatchRepository) LastByPlayer(ctx context.Context, serverID, playerID int64) (match.Game, match.Participant, bool, error) {
	var row gameTableModel
	err := r.db.GetContext(ctx, &row,
		`SELECT g.id, g.started_at, g.server_id, g.blue_win_probability, g.winner
		 FROM game g
		 JOIN game_participant p ON p.game_id = g.id
		 WHERE g.server_id = $1 AND p.player_id = $2
		 ORDER BY g.started_at DESC, g.id DESC
		 LIMIT 1`,
		serverID, playerID)
	if err != nil {
		if isNotFound(err) {
			return match.Game{}, match.Participant{}, false, nil
		}
		return match.Game{}, match.Participant{}, false, fmt.Errorf("get last game: %w", err)
	}

	var participantRows []gameParticipantTableModel
	if err := r.db.SelectContext(ctx, &participantRows,
		`SELECT game_id, player_id, player_name, side, role, mu, sigma
		 FROM game_participant WHERE game_id = $1`,
		row.ID); err != nil {
		return match.Game{}, match.Participant{}, false, fmt.Errorf("list participants: %w", err)
	}

	g := gameFromRows(row, participantRows)
	for _, p := range g.Participants {
		if p.PlayerID == playerID {
			return g, p, true, nil
		}
	}
	return match.Game{}, match.Participant{}, false, fmt.Errorf("game %d has no participant %d", g.ID, playerID)
}

func (r *MatchRepository) SetWinner(ctx context.Context, gameID int64, winner match.Side) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE game SET winner = $2 WHERE id = $1`, gameID, string(winner))
	if err != nil {
		return fmt.Errorf("set winner: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set winner: game %d not found", gameID)
	}
	return nil
}

func (r *MatchRepository) Delete(ctx context.Context, gameID int64) error {
	// game_participant rows go with it via ON DELETE CASCADE.
	_, err := r.db.ExecContext(ctx, `DELETE FROM game WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}
