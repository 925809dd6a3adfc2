package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/inhouse-gg/queuebot/internal/domain/queue"
)

const queuePlayerColumns = `channel_id, player_id, server_id, role, player_name, duo_id, queued_at, ready_check_id`

type QueueRepository struct {
	db *sqlx.DB
}

func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

var _ queue.Repository = (*QueueRepository)(nil)

func (r *QueueRepository) ListChannel(ctx context.Context, channelID int64) ([]queue.Entry, error) {
	var rows []queuePlayerTableModel
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+queuePlayerColumns+` FROM queue_player WHERE channel_id = $1 ORDER BY queued_at, player_id`,
		channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel queue: %w", err)
	}
	return queueEntriesFromRows(rows), nil
}

func (r *QueueRepository) ListPlayer(ctx context.Context, playerID int64) ([]queue.Entry, error) {
	var rows []queuePlayerTableModel
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+queuePlayerColumns+` FROM queue_player WHERE player_id = $1 ORDER BY queued_at, channel_id`,
		playerID)
	if err != nil {
		return nil, fmt.Errorf("list player queue entries: %w", err)
	}
	return queueEntriesFromRows(rows), nil
}

func (r *QueueRepository) ActiveReadyChecks(ctx context.Context, serverID int64, playerIDs []int64) (map[int64]string, error) {
	if len(playerIDs) == 0 {
		return map[int64]string{}, nil
	}

	var rows []struct {
		PlayerID     int64  `db:"player_id"`
		ReadyCheckID string `db:"ready_check_id"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT DISTINCT player_id, ready_check_id FROM queue_player
		 WHERE server_id = $1 AND ready_check_id <> '' AND player_id = ANY($2)`,
		serverID, pq.Int64Array(playerIDs))
	if err != nil {
		return nil, fmt.Errorf("list active ready checks: %w", err)
	}

	out := make(map[int64]string, len(rows))
	for _, row := range rows {
		out[row.PlayerID] = row.ReadyCheckID
	}
	return out, nil
}

func (r *QueueRepository) ActiveChannels(ctx context.Context) ([]int64, error) {
	var channels []int64
	err := r.db.SelectContext(ctx, &channels,
		`SELECT DISTINCT channel_id FROM queue_player ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("list active channels: %w", err)
	}
	return channels, nil
}

func (r *QueueRepository) Upsert(ctx context.Context, e queue.Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO queue_player (`+queuePlayerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (channel_id, player_id, role)
		 DO UPDATE SET server_id = EXCLUDED.server_id,
		               player_name = EXCLUDED.player_name,
		               duo_id = EXCLUDED.duo_id,
		               queued_at = EXCLUDED.queued_at,
		               ready_check_id = EXCLUDED.ready_check_id`,
		e.ChannelID, e.PlayerID, e.ServerID, string(e.Role), e.Name, e.DuoID, e.QueuedAt, e.ReadyCheckID)
	if err != nil {
		return fmt.Errorf("upsert queue entry: %w", err)
	}
	return nil
}

func (r *QueueRepository) DeletePlayer(ctx context.Context, playerID, channelID int64) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM queue_player WHERE player_id = $1 AND ($2 = 0 OR channel_id = $2)`,
			playerID, channelID); err != nil {
			return fmt.Errorf("delete player entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE queue_player SET duo_id = 0 WHERE duo_id = $1 AND ($2 = 0 OR channel_id = $2)`,
			playerID, channelID); err != nil {
			return fmt.Errorf("unlink duos: %w", err)
		}
		return nil
	})
}

func (r *QueueRepository) DeletePlayers(ctx context.Context, channelID int64, playerIDs []int64) error {
	if len(playerIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM queue_player WHERE channel_id = $1 AND player_id = ANY($2)`,
		channelID, pq.Int64Array(playerIDs))
	if err != nil {
		return fmt.Errorf("delete players: %w", err)
	}
	return nil
}

func (r *QueueRepository) TagReadyCheck(ctx context.Context, channelID int64, playerIDs []int64, checkID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE queue_player SET ready_check_id = $3 WHERE channel_id = $1 AND player_id = ANY($2)`,
		channelID, pq.Int64Array(playerIDs), checkID)
	if err != nil {
		return fmt.Errorf("tag ready check: %w", err)
	}
	return nil
}

func (r *QueueRepository) ClearReadyCheck(ctx context.Context, checkID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE queue_player SET ready_check_id = '' WHERE ready_check_id = $1`, checkID)
	if err != nil {
		return fmt.Errorf("clear ready check: %w", err)
	}
	return nil
}

func (r *QueueRepository) ClearAllReadyChecks(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE queue_player SET ready_check_id = '' WHERE ready_check_id <> ''`)
	if err != nil {
		return fmt.Errorf("clear all ready checks: %w", err)
	}
	return nil
}

func (r *QueueRepository) DeleteByReadyCheck(ctx context.Context, checkID string) ([]int64, error) {
	var affected []int64
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &affected,
			`SELECT DISTINCT player_id FROM queue_player WHERE ready_check_id = $1 ORDER BY player_id`,
			checkID); err != nil {
			return fmt.Errorf("list ready check players: %w", err)
		}
		if len(affected) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM queue_player WHERE player_id = ANY($1)`,
			pq.Int64Array(affected)); err != nil {
			return fmt.Errorf("delete ready check players: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE queue_player SET duo_id = 0 WHERE duo_id = ANY($1)`,
			pq.Int64Array(affected)); err != nil {
			return fmt.Errorf("unlink duos: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

func (r *QueueRepository) DropPlayers(ctx context.Context, playerIDs []int64, channelID, serverID int64) error {
	if len(playerIDs) == 0 {
		return nil
	}

	scope := `channel_id = $2`
	scopeID := channelID
	if channelID == 0 {
		scope = `server_id = $2`
		scopeID = serverID
	}

	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM queue_player WHERE player_id = ANY($1) AND `+scope,
			pq.Int64Array(playerIDs), scopeID); err != nil {
			return fmt.Errorf("drop players: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE queue_player SET duo_id = 0 WHERE duo_id = ANY($1) AND `+scope,
			pq.Int64Array(playerIDs), scopeID); err != nil {
			return fmt.Errorf("unlink duos: %w", err)
		}
		return nil
	})
}

func (r *QueueRepository) SetDuo(ctx context.Context, channelID, playerID, partnerID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE queue_player
		 SET duo_id = CASE player_id WHEN $2 THEN $3::bigint ELSE $2::bigint END
		 WHERE channel_id = $1 AND player_id IN ($2, $3)`,
		channelID, playerID, partnerID)
	if err != nil {
		return fmt.Errorf("set duo link: %w", err)
	}
	return nil
}

func (r *QueueRepository) ClearDuo(ctx context.Context, channelID, playerID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE queue_player SET duo_id = 0 WHERE channel_id = $1 AND (player_id = $2 OR duo_id = $2)`,
		channelID, playerID)
	if err != nil {
		return fmt.Errorf("clear duo link: %w", err)
	}
	return nil
}

func (r *QueueRepository) Reset(ctx context.Context, channelID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM queue_player WHERE $1 = 0 OR channel_id = $1`, channelID)
	if err != nil {
		return fmt.Errorf("reset queue: %w", err)
	}
	return nil
}

func (r *QueueRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func queueEntriesFromRows(rows []queuePlayerTableModel) []queue.Entry {
	out := make([]queue.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, queueEntryFromRow(row))
	}
	return out
}
