package postgres

import (
	"database/sql"
	"time"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
	"github.com/inhouse-gg/queuebot/internal/domain/queue"
)

type gameTableModel struct {
	ID                 int64          `db:"id"`
	StartedAt          time.Time      `db:"started_at"`
	ServerID           int64          `db:"server_id"`
	BlueWinProbability float64        `db:"blue_win_probability"`
	Winner             sql.NullString `db:"winner"`
}

type gameParticipantTableModel struct {
	GameID     int64   `db:"game_id"`
	PlayerID   int64   `db:"player_id"`
	PlayerName string  `db:"player_name"`
	Side       string  `db:"side"`
	Role       string  `db:"role"`
	Mu         float64 `db:"mu"`
	Sigma      float64 `db:"sigma"`
}

func gameFromRows(row gameTableModel, participantRows []gameParticipantTableModel) match.Game {
	g := match.Game{
		ID:                 row.ID,
		StartedAt:          row.StartedAt,
		ServerID:           row.ServerID,
		BlueWinProbability: row.BlueWinProbability,
		Participants:       make(map[match.Slot]match.Participant, len(participantRows)),
	}
	if row.Winner.Valid {
		g.Winner = match.Side(row.Winner.String)
	}
	for _, p := range participantRows {
		slot := match.Slot{Side: match.Side(p.Side), Role: queue.Role(p.Role)}
		g.Participants[slot] = match.Participant{
			PlayerID: p.PlayerID,
			Name:     p.PlayerName,
			Side:     slot.Side,
			Role:     slot.Role,
			Mu:       p.Mu,
			Sigma:    p.Sigma,
		}
	}
	return g
}
