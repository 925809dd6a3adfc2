package postgres

import (
	"time"

	"github.com/inhouse-gg/queuebot/internal/domain/queue"
)

type queuePlayerTableModel struct {
	ChannelID    int64     `db:"channel_id"`
	PlayerID     int64     `db:"player_id"`
	ServerID     int64     `db:"server_id"`
	Role         string    `db:"role"`
	PlayerName   string    `db:"player_name"`
	DuoID        int64     `db:"duo_id"`
	QueuedAt     time.Time `db:"queued_at"`
	ReadyCheckID string    `db:"ready_check_id"`
}

func queueEntryFromRow(row queuePlayerTableModel) queue.Entry {
	return queue.Entry{
		ChannelID:    row.ChannelID,
		PlayerID:     row.PlayerID,
		ServerID:     row.ServerID,
		Role:         queue.Role(row.Role),
		Name:         row.PlayerName,
		DuoID:        row.DuoID,
		QueuedAt:     row.QueuedAt,
		ReadyCheckID: row.ReadyCheckID,
	}
}
