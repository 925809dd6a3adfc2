package queue

import "context"

// Repository exposes queue entry persistence. Bulk operations mirror the
// filtered updates/deletes the queue service composes its transitions from;
// a channel id of 0 means "all channels" where noted.
type Repository interface {
	// ListChannel returns the channel's entries ordered by QueuedAt ascending.
	ListChannel(ctx context.Context, channelID int64) ([]Entry, error)
	// ListPlayer returns every entry the player holds, across all channels.
	ListPlayer(ctx context.Context, playerID int64) ([]Entry, error)
	// ActiveReadyChecks maps each given player to the ready check currently
	// tagging one of their entries on the server, omitting untagged players.
	ActiveReadyChecks(ctx context.Context, serverID int64, playerIDs []int64) (map[int64]string, error)
	// ActiveChannels lists channels that have at least one queued entry.
	ActiveChannels(ctx context.Context) ([]int64, error)

	// Upsert inserts the entry or, if (ChannelID, PlayerID, Role) exists,
	// replaces it.
	Upsert(ctx context.Context, e Entry) error
	// DeletePlayer removes the player's entries in the channel (everywhere
	// when channelID is 0) and clears duo links pointing at the player.
	DeletePlayer(ctx context.Context, playerID, channelID int64) error
	// DeletePlayers removes the given players from the channel unconditionally.
	DeletePlayers(ctx context.Context, channelID int64, playerIDs []int64) error

	// TagReadyCheck stamps checkID on the players' entries in the channel.
	TagReadyCheck(ctx context.Context, channelID int64, playerIDs []int64, checkID string) error
	// ClearReadyCheck resets the tag to empty on every entry carrying it.
	ClearReadyCheck(ctx context.Context, checkID string) error
	// ClearAllReadyChecks resets every tag; used on startup recovery.
	ClearAllReadyChecks(ctx context.Context) error
	// DeleteByReadyCheck removes every entry of every player tagged with
	// checkID, across all channels, returning the affected player ids.
	DeleteByReadyCheck(ctx context.Context, checkID string) ([]int64, error)
	// DropPlayers deletes the players' entries and unlinks duos pointing at
	// them, scoped to a channel (channelID != 0) or to a whole server
	// (serverID != 0). Exactly one scope must be set.
	DropPlayers(ctx context.Context, playerIDs []int64, channelID, serverID int64) error

	// SetDuo writes the mutual duo link on both players' entries.
	SetDuo(ctx context.Context, channelID, playerID, partnerID int64) error
	// ClearDuo removes duo links where the player is either side, in the channel.
	ClearDuo(ctx context.Context, channelID, playerID int64) error

	// Reset deletes the channel's entries, or every entry when channelID is 0.
	Reset(ctx context.Context, channelID int64) error
}
