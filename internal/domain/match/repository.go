package match

import "context"

// Repository persists game records and their participant rows.
type Repository interface {
	// Create stores the game and its ten participants, assigning the id.
	Create(ctx context.Context, g Game) (Game, error)
	// LastByPlayer returns the most recent game the player took part in on
	// the server, along with their participant row.
	LastByPlayer(ctx context.Context, serverID, playerID int64) (Game, Participant, bool, error)
	// SetWinner records the game's result.
	SetWinner(ctx context.Context, gameID int64, winner Side) error
	// Delete voids the game and its participants.
	Delete(ctx context.Context, gameID int64) error
}
