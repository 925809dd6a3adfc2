package rating

import (
	"context"

	"github.com/inhouse-gg/queuebot/internal/domain/queue"
)

const (
	// DefaultMu and DefaultSigma seed a player's first rating in a role.
	DefaultMu    = 25.0
	DefaultSigma = 25.0 / 3.0
)

// Rating holds the two Gaussian skill parameters tracked per player per role.
type Rating struct {
	Mu    float64
	Sigma float64
}

// Default returns the rating assigned on a player's first appearance in a role.
func Default() Rating {
	return Rating{Mu: DefaultMu, Sigma: DefaultSigma}
}

// Model estimates outcomes and updates ratings after a result. The matchmaker
// only relies on ExpectedOutcome; the concrete skill formulas are pluggable.
type Model interface {
	// ExpectedOutcome returns the probability, in [0, 1], that sideA beats sideB.
	ExpectedOutcome(sideA, sideB []Rating) float64
	// Rate returns the post-game ratings for the winning and losing side,
	// in the same order the inputs were given.
	Rate(winners, losers []Rating) ([]Rating, []Rating)
}

// Repository persists per-role ratings.
type Repository interface {
	// GetOrInit returns the player's rating for the role, creating the
	// default rating row on first appearance.
	GetOrInit(ctx context.Context, serverID, playerID int64, role queue.Role) (Rating, error)
	// Update overwrites the player's rating for the role.
	Update(ctx context.Context, serverID, playerID int64, role queue.Role, r Rating) error
}
