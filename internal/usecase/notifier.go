package usecase

import (
	"context"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
)

// ReadySignal is one player's answer to a posted prompt.
type ReadySignal struct {
	PlayerID int64
	Accept   bool
}

// Prompt is a posted confirmation message: its opaque id (the ready check id)
// and the stream of player answers the transport collects for it.
type Prompt struct {
	ID      string
	Signals <-chan ReadySignal
}

// Notifier is the transport boundary: it delivers prompts to players and
// reports their accept/reject answers back, keyed by the prompt id. The
// matchmaking core never talks to the chat platform directly.
type Notifier interface {
	// PostReadyCheck announces a proposed game to its ten players.
	PostReadyCheck(ctx context.Context, game *match.Proposed) (Prompt, error)
	// PostConfirmation asks candidateIDs to confirm an action (scoring or
	// cancelling a game).
	PostConfirmation(ctx context.Context, channelID int64, text string, candidateIDs []int64) (Prompt, error)
	// MarkAccepted reflects partial progress on the prompt, best effort.
	MarkAccepted(ctx context.Context, channelID int64, promptID string, acceptedIDs []int64)
	// Close finalizes the prompt with a resolution summary, best effort.
	Close(ctx context.Context, channelID int64, promptID, summary string)
}
