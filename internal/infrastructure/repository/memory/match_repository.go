package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
)

// MatchRepository keeps game records in process memory.
type MatchRepository struct {
	mu     sync.RWMutex
	nextID int64
	games  map[int64]match.Game
}

func NewMatchRepository() *MatchRepository {
	return &MatchRepository{nextID: 1, games: make(map[int64]match.Game)}
}

var _ match.Repository = (*MatchRepository)(nil)

func (r *MatchRepository) Create(_ context.Context, g match.Game) (match.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g.ID = r.nextID
	r.nextID++

	participants := make(map[match.Slot]match.Participant, len(g.Participants))
	for slot, p := range g.Participants {
		participants[slot] = p
	}
	g.Participants = participants

	r.games[g.ID] = g
	return g, nil
}

func (r *MatchRepository) LastByPlayer(_ context.Context, serverID, playerID int64) (match.Game, match.Participant, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found       bool
		latest      match.Game
		participant match.Participant
	)
	for _, g := range r.games {
		if g.ServerID != serverID {
			continue
		}
		p, plays := findParticipant(g, playerID)
		if !plays {
			continue
		}
		if !found || g.StartedAt.After(latest.StartedAt) || (g.StartedAt.Equal(latest.StartedAt) && g.ID > latest.ID) {
			found = true
			latest = g
			participant = p
		}
	}
	return latest, participant, found, nil
}

func (r *MatchRepository) SetWinner(_ context.Context, gameID int64, winner match.Side) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[gameID]
	if !ok {
		return fmt.Errorf("game %d not found", gameID)
	}
	g.Winner = winner
	r.games[gameID] = g
	return nil
}

func (r *MatchRepository) Delete(_ context.Context, gameID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.games[gameID]; !ok {
		return fmt.Errorf("game %d not found", gameID)
	}
	delete(r.games, gameID)
	return nil
}

func findParticipant(g match.Game, playerID int64) (match.Participant, bool) {
	for _, p := range g.Participants {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return match.Participant{}, false
}
