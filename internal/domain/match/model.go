package match

import (
	"math"
	"time"

	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/domain/rating"
)

// Side is one of the two teams.
type Side string

const (
	SideBlue Side = "BLUE"
	SideRed  Side = "RED"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideBlue {
		return SideRed
	}
	return SideBlue
}

// Slot identifies one of the ten positions of a game.
type Slot struct {
	Side Side
	Role queue.Role
}

// Participant snapshots a player in one slot, with the rating parameters
// frozen at game-creation time so later rating changes never rewrite history.
type Participant struct {
	PlayerID int64
	Name     string
	Side     Side
	Role     queue.Role
	Mu       float64
	Sigma    float64
}

// Rating returns the participant's frozen pre-game rating.
func (p Participant) Rating() rating.Rating {
	return rating.Rating{Mu: p.Mu, Sigma: p.Sigma}
}

// Proposed is a fully assigned ten-player composition produced by the
// composer. It becomes a persisted Game only after the ready check validates.
type Proposed struct {
	ChannelID          int64
	ServerID           int64
	Participants       map[Slot]Participant
	BlueWinProbability float64
}

// Score is the matchmaking score: the predicted win probability's absolute
// deviation from an even game. 0 is perfectly balanced, 0.5 maximally lopsided.
func (p *Proposed) Score() float64 {
	return math.Abs(0.5 - p.BlueWinProbability)
}

// Team returns the side's participants in canonical role order.
func (p *Proposed) Team(side Side) []Participant {
	out := make([]Participant, 0, len(queue.Roles()))
	for _, role := range queue.Roles() {
		out = append(out, p.Participants[Slot{Side: side, Role: role}])
	}
	return out
}

// PlayerIDs lists all ten players, blue side first, in role order.
func (p *Proposed) PlayerIDs() []int64 {
	ids := make([]int64, 0, len(p.Participants))
	for _, side := range []Side{SideBlue, SideRed} {
		for _, participant := range p.Team(side) {
			ids = append(ids, participant.PlayerID)
		}
	}
	return ids
}

// Game is a persisted match record.
type Game struct {
	ID                 int64
	StartedAt          time.Time
	ServerID           int64
	BlueWinProbability float64
	// Winner stays empty until the game is scored.
	Winner       Side
	Participants map[Slot]Participant
}

// Scored reports whether a winner has been recorded.
func (g Game) Scored() bool {
	return g.Winner != ""
}

// Team returns the side's participants in canonical role order.
func (g Game) Team(side Side) []Participant {
	out := make([]Participant, 0, len(queue.Roles()))
	for _, role := range queue.Roles() {
		out = append(out, g.Participants[Slot{Side: side, Role: role}])
	}
	return out
}

// PlayerIDs lists all participants' player ids, blue side first.
func (g Game) PlayerIDs() []int64 {
	ids := make([]int64, 0, len(g.Participants))
	for _, side := range []Side{SideBlue, SideRed} {
		for _, participant := range g.Team(side) {
			ids = append(ids, participant.PlayerID)
		}
	}
	return ids
}
