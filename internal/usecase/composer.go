package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/domain/rating"
	"github.com/inhouse-gg/queuebot/internal/platform/logging"
)

const (
	gameSize       = 10
	playersPerRole = 2

	// defaultQualityThreshold stops the widening search once a candidate is
	// within this distance of a coin-flip game.
	defaultQualityThreshold = 0.10
	// defaultPerfectEpsilon stops scanning a player set once a candidate is
	// essentially perfectly balanced.
	defaultPerfectEpsilon = 0.01
)

// Composer searches a queue snapshot for the most balanced ten-player game.
type Composer struct {
	ratings rating.Repository
	model   rating.Model
	logger  *logging.Logger

	qualityThreshold float64
	perfectEpsilon   float64

	// rng drives the per-candidate side flip that keeps seniority from
	// always landing on blue. *rand.Rand is not safe for concurrent use.
	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewComposer(ratings rating.Repository, model rating.Model, rng *rand.Rand, logger *logging.Logger) *Composer {
	return &Composer{
		ratings:          ratings,
		model:            model,
		logger:           logger,
		qualityThreshold: defaultQualityThreshold,
		perfectEpsilon:   defaultPerfectEpsilon,
		rng:              rng,
	}
}

type ratingKey struct {
	playerID int64
	role     queue.Role
}

// FindBestGame returns the most balanced composition the snapshot admits, or
// nil when no valid ten-player assignment exists. It first tries the seeded
// front of the snapshot, then widens one player at a time; a candidate under
// the quality threshold ends the widening early, otherwise the lowest-scoring
// candidate across all widths wins.
func (c *Composer) FindBestGame(ctx context.Context, snap *queue.Snapshot) (*match.Proposed, error) {
	if snap == nil || snap.Len() < gameSize {
		return nil, nil
	}
	for role, entries := range snap.ByRole() {
		if len(entries) < playersPerRole {
			c.logger.DebugContext(ctx, "not enough players for role",
				"channel_id", snap.ChannelID, "role", string(role), "queued", len(entries))
			return nil, nil
		}
	}

	ratings, err := c.loadRatings(ctx, snap)
	if err != nil {
		return nil, err
	}

	var best *match.Proposed
	for width := gameSize; width <= snap.Len(); width++ {
		candidate := c.bestAmong(snap, snap.Entries[:width], ratings)
		if candidate == nil {
			continue
		}
		if best == nil || candidate.Score() < best.Score() {
			best = candidate
		}
		if best.Score() < c.qualityThreshold {
			break
		}
	}

	if best != nil {
		c.logger.DebugContext(ctx, "composed game",
			"channel_id", snap.ChannelID,
			"blue_win_probability", best.BlueWinProbability,
			"score", best.Score(),
		)
	}
	return best, nil
}

func (c *Composer) loadRatings(ctx context.Context, snap *queue.Snapshot) (map[ratingKey]rating.Rating, error) {
	out := make(map[ratingKey]rating.Rating, snap.Len())
	for _, e := range snap.Entries {
		key := ratingKey{playerID: e.PlayerID, role: e.Role}
		if _, ok := out[key]; ok {
			continue
		}
		r, err := c.ratings.GetOrInit(ctx, snap.ServerID, e.PlayerID, e.Role)
		if err != nil {
			return nil, fmt.Errorf("load rating for player %d role %s: %w", e.PlayerID, e.Role, err)
		}
		out[key] = r
	}
	return out, nil
}

// bestAmong scans every assignment of the given entries: per role, every
// ordered pair of distinct entries, combined across the five roles. Each
// candidate's sides are flipped on a coin toss before scoring. Candidates
// that reuse a player or split a duo across sides are skipped. Returns nil
// when the entries cannot field two players for some role.
func (c *Composer) bestAmong(snap *queue.Snapshot, entries []queue.Entry, ratings map[ratingKey]rating.Rating) *match.Proposed {
	roles := queue.Roles()

	pairs := make([][][2]queue.Entry, len(roles))
	for i, role := range roles {
		var pool []queue.Entry
		for _, e := range entries {
			if e.Role == role {
				pool = append(pool, e)
			}
		}
		for a := range pool {
			for b := range pool {
				if a == b || pool[a].PlayerID == pool[b].PlayerID {
					continue
				}
				pairs[i] = append(pairs[i], [2]queue.Entry{pool[a], pool[b]})
			}
		}
		if len(pairs[i]) == 0 {
			return nil
		}
	}

	var (
		best      map[match.Slot]queue.Entry
		bestProb  float64
		bestScore float64
	)

	// Odometer over one pair index per role.
	idx := make([]int, len(roles))
	for {
		assignment := make(map[match.Slot]queue.Entry, gameSize)
		first, second := match.SideBlue, match.SideRed
		if c.coinFlip() {
			first, second = second, first
		}
		for i, role := range roles {
			pair := pairs[i][idx[i]]
			assignment[match.Slot{Side: first, Role: role}] = pair[0]
			assignment[match.Slot{Side: second, Role: role}] = pair[1]
		}

		if validAssignment(assignment) {
			prob := c.blueWinProbability(assignment, ratings)
			score := absHalfDeviation(prob)
			if best == nil || score < bestScore {
				best = assignment
				bestProb = prob
				bestScore = score
				if bestScore < c.perfectEpsilon {
					break
				}
			}
		}

		done := true
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(pairs[i]) {
				done = false
				break
			}
			idx[i] = 0
		}
		if done {
			break
		}
	}

	if best == nil {
		return nil
	}

	proposed := &match.Proposed{
		ChannelID:          snap.ChannelID,
		ServerID:           snap.ServerID,
		Participants:       make(map[match.Slot]match.Participant, gameSize),
		BlueWinProbability: bestProb,
	}
	for slot, e := range best {
		r := ratings[ratingKey{playerID: e.PlayerID, role: e.Role}]
		proposed.Participants[slot] = match.Participant{
			PlayerID: e.PlayerID,
			Name:     e.Name,
			Side:     slot.Side,
			Role:     slot.Role,
			Mu:       r.Mu,
			Sigma:    r.Sigma,
		}
	}
	return proposed
}

// validAssignment requires ten distinct players and every queued duo whole:
// a duo member only plays alongside their partner, on the same side.
func validAssignment(assignment map[match.Slot]queue.Entry) bool {
	sides := make(map[int64]match.Side, gameSize)
	for slot, e := range assignment {
		if _, dup := sides[e.PlayerID]; dup {
			return false
		}
		sides[e.PlayerID] = slot.Side
	}
	for slot, e := range assignment {
		if e.DuoID == 0 {
			continue
		}
		partnerSide, present := sides[e.DuoID]
		if !present || partnerSide != slot.Side {
			return false
		}
	}
	return true
}

func (c *Composer) blueWinProbability(assignment map[match.Slot]queue.Entry, ratings map[ratingKey]rating.Rating) float64 {
	team := func(side match.Side) []rating.Rating {
		out := make([]rating.Rating, 0, len(queue.Roles()))
		for _, role := range queue.Roles() {
			e := assignment[match.Slot{Side: side, Role: role}]
			out = append(out, ratings[ratingKey{playerID: e.PlayerID, role: e.Role}])
		}
		return out
	}
	return c.model.ExpectedOutcome(team(match.SideBlue), team(match.SideRed))
}

func (c *Composer) coinFlip() bool {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.Intn(2) == 1
}

func absHalfDeviation(p float64) float64 {
	if p < 0.5 {
		return 0.5 - p
	}
	return p - 0.5
}
