package usecase

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/domain/rating"
	"github.com/inhouse-gg/queuebot/internal/infrastructure/repository/memory"
	"github.com/inhouse-gg/queuebot/internal/platform/logging"
	"github.com/inhouse-gg/queuebot/internal/platform/skill"
)

func newComposer(t *testing.T) (*Composer, *memory.RatingRepository) {
	t.Helper()
	ratings := memory.NewRatingRepository()
	rng := rand.New(rand.NewSource(42))
	return NewComposer(ratings, skill.NewModel(), rng, logging.NewNop()), ratings
}

func composerSnapshot(extra ...queue.Entry) *queue.Snapshot {
	var entries []queue.Entry
	seq := 0
	var id int64 = 1
	for _, role := range queue.Roles() {
		for i := 0; i < 2; i++ {
			entries = append(entries, queue.Entry{
				ChannelID: testChannel,
				PlayerID:  id,
				ServerID:  testServer,
				Role:      role,
				Name:      "player",
				QueuedAt:  time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
			})
			id++
			seq++
		}
	}
	return queue.NewSnapshot(testChannel, append(entries, extra...))
}

func TestComposer_NotEnoughPlayersPerRole(t *testing.T) {
	t.Parallel()

	c, _ := newComposer(t)

	snap := composerSnapshot()
	// Drop one support entry so SUP only has one candidate.
	snap.Entries = snap.Entries[:len(snap.Entries)-1]

	game, err := c.FindBestGame(context.Background(), snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if game != nil {
		t.Fatalf("expected no game with a starved role, got %+v", game)
	}
}

func TestComposer_EqualRatingsProduceEvenGame(t *testing.T) {
	t.Parallel()

	c, _ := newComposer(t)

	game, err := c.FindBestGame(context.Background(), composerSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if game == nil {
		t.Fatal("expected a game from a full queue")
	}
	if len(game.Participants) != 10 {
		t.Fatalf("expected 10 participants, got %d", len(game.Participants))
	}
	if game.Score() > 1e-9 {
		t.Fatalf("equal ratings should make a perfectly even game, score %f", game.Score())
	}

	seen := make(map[int64]bool)
	for _, p := range game.Participants {
		if seen[p.PlayerID] {
			t.Fatalf("player %d assigned twice", p.PlayerID)
		}
		seen[p.PlayerID] = true
	}
}

func TestComposer_SplitsStrongPlayersAcrossSides(t *testing.T) {
	t.Parallel()

	c, ratings := newComposer(t)
	ctx := context.Background()

	// Players 1 (TOP) and 5 (MID) are far above the rest; the only even
	// composition puts them on opposite sides.
	strong := rating.Rating{Mu: 40, Sigma: 2}
	if err := ratings.Update(ctx, testServer, 1, queue.RoleTop, strong); err != nil {
		t.Fatalf("seed rating: %v", err)
	}
	if err := ratings.Update(ctx, testServer, 5, queue.RoleMid, strong); err != nil {
		t.Fatalf("seed rating: %v", err)
	}

	game, err := c.FindBestGame(ctx, composerSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if game == nil {
		t.Fatal("expected a game")
	}

	var topSide, midSide match.Side
	for slot, p := range game.Participants {
		if p.PlayerID == 1 {
			topSide = slot.Side
		}
		if p.PlayerID == 5 {
			midSide = slot.Side
		}
	}
	if topSide == midSide {
		t.Fatalf("strong players should split across sides, both on %s (score %f)", topSide, game.Score())
	}
}

func TestComposer_KeepsDuoOnSameSide(t *testing.T) {
	t.Parallel()

	c, _ := newComposer(t)

	snap := composerSnapshot()
	// Link player 1 (TOP) with player 9 (SUP).
	for i := range snap.Entries {
		switch snap.Entries[i].PlayerID {
		case 1:
			snap.Entries[i].DuoID = 9
		case 9:
			snap.Entries[i].DuoID = 1
		}
	}

	game, err := c.FindBestGame(context.Background(), snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if game == nil {
		t.Fatal("expected a game")
	}

	var first, second match.Side
	for slot, p := range game.Participants {
		if p.PlayerID == 1 {
			first = slot.Side
		}
		if p.PlayerID == 9 {
			second = slot.Side
		}
	}
	if first == "" || second == "" {
		t.Fatal("both duo members must play")
	}
	if first != second {
		t.Fatalf("duo split across sides: %s vs %s", first, second)
	}
}

func TestComposer_WidensPastTheSeed(t *testing.T) {
	t.Parallel()

	c, _ := newComposer(t)

	// The seeded front ten holds three TOPs and one SUP, which cannot
	// field a game; the eleventh entry is the second SUP.
	entries := []queue.Entry{}
	seq := 0
	add := func(playerID int64, role queue.Role) {
		entries = append(entries, queue.Entry{
			ChannelID: testChannel,
			PlayerID:  playerID,
			ServerID:  testServer,
			Role:      role,
			Name:      "player",
			QueuedAt:  time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
		})
		seq++
	}
	add(1, queue.RoleTop)
	add(2, queue.RoleTop)
	add(3, queue.RoleTop)
	add(4, queue.RoleJungle)
	add(5, queue.RoleJungle)
	add(6, queue.RoleMid)
	add(7, queue.RoleMid)
	add(8, queue.RoleBot)
	add(9, queue.RoleBot)
	add(10, queue.RoleSupport)
	add(11, queue.RoleSupport)
	snap := &queue.Snapshot{ChannelID: testChannel, ServerID: testServer, Entries: entries}

	game, err := c.FindBestGame(context.Background(), snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if game == nil {
		t.Fatal("expected the search to widen to the eleventh entry")
	}
	playing := make(map[int64]bool)
	for _, p := range game.Participants {
		playing[p.PlayerID] = true
	}
	if !playing[10] || !playing[11] {
		t.Fatalf("both supports must play, got %v", playing)
	}
}
