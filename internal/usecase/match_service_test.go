package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/domain/rating"
	"github.com/inhouse-gg/queuebot/internal/infrastructure/repository/memory"
	"github.com/inhouse-gg/queuebot/internal/platform/id"
	"github.com/inhouse-gg/queuebot/internal/platform/logging"
	"github.com/inhouse-gg/queuebot/internal/platform/skill"
)

// scriptedNotifier resolves every prompt with the answers its script
// computes from the candidate list.
type scriptedNotifier struct {
	gen    id.Generator
	script func(candidateIDs []int64) []ReadySignal

	mu         sync.Mutex
	readyGames []*match.Proposed
	closed     []string
	accepted   [][]int64
}

func newScriptedNotifier(script func(candidateIDs []int64) []ReadySignal) *scriptedNotifier {
	return &scriptedNotifier{gen: id.NewRandomGenerator(), script: script}
}

func acceptAll(candidateIDs []int64) []ReadySignal {
	out := make([]ReadySignal, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		out = append(out, ReadySignal{PlayerID: id, Accept: true})
	}
	return out
}

func (n *scriptedNotifier) post(candidateIDs []int64) (Prompt, error) {
	checkID, err := n.gen.NewID()
	if err != nil {
		return Prompt{}, err
	}
	answers := n.script(candidateIDs)
	ch := make(chan ReadySignal, len(answers))
	for _, sig := range answers {
		ch <- sig
	}
	return Prompt{ID: checkID, Signals: ch}, nil
}

func (n *scriptedNotifier) PostReadyCheck(_ context.Context, game *match.Proposed) (Prompt, error) {
	n.mu.Lock()
	n.readyGames = append(n.readyGames, game)
	n.mu.Unlock()
	return n.post(game.PlayerIDs())
}

func (n *scriptedNotifier) PostConfirmation(_ context.Context, _ int64, _ string, candidateIDs []int64) (Prompt, error) {
	return n.post(candidateIDs)
}

func (n *scriptedNotifier) MarkAccepted(_ context.Context, _ int64, _ string, acceptedIDs []int64) {
	n.mu.Lock()
	n.accepted = append(n.accepted, acceptedIDs)
	n.mu.Unlock()
}

func (n *scriptedNotifier) Close(_ context.Context, _ int64, _ string, summary string) {
	n.mu.Lock()
	n.closed = append(n.closed, summary)
	n.mu.Unlock()
}

func committedGame(t *testing.T, games match.Repository) match.Game {
	t.Helper()
	participants := make(map[match.Slot]match.Participant, 10)
	var playerID int64 = 1
	for _, side := range []match.Side{match.SideBlue, match.SideRed} {
		for _, role := range queue.Roles() {
			participants[match.Slot{Side: side, Role: role}] = match.Participant{
				PlayerID: playerID,
				Name:     "player",
				Side:     side,
				Role:     role,
				Mu:       rating.DefaultMu,
				Sigma:    rating.DefaultSigma,
			}
			playerID++
		}
	}
	g, err := games.Create(context.Background(), match.Game{
		StartedAt:    time.Now(),
		ServerID:     testServer,
		Participants: participants,
	})
	if err != nil {
		t.Fatalf("seed game: %v", err)
	}
	return g
}

func newMatchService(t *testing.T, notifier Notifier) (*MatchService, *memory.MatchRepository, *memory.RatingRepository, *QueueService) {
	t.Helper()
	matchRepo := memory.NewMatchRepository()
	ratingRepo := memory.NewRatingRepository()
	queueSvc := NewQueueService(memory.NewQueueRepository(), matchRepo, logging.NewNop())
	svc := NewMatchService(matchRepo, ratingRepo, queueSvc, skill.NewModel(), notifier, 0, 200*time.Millisecond, logging.NewNop())
	return svc, matchRepo, ratingRepo, queueSvc
}

func TestMatchService_ScoreGameAppliesRatings(t *testing.T) {
	t.Parallel()

	notifier := newScriptedNotifier(acceptAll)
	svc, matchRepo, ratingRepo, _ := newMatchService(t, notifier)
	ctx := context.Background()

	g := committedGame(t, matchRepo)

	// Player 1 plays blue top and reports a win.
	if err := svc.ScoreGame(ctx, testServer, testChannel, 1, true); err != nil {
		t.Fatalf("score game: %v", err)
	}

	scored, _, found, err := matchRepo.LastByPlayer(ctx, testServer, 1)
	if err != nil || !found {
		t.Fatalf("reload game: %v found=%t", err, found)
	}
	if scored.Winner != match.SideBlue {
		t.Fatalf("expected blue winner, got %q", scored.Winner)
	}

	winnerRating, err := ratingRepo.GetOrInit(ctx, testServer, 1, queue.RoleTop)
	if err != nil {
		t.Fatalf("load winner rating: %v", err)
	}
	if winnerRating.Mu <= rating.DefaultMu {
		t.Fatalf("winner mu should rise, got %f", winnerRating.Mu)
	}

	// Player 6 is red top, on the losing side.
	loserRating, err := ratingRepo.GetOrInit(ctx, testServer, 6, queue.RoleTop)
	if err != nil {
		t.Fatalf("load loser rating: %v", err)
	}
	if loserRating.Mu >= rating.DefaultMu {
		t.Fatalf("loser mu should drop, got %f", loserRating.Mu)
	}

	// Once scored, players can queue again.
	if err := svc.ScoreGame(ctx, testServer, testChannel, 1, true); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("rescoring should be refused, got %v", err)
	}
	if g.ID != scored.ID {
		t.Fatalf("scored a different game: %d vs %d", scored.ID, g.ID)
	}
}

func TestMatchService_ConfiguredThresholdApplies(t *testing.T) {
	t.Parallel()

	// Only three of ten confirm; with the threshold lowered to three the
	// result still lands, where the default six would time out.
	notifier := newScriptedNotifier(func(candidateIDs []int64) []ReadySignal {
		out := make([]ReadySignal, 0, 3)
		for _, id := range candidateIDs[:3] {
			out = append(out, ReadySignal{PlayerID: id, Accept: true})
		}
		return out
	})
	matchRepo := memory.NewMatchRepository()
	ratingRepo := memory.NewRatingRepository()
	queueSvc := NewQueueService(memory.NewQueueRepository(), matchRepo, logging.NewNop())
	svc := NewMatchService(matchRepo, ratingRepo, queueSvc, skill.NewModel(), notifier, 3, 200*time.Millisecond, logging.NewNop())
	ctx := context.Background()

	committedGame(t, matchRepo)

	if err := svc.ScoreGame(ctx, testServer, testChannel, 1, true); err != nil {
		t.Fatalf("score game: %v", err)
	}

	scored, _, _, err := matchRepo.LastByPlayer(ctx, testServer, 1)
	if err != nil {
		t.Fatalf("reload game: %v", err)
	}
	if !scored.Scored() {
		t.Fatalf("three confirmations must satisfy a threshold of three")
	}
}

func TestMatchService_ScoreGameLossFlipsWinner(t *testing.T) {
	t.Parallel()

	notifier := newScriptedNotifier(acceptAll)
	svc, matchRepo, _, _ := newMatchService(t, notifier)
	ctx := context.Background()

	committedGame(t, matchRepo)

	// Player 1 (blue) reports a loss, so red wins.
	if err := svc.ScoreGame(ctx, testServer, testChannel, 1, false); err != nil {
		t.Fatalf("score game: %v", err)
	}

	scored, _, _, err := matchRepo.LastByPlayer(ctx, testServer, 1)
	if err != nil {
		t.Fatalf("reload game: %v", err)
	}
	if scored.Winner != match.SideRed {
		t.Fatalf("expected red winner, got %q", scored.Winner)
	}
}

func TestMatchService_ScoreGameDeniedByConfirmation(t *testing.T) {
	t.Parallel()

	notifier := newScriptedNotifier(func(candidateIDs []int64) []ReadySignal {
		return []ReadySignal{{PlayerID: candidateIDs[1], Accept: false}}
	})
	svc, matchRepo, _, _ := newMatchService(t, notifier)
	ctx := context.Background()

	committedGame(t, matchRepo)

	if err := svc.ScoreGame(ctx, testServer, testChannel, 1, true); err != nil {
		t.Fatalf("denied confirmation is not an error: %v", err)
	}

	scored, _, _, err := matchRepo.LastByPlayer(ctx, testServer, 1)
	if err != nil {
		t.Fatalf("reload game: %v", err)
	}
	if scored.Scored() {
		t.Fatalf("denied confirmation must not score the game, winner %q", scored.Winner)
	}
}

func TestMatchService_ScoreGameWithoutGame(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newMatchService(t, newScriptedNotifier(acceptAll))

	err := svc.ScoreGame(context.Background(), testServer, testChannel, 1, true)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMatchService_ConcurrentConfirmationRefused(t *testing.T) {
	t.Parallel()

	svc, matchRepo, _, _ := newMatchService(t, newScriptedNotifier(acceptAll))
	ctx := context.Background()

	g := committedGame(t, matchRepo)

	_, release, err := svc.claimConfirmation(ctx, g.ID)
	if err != nil {
		t.Fatalf("claim confirmation: %v", err)
	}
	defer release()

	if err := svc.ScoreGame(ctx, testServer, testChannel, 1, true); !errors.Is(err, ErrConfirmationInProgress) {
		t.Fatalf("expected confirmation-in-progress, got %v", err)
	}
}

func TestMatchService_CancelGameRequeuesParticipants(t *testing.T) {
	t.Parallel()

	notifier := newScriptedNotifier(acceptAll)
	svc, matchRepo, _, queueSvc := newMatchService(t, notifier)
	ctx := context.Background()

	committedGame(t, matchRepo)

	// Someone else queued while the game ran; cancelled players must
	// still outrank them.
	bystander := AddPlayerInput{
		PlayerID:  99,
		Name:      "bystander",
		Role:      queue.RoleTop,
		ChannelID: testChannel,
		ServerID:  testServer,
	}
	if err := queueSvc.AddPlayer(ctx, bystander); err != nil {
		t.Fatalf("queue bystander: %v", err)
	}

	if err := svc.CancelGame(ctx, testServer, testChannel, 1); err != nil {
		t.Fatalf("cancel game: %v", err)
	}

	if _, _, found, err := matchRepo.LastByPlayer(ctx, testServer, 1); err != nil || found {
		t.Fatalf("cancelled game should be gone, found=%t err=%v", found, err)
	}

	snap, err := queueSvc.Snapshot(ctx, testChannel)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Len() != 11 {
		t.Fatalf("expected 10 requeued players plus the bystander, got %d", snap.Len())
	}
	// The bystander queued first but jump-ahead puts the cancelled
	// players in front.
	if snap.Entries[0].PlayerID == 99 || snap.Entries[1].PlayerID == 99 {
		t.Fatalf("bystander should not hold a seed spot over requeued players")
	}
}

func TestMatchService_VoidConfirmationInterrupts(t *testing.T) {
	t.Parallel()

	// No answers ever arrive; the void has to unstick the round before
	// its timeout.
	notifier := newScriptedNotifier(func([]int64) []ReadySignal { return nil })
	svc, matchRepo, _, _ := newMatchService(t, notifier)
	svc.confirmationTimeout = time.Minute
	ctx := context.Background()

	g := committedGame(t, matchRepo)

	done := make(chan error, 1)
	go func() {
		done <- svc.ScoreGame(ctx, testServer, testChannel, 1, true)
	}()

	deadline := time.After(2 * time.Second)
	for !svc.VoidConfirmation(g.ID) {
		select {
		case <-deadline:
			t.Fatal("confirmation never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("void did not interrupt the confirmation")
	}
}
