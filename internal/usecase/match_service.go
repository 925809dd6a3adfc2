package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
	"github.com/inhouse-gg/queuebot/internal/domain/rating"
	"github.com/inhouse-gg/queuebot/internal/platform/logging"
)

const (
	// defaultConfirmationThreshold is how many of the ten participants must
	// agree before a game result or cancellation takes effect.
	defaultConfirmationThreshold = 6
	defaultConfirmationTimeout   = 3 * time.Minute
)

// MatchService records games and runs the confirmation rounds that guard
// scoring and cancellation.
type MatchService struct {
	games    match.Repository
	ratings  rating.Repository
	queue    *QueueService
	model    rating.Model
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time

	confirmationThreshold int
	confirmationTimeout   time.Duration

	mu            sync.Mutex
	confirmations map[int64]context.CancelFunc
}

func NewMatchService(
	games match.Repository,
	ratings rating.Repository,
	queueSvc *QueueService,
	model rating.Model,
	notifier Notifier,
	confirmationThreshold int,
	confirmationTimeout time.Duration,
	logger *logging.Logger,
) *MatchService {
	if confirmationThreshold < 1 || confirmationThreshold > gameSize {
		confirmationThreshold = defaultConfirmationThreshold
	}
	if confirmationTimeout <= 0 {
		confirmationTimeout = defaultConfirmationTimeout
	}
	return &MatchService{
		games:                 games,
		ratings:               ratings,
		queue:                 queueSvc,
		model:                 model,
		notifier:              notifier,
		logger:                logger,
		now:                   time.Now,
		confirmationThreshold: confirmationThreshold,
		confirmationTimeout:   confirmationTimeout,
		confirmations:         make(map[int64]context.CancelFunc),
	}
}

// CommitGame persists a validated composition as an ongoing game.
func (s *MatchService) CommitGame(ctx context.Context, proposed *match.Proposed) (match.Game, error) {
	if proposed == nil || len(proposed.Participants) != gameSize {
		return match.Game{}, fmt.Errorf("%w: composition must hold %d participants", ErrInvalidInput, gameSize)
	}

	g, err := s.games.Create(ctx, match.Game{
		StartedAt:          s.now(),
		ServerID:           proposed.ServerID,
		BlueWinProbability: proposed.BlueWinProbability,
		Participants:       proposed.Participants,
	})
	if err != nil {
		return match.Game{}, fmt.Errorf("create game: %w", err)
	}

	s.logger.InfoContext(ctx, "game committed",
		"game_id", g.ID,
		"server_id", g.ServerID,
		"blue_win_probability", g.BlueWinProbability,
	)
	return g, nil
}

// ScoreGame records a win or loss for the reporting player's latest game,
// once enough of its participants confirm, and applies the rating update.
// Only one confirmation per game runs at a time.
func (s *MatchService) ScoreGame(ctx context.Context, serverID, channelID, playerID int64, won bool) error {
	g, reporter, found, err := s.games.LastByPlayer(ctx, serverID, playerID)
	if err != nil {
		return fmt.Errorf("load last game: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: player %d has no game on record", ErrNotFound, playerID)
	}
	if g.Scored() {
		return fmt.Errorf("%w: game %d is already scored", ErrInvalidInput, g.ID)
	}

	winner := reporter.Side
	if !won {
		winner = reporter.Side.Opponent()
	}

	text := fmt.Sprintf("%s reports a %s win for game %d. Confirm?", reporter.Name, winner, g.ID)
	confirmed, err := s.runConfirmation(ctx, g, channelID, text)
	if err != nil || !confirmed {
		return err
	}

	if err := s.games.SetWinner(ctx, g.ID, winner); err != nil {
		return fmt.Errorf("set winner: %w", err)
	}
	if err := s.applyRatings(ctx, g, winner); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "game scored", "game_id", g.ID, "winner", string(winner))
	return nil
}

// CancelGame voids the reporting player's latest ongoing game after
// confirmation, and puts every participant back at the front of the queue.
func (s *MatchService) CancelGame(ctx context.Context, serverID, channelID, playerID int64) error {
	g, reporter, found, err := s.games.LastByPlayer(ctx, serverID, playerID)
	if err != nil {
		return fmt.Errorf("load last game: %w", err)
	}
	if !found || g.Scored() {
		return fmt.Errorf("%w: player %d has no ongoing game", ErrNotFound, playerID)
	}

	text := fmt.Sprintf("%s wants to cancel game %d. Confirm?", reporter.Name, g.ID)
	confirmed, err := s.runConfirmation(ctx, g, channelID, text)
	if err != nil || !confirmed {
		return err
	}

	if err := s.games.Delete(ctx, g.ID); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}

	// Participants waited through a game that never happened; put them back
	// ahead of everyone who queued meanwhile.
	for _, p := range participantsOf(g) {
		addErr := s.queue.AddPlayer(ctx, AddPlayerInput{
			PlayerID:  p.PlayerID,
			Name:      p.Name,
			Role:      p.Role,
			ChannelID: channelID,
			ServerID:  g.ServerID,
			JumpAhead: true,
		})
		if addErr != nil {
			s.logger.WarnContext(ctx, "requeue after cancel failed",
				"game_id", g.ID, "player_id", p.PlayerID, "error", addErr)
		}
	}

	s.logger.InfoContext(ctx, "game cancelled", "game_id", g.ID)
	return nil
}

// VoidConfirmation interrupts the game's in-flight confirmation round, if
// any. Used by admins to unstick a prompt.
func (s *MatchService) VoidConfirmation(gameID int64) bool {
	s.mu.Lock()
	cancel, ok := s.confirmations[gameID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *MatchService) runConfirmation(ctx context.Context, g match.Game, channelID int64, text string) (bool, error) {
	cctx, release, err := s.claimConfirmation(ctx, g.ID)
	if err != nil {
		return false, err
	}
	defer release()

	candidates := g.PlayerIDs()
	prompt, err := s.notifier.PostConfirmation(cctx, channelID, text, candidates)
	if err != nil {
		return false, fmt.Errorf("post confirmation: %w", err)
	}

	res, err := RunReadyCheck(cctx, candidates, s.confirmationThreshold, s.confirmationTimeout, prompt.Signals,
		func(acceptedIDs []int64) {
			s.notifier.MarkAccepted(cctx, channelID, prompt.ID, acceptedIDs)
		})
	if err != nil {
		s.notifier.Close(ctx, channelID, prompt.ID, "Confirmation voided.")
		return false, err
	}

	switch res.Outcome {
	case ReadyCheckValidated:
		s.notifier.Close(ctx, channelID, prompt.ID, "Confirmed.")
		return true, nil
	case ReadyCheckRejected:
		s.notifier.Close(ctx, channelID, prompt.ID, "Denied.")
	default:
		s.notifier.Close(ctx, channelID, prompt.ID, "Confirmation timed out.")
	}
	return false, nil
}

func (s *MatchService) claimConfirmation(ctx context.Context, gameID int64) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.confirmations[gameID]; busy {
		return nil, nil, fmt.Errorf("%w: game %d", ErrConfirmationInProgress, gameID)
	}

	cctx, cancel := context.WithCancel(ctx)
	s.confirmations[gameID] = cancel
	release := func() {
		cancel()
		s.mu.Lock()
		delete(s.confirmations, gameID)
		s.mu.Unlock()
	}
	return cctx, release, nil
}

func (s *MatchService) applyRatings(ctx context.Context, g match.Game, winner match.Side) error {
	winningTeam := g.Team(winner)
	losingTeam := g.Team(winner.Opponent())

	winnerRatings := make([]rating.Rating, len(winningTeam))
	loserRatings := make([]rating.Rating, len(losingTeam))
	for i, p := range winningTeam {
		winnerRatings[i] = p.Rating()
	}
	for i, p := range losingTeam {
		loserRatings[i] = p.Rating()
	}

	newWinners, newLosers := s.model.Rate(winnerRatings, loserRatings)
	for i, p := range winningTeam {
		if err := s.ratings.Update(ctx, g.ServerID, p.PlayerID, p.Role, newWinners[i]); err != nil {
			return fmt.Errorf("update rating for player %d: %w", p.PlayerID, err)
		}
	}
	for i, p := range losingTeam {
		if err := s.ratings.Update(ctx, g.ServerID, p.PlayerID, p.Role, newLosers[i]); err != nil {
			return fmt.Errorf("update rating for player %d: %w", p.PlayerID, err)
		}
	}
	return nil
}

func participantsOf(g match.Game) []match.Participant {
	out := make([]match.Participant, 0, len(g.Participants))
	for _, side := range []match.Side{match.SideBlue, match.SideRed} {
		out = append(out, g.Team(side)...)
	}
	return out
}
