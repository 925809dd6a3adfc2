package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/platform/logging"
)

// jumpAheadBackdate is how far a re-queued player's timestamp is pushed into
// the past so they outrank everyone who queued organically.
const jumpAheadBackdate = 24 * time.Hour

// readyCheckSize is the number of players a ready check always covers.
const readyCheckSize = 10

type AddPlayerInput struct {
	PlayerID  int64      `validate:"required"`
	Name      string     `validate:"required"`
	Role      queue.Role `validate:"required,oneof=TOP JGL MID BOT SUP"`
	ChannelID int64      `validate:"required"`
	ServerID  int64      `validate:"required"`
	// JumpAhead backdates the entry so the player fronts the queue, used
	// when re-queuing players after a cancelled game.
	JumpAhead bool
}

type AddDuoInput struct {
	First  AddPlayerInput `validate:"required"`
	Second AddPlayerInput `validate:"required"`
}

// CancelReadyCheckInput clears a ready check tag and drops the players who
// caused the cancellation. Exactly one of ChannelID (rejection: drop from this
// channel only) or ServerID (timeout: drop from every channel of the server)
// must be set when DropPlayerIDs is non-empty.
type CancelReadyCheckInput struct {
	CheckID       string `validate:"required"`
	DropPlayerIDs []int64
	ChannelID     int64
	ServerID      int64
}

// QueueService owns every queue state transition. All writes to a channel are
// serialized through a per-channel lock so concurrent commands cannot
// interleave a guard check with another command's write.
type QueueService struct {
	entries  queue.Repository
	games    match.Repository
	validate *validator.Validate
	logger   *logging.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewQueueService(entries queue.Repository, games match.Repository, logger *logging.Logger) *QueueService {
	return &QueueService{
		entries:  entries,
		games:    games,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      time.Now,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *QueueService) lockChannel(channelID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[channelID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[channelID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// AddPlayer queues a player for one role in one channel. Re-queuing for the
// same role refreshes the entry. Players with an unscored game or an active
// ready check are refused.
func (s *QueueService) AddPlayer(ctx context.Context, input AddPlayerInput) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	unlock := s.lockChannel(input.ChannelID)
	defer unlock()

	return s.addPlayerLocked(ctx, input)
}

func (s *QueueService) addPlayerLocked(ctx context.Context, input AddPlayerInput) error {
	g, _, found, err := s.games.LastByPlayer(ctx, input.ServerID, input.PlayerID)
	if err != nil {
		return fmt.Errorf("load last game: %w", err)
	}
	if found && !g.Scored() {
		return fmt.Errorf("%w: player %d", ErrPlayerInGame, input.PlayerID)
	}

	inCheck, err := s.playerInReadyCheck(ctx, input.PlayerID)
	if err != nil {
		return err
	}
	if inCheck {
		return fmt.Errorf("%w: player %d", ErrPlayerInReadyCheck, input.PlayerID)
	}

	queuedAt := s.now()
	if input.JumpAhead {
		queuedAt = queuedAt.Add(-jumpAheadBackdate)
	}

	if err := s.entries.Upsert(ctx, queue.Entry{
		ChannelID: input.ChannelID,
		PlayerID:  input.PlayerID,
		ServerID:  input.ServerID,
		Role:      input.Role,
		Name:      input.Name,
		QueuedAt:  queuedAt,
	}); err != nil {
		return fmt.Errorf("upsert queue entry: %w", err)
	}

	s.logger.DebugContext(ctx, "player queued",
		"player_id", input.PlayerID,
		"role", string(input.Role),
		"channel_id", input.ChannelID,
		"jump_ahead", input.JumpAhead,
	)
	return nil
}

// RemovePlayer removes all of the player's entries in the channel, or across
// every channel when channelID is 0. The channel-scoped form refuses players
// held by a ready check; the global form bypasses the guard so cleanup flows
// can always pull players out.
func (s *QueueService) RemovePlayer(ctx context.Context, playerID, channelID int64) error {
	if playerID == 0 {
		return fmt.Errorf("%w: player id is required", ErrInvalidInput)
	}

	if channelID != 0 {
		unlock := s.lockChannel(channelID)
		defer unlock()

		inCheck, err := s.playerInReadyCheck(ctx, playerID)
		if err != nil {
			return err
		}
		if inCheck {
			return fmt.Errorf("%w: player %d", ErrPlayerInReadyCheck, playerID)
		}
	}

	if err := s.entries.DeletePlayer(ctx, playerID, channelID); err != nil {
		return fmt.Errorf("delete queue entries: %w", err)
	}
	return nil
}

// RemovePlayers removes the given players from the channel without the ready
// check guard.
func (s *QueueService) RemovePlayers(ctx context.Context, channelID int64, playerIDs []int64) error {
	if channelID == 0 {
		return fmt.Errorf("%w: channel id is required", ErrInvalidInput)
	}
	if len(playerIDs) == 0 {
		return nil
	}

	unlock := s.lockChannel(channelID)
	defer unlock()

	if err := s.entries.DeletePlayers(ctx, channelID, playerIDs); err != nil {
		return fmt.Errorf("delete queue entries: %w", err)
	}
	return nil
}

// AddDuo queues two players as a duo: both are (re)queued for their roles and
// linked so the composer keeps them on the same side and the snapshot seeds
// them together.
func (s *QueueService) AddDuo(ctx context.Context, input AddDuoInput) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.First.Role == input.Second.Role {
		return fmt.Errorf("%w: %s", ErrSameRolesForDuo, input.First.Role)
	}
	if input.First.ChannelID != input.Second.ChannelID {
		return fmt.Errorf("%w: duo partners must share a channel", ErrInvalidInput)
	}

	unlock := s.lockChannel(input.First.ChannelID)
	defer unlock()

	// Re-adding drops stale entries for other roles first, so each partner
	// holds exactly one entry in the channel after the duo forms.
	for _, in := range []AddPlayerInput{input.First, input.Second} {
		inCheck, err := s.playerInReadyCheck(ctx, in.PlayerID)
		if err != nil {
			return err
		}
		if inCheck {
			return fmt.Errorf("%w: player %d", ErrPlayerInReadyCheck, in.PlayerID)
		}
		if err := s.entries.DeletePlayer(ctx, in.PlayerID, in.ChannelID); err != nil {
			return fmt.Errorf("delete queue entries: %w", err)
		}
		if err := s.addPlayerLocked(ctx, in); err != nil {
			return err
		}
	}

	if err := s.entries.SetDuo(ctx, input.First.ChannelID, input.First.PlayerID, input.Second.PlayerID); err != nil {
		return fmt.Errorf("set duo link: %w", err)
	}
	return nil
}

// RemoveDuo breaks the player's duo link in the channel, leaving both players
// queued solo.
func (s *QueueService) RemoveDuo(ctx context.Context, playerID, channelID int64) error {
	if playerID == 0 || channelID == 0 {
		return fmt.Errorf("%w: player id and channel id are required", ErrInvalidInput)
	}

	unlock := s.lockChannel(channelID)
	defer unlock()

	if err := s.entries.ClearDuo(ctx, channelID, playerID); err != nil {
		return fmt.Errorf("clear duo link: %w", err)
	}
	return nil
}

// StartReadyCheck tags exactly ten players in the channel with checkID,
// freezing their entries until the check resolves.
func (s *QueueService) StartReadyCheck(ctx context.Context, channelID int64, playerIDs []int64, checkID string) error {
	if len(playerIDs) != readyCheckSize {
		return fmt.Errorf("%w: ready check needs %d players, got %d", ErrInvalidInput, readyCheckSize, len(playerIDs))
	}
	if checkID == "" {
		return fmt.Errorf("%w: check id is required", ErrInvalidInput)
	}

	unlock := s.lockChannel(channelID)
	defer unlock()

	if err := s.entries.TagReadyCheck(ctx, channelID, playerIDs, checkID); err != nil {
		return fmt.Errorf("tag ready check: %w", err)
	}
	return nil
}

// ValidateReadyCheck resolves an accepted ready check: every tagged player
// leaves the queue everywhere, since they are about to play.
func (s *QueueService) ValidateReadyCheck(ctx context.Context, checkID string) ([]int64, error) {
	if checkID == "" {
		return nil, fmt.Errorf("%w: check id is required", ErrInvalidInput)
	}

	players, err := s.entries.DeleteByReadyCheck(ctx, checkID)
	if err != nil {
		return nil, fmt.Errorf("delete ready check entries: %w", err)
	}
	return players, nil
}

// CancelReadyCheck resolves a failed ready check: the tag is lifted so
// innocent players keep their spots, then the players who caused the failure
// are dropped from the given scope.
func (s *QueueService) CancelReadyCheck(ctx context.Context, input CancelReadyCheckInput) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.entries.ClearReadyCheck(ctx, input.CheckID); err != nil {
		return fmt.Errorf("clear ready check: %w", err)
	}
	if len(input.DropPlayerIDs) == 0 {
		return nil
	}

	if (input.ChannelID == 0) == (input.ServerID == 0) {
		return fmt.Errorf("%w: exactly one of channel or server scope must be set", ErrInvalidInput)
	}
	if err := s.entries.DropPlayers(ctx, input.DropPlayerIDs, input.ChannelID, input.ServerID); err != nil {
		return fmt.Errorf("drop players: %w", err)
	}
	return nil
}

// ClearAllReadyChecks lifts every ready check tag. Called on startup, when
// any in-flight prompt from a previous process is unrecoverable.
func (s *QueueService) ClearAllReadyChecks(ctx context.Context) error {
	if err := s.entries.ClearAllReadyChecks(ctx); err != nil {
		return fmt.Errorf("clear ready checks: %w", err)
	}
	return nil
}

// ActiveChannels lists channels holding at least one queued player.
func (s *QueueService) ActiveChannels(ctx context.Context) ([]int64, error) {
	channels, err := s.entries.ActiveChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active channels: %w", err)
	}
	return channels, nil
}

// Reset wipes a channel's queue, or the whole store when channelID is 0.
func (s *QueueService) Reset(ctx context.Context, channelID int64) error {
	if err := s.entries.Reset(ctx, channelID); err != nil {
		return fmt.Errorf("reset queue: %w", err)
	}
	return nil
}

// Snapshot builds the channel's matchmaking view: entries by seniority with
// the seed-ten ordering, excluding players held by a ready check anywhere on
// the server.
func (s *QueueService) Snapshot(ctx context.Context, channelID int64) (*queue.Snapshot, error) {
	if channelID == 0 {
		return nil, fmt.Errorf("%w: channel id is required", ErrInvalidInput)
	}

	entries, err := s.entries.ListChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel entries: %w", err)
	}
	if len(entries) == 0 {
		return queue.NewSnapshot(channelID, nil), nil
	}

	playerIDs := make([]int64, 0, len(entries))
	for _, e := range entries {
		playerIDs = append(playerIDs, e.PlayerID)
	}
	checks, err := s.entries.ActiveReadyChecks(ctx, entries[0].ServerID, playerIDs)
	if err != nil {
		return nil, fmt.Errorf("load active ready checks: %w", err)
	}

	available := entries[:0:0]
	for _, e := range entries {
		if _, held := checks[e.PlayerID]; held {
			continue
		}
		available = append(available, e)
	}
	return queue.NewSnapshot(channelID, available), nil
}

func (s *QueueService) playerInReadyCheck(ctx context.Context, playerID int64) (bool, error) {
	held, err := s.entries.ListPlayer(ctx, playerID)
	if err != nil {
		return false, fmt.Errorf("list player entries: %w", err)
	}
	for _, e := range held {
		if e.InReadyCheck() {
			return true, nil
		}
	}
	return false, nil
}
