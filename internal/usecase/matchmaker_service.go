package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
	"github.com/inhouse-gg/queuebot/internal/platform/id"
	"github.com/inhouse-gg/queuebot/internal/platform/logging"
)

const (
	defaultReadyCheckTimeout = 3 * time.Minute
	defaultMatchmakerWorkers = 8
)

// Matchmaker reacts to queue changes: it snapshots the channel, asks the
// composer for a balanced game, and drives the ready check through to a
// committed game or a cleaned-up cancellation. Cycles for distinct channels
// run concurrently on a shared worker pool; cycles for the same channel are
// serialized.
type Matchmaker struct {
	queue    *QueueService
	composer *Composer
	matches  *MatchService
	notifier Notifier
	ids      id.Generator
	logger   *logging.Logger

	readyCheckTimeout time.Duration
	pool              *ants.Pool
	checks            conc.WaitGroup

	// lifecycle is cancelled by Close so in-flight ready checks unblock
	// instead of sitting out their timers during shutdown.
	lifecycle context.Context
	stop      context.CancelFunc

	mu     sync.Mutex
	cycles map[int64]*sync.Mutex
}

func NewMatchmaker(
	queueSvc *QueueService,
	composer *Composer,
	matches *MatchService,
	notifier Notifier,
	workers int,
	readyCheckTimeout time.Duration,
	logger *logging.Logger,
) (*Matchmaker, error) {
	if workers < 1 {
		workers = defaultMatchmakerWorkers
	}
	if readyCheckTimeout <= 0 {
		readyCheckTimeout = defaultReadyCheckTimeout
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	lifecycle, stop := context.WithCancel(context.Background())
	return &Matchmaker{
		queue:             queueSvc,
		composer:          composer,
		matches:           matches,
		notifier:          notifier,
		ids:               id.NewRandomGenerator(),
		logger:            logger,
		readyCheckTimeout: readyCheckTimeout,
		pool:              pool,
		lifecycle:         lifecycle,
		stop:              stop,
		cycles:            make(map[int64]*sync.Mutex),
	}, nil
}

// QueueChanged schedules a matchmaking cycle for the channel. Safe to call
// from command handlers; the cycle runs on the worker pool.
func (m *Matchmaker) QueueChanged(ctx context.Context, channelID int64) error {
	if err := m.pool.Submit(func() { m.runCycle(ctx, channelID) }); err != nil {
		return fmt.Errorf("schedule matchmaking cycle: %w", err)
	}
	return nil
}

// Resume recovers after a restart: in-flight prompts from the previous
// process are gone, so every ready check tag is lifted and each active
// channel gets a fresh cycle.
func (m *Matchmaker) Resume(ctx context.Context) error {
	if err := m.queue.ClearAllReadyChecks(ctx); err != nil {
		return err
	}
	channels, err := m.queue.ActiveChannels(ctx)
	if err != nil {
		return err
	}
	for _, channelID := range channels {
		if err := m.QueueChanged(ctx, channelID); err != nil {
			return err
		}
	}
	m.logger.InfoContext(ctx, "matchmaker resumed", "active_channels", len(channels))
	return nil
}

// Close interrupts in-flight ready checks, waits for their supervisors and
// releases the worker pool. Interrupted checks leave their tags behind;
// Resume lifts them on the next start.
func (m *Matchmaker) Close() {
	m.stop()
	m.checks.Wait()
	m.pool.Release()
}

func (m *Matchmaker) cycleLock(channelID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.cycles[channelID]
	if !ok {
		l = &sync.Mutex{}
		m.cycles[channelID] = l
	}
	return l
}

func (m *Matchmaker) runCycle(ctx context.Context, channelID int64) {
	lock := m.cycleLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := m.queue.Snapshot(ctx, channelID)
	if err != nil {
		m.logger.ErrorContext(ctx, "snapshot failed", "channel_id", channelID, "error", err)
		return
	}

	game, err := m.composer.FindBestGame(ctx, snap)
	if err != nil {
		m.logger.ErrorContext(ctx, "composition failed", "channel_id", channelID, "error", err)
		return
	}
	if game == nil {
		return
	}

	prompt, err := m.notifier.PostReadyCheck(ctx, game)
	if err != nil {
		m.logger.ErrorContext(ctx, "ready check post failed", "channel_id", channelID, "error", err)
		return
	}
	if prompt.ID == "" {
		// Not every transport has a message id to reuse as the check id.
		checkID, idErr := m.ids.NewID()
		if idErr != nil {
			m.logger.ErrorContext(ctx, "check id generation failed", "channel_id", channelID, "error", idErr)
			return
		}
		prompt.ID = checkID
	}

	if err := m.queue.StartReadyCheck(ctx, channelID, game.PlayerIDs(), prompt.ID); err != nil {
		m.logger.ErrorContext(ctx, "ready check tag failed", "channel_id", channelID, "error", err)
		m.notifier.Close(ctx, channelID, prompt.ID, "Something went wrong, the game is off.")
		return
	}

	// Supervision outlives the triggering command; it runs on the
	// matchmaker's own lifecycle so Close can interrupt it.
	m.checks.Go(func() { m.superviseReadyCheck(m.lifecycle, channelID, game, prompt) })
}

func (m *Matchmaker) superviseReadyCheck(ctx context.Context, channelID int64, game *match.Proposed, prompt Prompt) {
	candidates := game.PlayerIDs()
	res, err := RunReadyCheck(ctx, candidates, len(candidates), m.readyCheckTimeout, prompt.Signals,
		func(acceptedIDs []int64) {
			m.notifier.MarkAccepted(ctx, channelID, prompt.ID, acceptedIDs)
		})
	if err != nil {
		// Shutdown or admin void; recovery lifts the tags on next start.
		m.logger.WarnContext(ctx, "ready check interrupted", "check_id", prompt.ID, "error", err)
		return
	}

	switch res.Outcome {
	case ReadyCheckValidated:
		m.resolveValidated(ctx, channelID, game, prompt)
	case ReadyCheckRejected:
		// Rejecting only costs the player this channel's spot.
		m.resolveFailed(ctx, channelID, prompt, CancelReadyCheckInput{
			CheckID:       prompt.ID,
			DropPlayerIDs: res.AffectedIDs,
			ChannelID:     channelID,
		}, "Ready check declined, the game is off.")
	case ReadyCheckTimedOut:
		// Going silent costs every spot on the server.
		m.resolveFailed(ctx, channelID, prompt, CancelReadyCheckInput{
			CheckID:       prompt.ID,
			DropPlayerIDs: res.AffectedIDs,
			ServerID:      game.ServerID,
		}, "Ready check timed out, the game is off.")
	}
}

func (m *Matchmaker) resolveValidated(ctx context.Context, channelID int64, game *match.Proposed, prompt Prompt) {
	if _, err := m.queue.ValidateReadyCheck(ctx, prompt.ID); err != nil {
		m.logger.ErrorContext(ctx, "ready check validation failed", "check_id", prompt.ID, "error", err)
		return
	}
	committed, err := m.matches.CommitGame(ctx, game)
	if err != nil {
		m.logger.ErrorContext(ctx, "game commit failed", "check_id", prompt.ID, "error", err)
		m.notifier.Close(ctx, channelID, prompt.ID, "Something went wrong, the game is off.")
		return
	}
	m.notifier.Close(ctx, channelID, prompt.ID, fmt.Sprintf("Game %d is on!", committed.ID))
}

func (m *Matchmaker) resolveFailed(ctx context.Context, channelID int64, prompt Prompt, cancel CancelReadyCheckInput, summary string) {
	if err := m.queue.CancelReadyCheck(ctx, cancel); err != nil {
		m.logger.ErrorContext(ctx, "ready check cancel failed", "check_id", prompt.ID, "error", err)
		return
	}
	m.notifier.Close(ctx, channelID, prompt.ID, summary)

	// The remaining players may still make a game.
	if err := m.QueueChanged(ctx, channelID); err != nil {
		m.logger.WarnContext(ctx, "retry cycle scheduling failed", "channel_id", channelID, "error", err)
	}
}
