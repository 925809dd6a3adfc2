package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"

	"github.com/inhouse-gg/queuebot/internal/domain/match"
	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/platform/logging"
	"github.com/inhouse-gg/queuebot/internal/platform/resilience"
	"github.com/inhouse-gg/queuebot/internal/usecase"
)

const (
	acceptEmoji = "✅"
	rejectEmoji = "❌"

	colorBlue = 0x3498DB
	colorGrey = 0x95A5A6

	// signalBuffer absorbs reaction bursts; a full buffer drops the
	// reaction, the player can just react again.
	signalBuffer = 32
)

// ErrUnavailable marks failures where Discord itself is down or throttling;
// callers can retry later.
var ErrUnavailable = errors.New("discord unavailable")

type promptState struct {
	channelID string
	signals   chan usecase.ReadySignal
}

// Notifier delivers prompts over Discord messages and turns ✅/❌ reactions
// into ready signals. One reaction handler is registered for the session;
// prompts are routed by message id.
type Notifier struct {
	session *discordgo.Session
	breaker *resilience.CircuitBreaker
	logger  *logging.Logger

	mu      sync.Mutex
	prompts map[string]*promptState

	detach func()
}

func NewNotifier(session *discordgo.Session, breakerCfg resilience.CircuitBreakerConfig, logger *logging.Logger) *Notifier {
	breakerCfg = resilience.NormalizeCircuitBreakerConfig(breakerCfg)
	n := &Notifier{
		session: session,
		breaker: resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		logger:  logger,
		prompts: make(map[string]*promptState),
	}
	n.detach = session.AddHandler(n.onReactionAdd)
	return n
}

var _ usecase.Notifier = (*Notifier)(nil)

// Shutdown detaches the reaction handler and closes open prompt streams.
func (n *Notifier) Shutdown() {
	if n.detach != nil {
		n.detach()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for id, p := range n.prompts {
		close(p.signals)
		delete(n.prompts, id)
	}
}

func (n *Notifier) PostReadyCheck(ctx context.Context, game *match.Proposed) (usecase.Prompt, error) {
	channelID := strconv.FormatInt(game.ChannelID, 10)

	embed := &discordgo.MessageEmbed{
		Title:       "Game found!",
		Description: fmt.Sprintf("React with %s to accept or %s to decline.", acceptEmoji, rejectEmoji),
		Color:       colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Blue", Value: teamField(game.Team(match.SideBlue)), Inline: true},
			{Name: "Red", Value: teamField(game.Team(match.SideRed)), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Blue win probability: %.1f%%", game.BlueWinProbability*100),
		},
	}

	var msg *discordgo.Message
	err := n.send(func() error {
		var sendErr error
		msg, sendErr = n.session.ChannelMessageSendEmbed(channelID, embed)
		return sendErr
	})
	if err != nil {
		return usecase.Prompt{}, err
	}

	n.seedReactions(channelID, msg.ID)
	return n.track(channelID, msg.ID), nil
}

func (n *Notifier) PostConfirmation(ctx context.Context, channelID int64, text string, candidateIDs []int64) (usecase.Prompt, error) {
	channel := strconv.FormatInt(channelID, 10)

	embed := &discordgo.MessageEmbed{
		Description: fmt.Sprintf("%s\n\nReact with %s to confirm or %s to deny.", text, acceptEmoji, rejectEmoji),
		Color:       colorBlue,
	}

	var msg *discordgo.Message
	err := n.send(func() error {
		var sendErr error
		msg, sendErr = n.session.ChannelMessageSendEmbed(channel, embed)
		return sendErr
	})
	if err != nil {
		return usecase.Prompt{}, err
	}

	n.seedReactions(channel, msg.ID)
	return n.track(channel, msg.ID), nil
}

func (n *Notifier) MarkAccepted(ctx context.Context, channelID int64, promptID string, acceptedIDs []int64) {
	channel := strconv.FormatInt(channelID, 10)

	mentions := make([]string, 0, len(acceptedIDs))
	for _, id := range acceptedIDs {
		mentions = append(mentions, fmt.Sprintf("<@%d>", id))
	}
	content := fmt.Sprintf("Ready: %s", strings.Join(mentions, " "))

	if err := n.send(func() error {
		_, editErr := n.session.ChannelMessageEdit(channel, promptID, content)
		return editErr
	}); err != nil {
		n.logger.DebugContext(ctx, "prompt progress edit failed", "prompt_id", promptID, "error", err)
	}
}

func (n *Notifier) Close(ctx context.Context, channelID int64, promptID, summary string) {
	n.mu.Lock()
	if p, ok := n.prompts[promptID]; ok {
		close(p.signals)
		delete(n.prompts, promptID)
	}
	n.mu.Unlock()

	channel := strconv.FormatInt(channelID, 10)
	embed := &discordgo.MessageEmbed{Description: summary, Color: colorGrey}
	if err := n.send(func() error {
		_, editErr := n.session.ChannelMessageEditEmbed(channel, promptID, embed)
		return editErr
	}); err != nil {
		n.logger.WarnContext(ctx, "prompt close edit failed", "prompt_id", promptID, "error", err)
	}
}

func (n *Notifier) track(channelID, messageID string) usecase.Prompt {
	p := &promptState{
		channelID: channelID,
		signals:   make(chan usecase.ReadySignal, signalBuffer),
	}
	n.mu.Lock()
	n.prompts[messageID] = p
	n.mu.Unlock()
	return usecase.Prompt{ID: messageID, Signals: p.signals}
}

func (n *Notifier) onReactionAdd(_ *discordgo.Session, e *discordgo.MessageReactionAdd) {
	var accept bool
	switch e.Emoji.Name {
	case acceptEmoji:
		accept = true
	case rejectEmoji:
		accept = false
	default:
		return
	}

	playerID, err := strconv.ParseInt(e.UserID, 10, 64)
	if err != nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.prompts[e.MessageID]
	if !ok {
		return
	}
	select {
	case p.signals <- usecase.ReadySignal{PlayerID: playerID, Accept: accept}:
	default:
		n.logger.Warn("dropping reaction, signal buffer full", "message_id", e.MessageID, "player_id", playerID)
	}
}

func (n *Notifier) seedReactions(channelID, messageID string) {
	for _, emoji := range []string{acceptEmoji, rejectEmoji} {
		if err := n.session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
			n.logger.Debug("seed reaction failed", "message_id", messageID, "emoji", emoji, "error", err)
		}
	}
}

// send runs a Discord API call behind the circuit breaker, marking failures
// as transient so callers know the outage is on Discord's side.
func (n *Notifier) send(op func() error) error {
	if err := n.breaker.Allow(); err != nil {
		return errors.Mark(err, ErrUnavailable)
	}
	if err := op(); err != nil {
		n.breaker.RecordFailure()
		return errors.Mark(err, ErrUnavailable)
	}
	n.breaker.RecordSuccess()
	return nil
}

func teamField(team []match.Participant) string {
	lines := make([]string, 0, len(team))
	for _, p := range team {
		lines = append(lines, fmt.Sprintf("%s <@%d>", roleLabel(p.Role), p.PlayerID))
	}
	return strings.Join(lines, "\n")
}

func roleLabel(r queue.Role) string {
	switch r {
	case queue.RoleTop:
		return "Top"
	case queue.RoleJungle:
		return "Jungle"
	case queue.RoleMid:
		return "Mid"
	case queue.RoleBot:
		return "Bot"
	case queue.RoleSupport:
		return "Support"
	}
	return string(r)
}
