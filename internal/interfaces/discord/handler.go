package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/platform/logging"
	"github.com/inhouse-gg/queuebot/internal/usecase"
)

const commandPrefix = "!"

const commandTimeout = 10 * time.Second

// Handler turns chat commands into queue, scoring and admin operations.
type Handler struct {
	queue      *usecase.QueueService
	matches    *usecase.MatchService
	matchmaker *usecase.Matchmaker
	logger     *logging.Logger

	detach func()
}

func NewHandler(
	session *discordgo.Session,
	queueSvc *usecase.QueueService,
	matches *usecase.MatchService,
	matchmaker *usecase.Matchmaker,
	logger *logging.Logger,
) *Handler {
	h := &Handler{
		queue:      queueSvc,
		matches:    matches,
		matchmaker: matchmaker,
		logger:     logger,
	}
	h.detach = session.AddHandler(h.onMessageCreate)
	return h
}

func (h *Handler) Shutdown() {
	if h.detach != nil {
		h.detach()
	}
}

func (h *Handler) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || !strings.HasPrefix(m.Content, commandPrefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, commandPrefix))
	if len(fields) == 0 {
		return
	}
	command, args := strings.ToLower(fields[0]), fields[1:]

	ids, err := messageIDs(m)
	if err != nil {
		h.logger.Warn("unparsable message ids", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var reply string
	switch command {
	case "queue":
		reply = h.handleQueue(ctx, ids, m, args)
	case "leave":
		reply = h.handleLeave(ctx, ids, m)
	case "leaveall":
		reply = h.handleLeaveAll(ctx, ids, m)
	case "duo":
		reply = h.handleDuo(ctx, ids, m, args)
	case "solo":
		reply = h.handleSolo(ctx, ids, m)
	case "won":
		h.handleScore(s, ids, true)
		return
	case "lost":
		h.handleScore(s, ids, false)
		return
	case "cancelgame":
		h.handleCancelGame(s, ids)
		return
	case "resetqueue":
		reply = h.handleReset(ctx, ids)
	default:
		return
	}

	if reply != "" {
		if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
			h.logger.Warn("reply failed", "channel_id", m.ChannelID, "error", err)
		}
	}
}

func (h *Handler) handleQueue(ctx context.Context, ids messageRefs, m *discordgo.MessageCreate, args []string) string {
	if len(args) != 1 {
		return "Usage: `!queue <top|jgl|mid|bot|sup>`"
	}
	role, ok := parseRole(args[0])
	if !ok {
		return fmt.Sprintf("Unknown role %q.", args[0])
	}

	err := h.queue.AddPlayer(ctx, usecase.AddPlayerInput{
		PlayerID:  ids.player,
		Name:      displayName(m),
		Role:      role,
		ChannelID: ids.channel,
		ServerID:  ids.server,
	})
	if err != nil {
		return userError(err)
	}

	h.triggerCycle(ctx, ids.channel)
	return fmt.Sprintf("%s queued for %s.", displayName(m), role)
}

func (h *Handler) handleLeave(ctx context.Context, ids messageRefs, m *discordgo.MessageCreate) string {
	if err := h.queue.RemovePlayer(ctx, ids.player, ids.channel); err != nil {
		return userError(err)
	}
	return fmt.Sprintf("%s left the queue.", displayName(m))
}

func (h *Handler) handleLeaveAll(ctx context.Context, ids messageRefs, m *discordgo.MessageCreate) string {
	if err := h.queue.RemovePlayer(ctx, ids.player, 0); err != nil {
		return userError(err)
	}
	return fmt.Sprintf("%s left every queue.", displayName(m))
}

func (h *Handler) handleDuo(ctx context.Context, ids messageRefs, m *discordgo.MessageCreate, args []string) string {
	if len(args) != 3 || len(m.Mentions) != 1 {
		return "Usage: `!duo <your role> @partner <partner role>`"
	}
	myRole, ok := parseRole(args[0])
	if !ok {
		return fmt.Sprintf("Unknown role %q.", args[0])
	}
	partnerRole, ok := parseRole(args[2])
	if !ok {
		return fmt.Sprintf("Unknown role %q.", args[2])
	}
	partner := m.Mentions[0]
	partnerID, err := strconv.ParseInt(partner.ID, 10, 64)
	if err != nil {
		return "Could not resolve the mentioned partner."
	}

	err = h.queue.AddDuo(ctx, usecase.AddDuoInput{
		First: usecase.AddPlayerInput{
			PlayerID:  ids.player,
			Name:      displayName(m),
			Role:      myRole,
			ChannelID: ids.channel,
			ServerID:  ids.server,
		},
		Second: usecase.AddPlayerInput{
			PlayerID:  partnerID,
			Name:      partner.Username,
			Role:      partnerRole,
			ChannelID: ids.channel,
			ServerID:  ids.server,
		},
	})
	if err != nil {
		return userError(err)
	}

	h.triggerCycle(ctx, ids.channel)
	return fmt.Sprintf("%s (%s) and %s (%s) queued as a duo.", displayName(m), myRole, partner.Username, partnerRole)
}

func (h *Handler) handleSolo(ctx context.Context, ids messageRefs, m *discordgo.MessageCreate) string {
	if err := h.queue.RemoveDuo(ctx, ids.player, ids.channel); err != nil {
		return userError(err)
	}
	return fmt.Sprintf("%s is queuing solo again.", displayName(m))
}

// handleScore and handleCancelGame block on a confirmation round that can
// take minutes, so they run detached from the command context. The prompt
// itself narrates the resolution; only refusals get a direct reply.
func (h *Handler) handleScore(s *discordgo.Session, ids messageRefs, won bool) {
	go func() {
		err := h.matches.ScoreGame(context.Background(), ids.server, ids.channel, ids.player, won)
		if err != nil {
			h.replyError(s, ids, err)
		}
	}()
}

func (h *Handler) handleCancelGame(s *discordgo.Session, ids messageRefs) {
	go func() {
		ctx := context.Background()
		err := h.matches.CancelGame(ctx, ids.server, ids.channel, ids.player)
		if err != nil {
			h.replyError(s, ids, err)
			return
		}
		h.triggerCycle(ctx, ids.channel)
	}()
}

func (h *Handler) replyError(s *discordgo.Session, ids messageRefs, err error) {
	channel := strconv.FormatInt(ids.channel, 10)
	if _, sendErr := s.ChannelMessageSend(channel, userError(err)); sendErr != nil {
		h.logger.Warn("reply failed", "channel_id", ids.channel, "error", sendErr)
	}
}

func (h *Handler) handleReset(ctx context.Context, ids messageRefs) string {
	if err := h.queue.Reset(ctx, ids.channel); err != nil {
		return userError(err)
	}
	return "Queue cleared."
}

func (h *Handler) triggerCycle(ctx context.Context, channelID int64) {
	if err := h.matchmaker.QueueChanged(context.WithoutCancel(ctx), channelID); err != nil {
		h.logger.Warn("cycle scheduling failed", "channel_id", channelID, "error", err)
	}
}

type messageRefs struct {
	player  int64
	channel int64
	server  int64
}

func messageIDs(m *discordgo.MessageCreate) (messageRefs, error) {
	player, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		return messageRefs{}, fmt.Errorf("parse author id: %w", err)
	}
	channel, err := strconv.ParseInt(m.ChannelID, 10, 64)
	if err != nil {
		return messageRefs{}, fmt.Errorf("parse channel id: %w", err)
	}
	server, err := strconv.ParseInt(m.GuildID, 10, 64)
	if err != nil {
		return messageRefs{}, fmt.Errorf("parse guild id: %w", err)
	}
	return messageRefs{player: player, channel: channel, server: server}, nil
}

func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	return m.Author.Username
}

func parseRole(v string) (queue.Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "TOP":
		return queue.RoleTop, true
	case "JGL", "JUNGLE", "JG":
		return queue.RoleJungle, true
	case "MID":
		return queue.RoleMid, true
	case "BOT", "ADC":
		return queue.RoleBot, true
	case "SUP", "SUPPORT":
		return queue.RoleSupport, true
	}
	return "", false
}

func userError(err error) string {
	switch {
	case errors.Is(err, usecase.ErrPlayerInGame):
		return "You have a game in progress. Score it with `!won` or `!lost` first."
	case errors.Is(err, usecase.ErrPlayerInReadyCheck):
		return "You are in a ready check, answer it first."
	case errors.Is(err, usecase.ErrSameRolesForDuo):
		return "Duo partners must pick different roles."
	case errors.Is(err, usecase.ErrConfirmationInProgress):
		return "That game already has a confirmation running."
	case errors.Is(err, usecase.ErrNotFound):
		return "Nothing to do, no matching game found."
	case errors.Is(err, usecase.ErrInvalidInput):
		return "That command did not make sense here."
	default:
		return "Something went wrong, try again in a bit."
	}
}
