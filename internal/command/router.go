package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/coord"
	"github.com/denlab/denmusic/internal/discord"
	"github.com/denlab/denmusic/internal/player"
	"github.com/denlab/denmusic/internal/repository"
	"github.com/denlab/denmusic/internal/resolver"
	"github.com/google/uuid"
)

const (
	commandTimeout    = 30 * time.Second
	statsRecentLimit  = 5
	queueDisplayLimit = 10
)

// Router is the inbound request surface: it turns slash interactions into
// coordination and playback calls. The requester's voice channel names the
// target session; the coordinator decides which agent serves it.
type Router struct {
	cfg      *config.Config
	coord    *coord.Coordinator
	registry *coord.Registry
	engine   player.Engine
	resolver resolver.Resolver
	repo     repository.ServeHistoryRepository
	notifier coord.Notifier
}

func NewRouter(cfg *config.Config, c *coord.Coordinator, registry *coord.Registry, engine player.Engine, res resolver.Resolver, repo repository.ServeHistoryRepository, notifier coord.Notifier) *Router {
	return &Router{
		cfg:      cfg,
		coord:    c,
		registry: registry,
		engine:   engine,
		resolver: res,
		repo:     repo,
		notifier: notifier,
	}
}

// HandleInteraction processes one slash command received by receiverID.
// Requests are handled in arrival order; the claim of an unowned session is
// decided by whichever hand-off records its assignment first.
func (r *Router) HandleInteraction(receiverID string, ev discord.InteractionEvent) {
	requestID := uuid.NewString()
	logger := slog.With("request_id", requestID, "command", ev.CommandName, "guild_id", ev.GuildID, "user_id", ev.UserID)

	if ev.GuildID != r.cfg.DiscordGuildID {
		logger.Info("ignoring command for different guild", "configured_guild_id", r.cfg.DiscordGuildID)
		r.reply(ev, messageEphemeralWrongGuild, logger)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch ev.CommandName {
	case commandPlay:
		r.handlePlay(ctx, receiverID, ev, logger)
	case commandSkip, commandStop, commandPause, commandResume, commandVolume, commandQueue, commandAutoplay, commandDisconnect:
		r.handleControl(ctx, receiverID, ev, logger)
	case commandStats:
		r.handleStats(ctx, ev, logger)
	case commandHelp:
		r.reply(ev, messageHelp, logger)
	default:
		logger.Warn("unknown command")
		r.reply(ev, messageEphemeralUnknownCommand, logger)
	}
}

func (r *Router) handlePlay(ctx context.Context, receiverID string, ev discord.InteractionEvent, logger *slog.Logger) {
	session, ok := r.requesterSession(receiverID, ev, logger)
	if !ok {
		return
	}
	logger = logger.With("session_key", session.String())

	track, err := r.resolver.Resolve(ctx, ev.Options[optionQuery], ev.UserID)
	if err != nil {
		if errors.Is(err, resolver.ErrNoResults) {
			r.reply(ev, messageEphemeralNoResults, logger)
			return
		}
		logger.Error("track resolution failed", "error", err)
		r.reply(ev, messageEphemeralNoResults, logger)
		return
	}

	agentID, ok := r.coord.LiveOwner(session)
	if !ok {
		agentID, ok = r.claimSession(ctx, session, ev, logger)
		if !ok {
			return
		}
	}

	position, err := r.engine.Enqueue(ctx, session.GuildID, session.ChannelID, agentID, *track)
	if err != nil {
		logger.Error("enqueue failed", "agent_id", agentID, "error", err)
		r.reply(ev, messageEphemeralEnqueueFailed, logger)
		return
	}
	logger.Info("track routed", "agent_id", agentID, "title", track.Title, "position", position)
	if position == 0 {
		r.reply(ev, nowPlayingReply(track.Title, session.ChannelID), logger)
		return
	}
	r.reply(ev, queuedReply(track.Title, position), logger)
}

// claimSession selects an agent for an unowned session and hands it off.
// A hand-off superseded by a concurrent claim routes to the winner instead
// of failing the request.
func (r *Router) claimSession(ctx context.Context, session coord.SessionID, ev discord.InteractionEvent, logger *slog.Logger) (string, bool) {
	agentID, ok := r.coord.BestAgentFor(session)
	if !ok {
		health := r.coord.Health()
		logger.Warn("capacity exhausted", "total_agents", health.TotalAgents, "online_agents", health.OnlineAgents)
		r.reply(ev, allBusyMessage(health.TotalAgents), logger)
		return "", false
	}

	if err := r.coord.HandOff(ctx, agentID, session); err != nil {
		if errors.Is(err, coord.ErrClaimSuperseded) {
			if winner, ok := r.coord.LiveOwner(session); ok {
				logger.Info("routing to concurrent claim winner", "agent_id", winner)
				return winner, true
			}
		}
		logger.Error("hand-off failed", "agent_id", agentID, "error", err)
		r.reply(ev, messageEphemeralHandOffFailed, logger)
		return "", false
	}
	return agentID, true
}

func (r *Router) handleControl(ctx context.Context, receiverID string, ev discord.InteractionEvent, logger *slog.Logger) {
	session, ok := r.requesterSession(receiverID, ev, logger)
	if !ok {
		return
	}
	logger = logger.With("session_key", session.String())

	owner, ok := r.coord.LiveOwner(session)
	if !ok {
		r.reply(ev, messageEphemeralNotServing, logger)
		return
	}

	switch ev.CommandName {
	case commandSkip:
		skipped, err := r.engine.Skip(session.GuildID)
		if err != nil {
			r.replyEngineError(ev, err, logger)
			return
		}
		r.reply(ev, skippedReply(skipped.Title), logger)
	case commandStop:
		if err := r.engine.Stop(session.GuildID); err != nil {
			r.replyEngineError(ev, err, logger)
			return
		}
		r.reply(ev, messageEphemeralStopped, logger)
	case commandPause:
		if err := r.engine.Pause(session.GuildID); err != nil {
			r.replyEngineError(ev, err, logger)
			return
		}
		r.reply(ev, messageEphemeralPaused, logger)
	case commandResume:
		if err := r.engine.Resume(session.GuildID); err != nil {
			r.replyEngineError(ev, err, logger)
			return
		}
		r.reply(ev, messageEphemeralResumed, logger)
	case commandVolume:
		percent, err := strconv.Atoi(ev.Options[optionPercent])
		if err != nil {
			r.reply(ev, messageEphemeralVolumeMissing, logger)
			return
		}
		if err := r.engine.SetVolume(ctx, session.GuildID, percent); err != nil {
			switch {
			case errors.Is(err, player.ErrNotServing):
				r.reply(ev, messageEphemeralNotServing, logger)
			case errors.Is(err, player.ErrVolumeOutOfRange):
				r.reply(ev, messageEphemeralVolumeMissing, logger)
			default:
				r.reply(ev, messageEphemeralCommandFailed, logger)
			}
			return
		}
		r.reply(ev, volumeReply(percent), logger)
	case commandQueue:
		snap, err := r.engine.Snapshot(session.GuildID)
		if err != nil {
			r.replyEngineError(ev, err, logger)
			return
		}
		r.reply(ev, formatQueue(snap), logger)
	case commandAutoplay:
		snap, err := r.engine.Snapshot(session.GuildID)
		if err != nil {
			r.replyEngineError(ev, err, logger)
			return
		}
		enabled, err := r.engine.SetAutoplay(ctx, session.GuildID, !snap.Autoplay)
		if err != nil {
			r.replyEngineError(ev, err, logger)
			return
		}
		r.reply(ev, autoplayReply(enabled), logger)
	case commandDisconnect:
		if err := r.engine.StopServing(session.GuildID, session.ChannelID); err != nil {
			logger.Error("stop serving failed", "agent_id", owner, "error", err)
		}
		r.coord.Release(owner)
		if r.notifier != nil {
			r.notifier.SessionVacated(session, owner, "disconnected by user command")
		}
		logger.Info("session disconnected by user", "agent_id", owner)
		r.reply(ev, messageEphemeralDisconnected, logger)
	}
}

func (r *Router) handleStats(ctx context.Context, ev discord.InteractionEvent, logger *slog.Logger) {
	stats := r.coord.AgentStats()
	health := r.coord.Health()

	var b strings.Builder
	b.WriteString(":robot: **Bot fleet**\n")
	for _, info := range r.registry.Snapshot() {
		stat := stats[info.ID]
		line := fmt.Sprintf("%s **%s** — %s", livenessEmoji(stat.Liveness), info.ID, stat.Liveness)
		if stat.Session != "" {
			line += fmt.Sprintf(", serving `%s`", stat.Session)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(fmt.Sprintf("\n:bar_chart: **Health**: %d/%d online, %d active session(s)\n",
		health.OnlineAgents, health.TotalAgents, health.ActiveSessions))

	if r.repo != nil {
		recent, err := r.repo.ListRecentServeSessions(ctx, statsRecentLimit)
		if err != nil {
			logger.Warn("failed to load recent serve sessions", "error", err)
		} else if len(recent) > 0 {
			b.WriteString("\n:scroll: **Recent sessions**\n")
			for _, s := range recent {
				b.WriteString(fmt.Sprintf("`%s` in <#%s> — %d track(s), %s\n", s.AgentID, s.ChannelID, s.TracksPlayed, s.Status))
			}
		}
	}
	r.reply(ev, b.String(), logger)
}

// requesterSession resolves the voice session the requesting user is in.
func (r *Router) requesterSession(receiverID string, ev discord.InteractionEvent, logger *slog.Logger) (coord.SessionID, bool) {
	handle, ok := r.registry.Handle(receiverID)
	if !ok {
		logger.Warn("interaction received by unknown agent", "agent_id", receiverID)
		r.reply(ev, messageEphemeralVoiceLookupFailed, logger)
		return coord.SessionID{}, false
	}
	channelID, err := handle.GetUserVoiceChannelID(ev.GuildID, ev.UserID)
	if err != nil {
		logger.Error("voice channel lookup failed", "error", err)
		r.reply(ev, messageEphemeralVoiceLookupFailed, logger)
		return coord.SessionID{}, false
	}
	if channelID == "" {
		r.reply(ev, messageEphemeralJoinVCFirst, logger)
		return coord.SessionID{}, false
	}
	return coord.SessionID{GuildID: ev.GuildID, ChannelID: channelID}, true
}

func (r *Router) replyEngineError(ev discord.InteractionEvent, err error, logger *slog.Logger) {
	if errors.Is(err, player.ErrNotServing) || errors.Is(err, player.ErrEmptyQueue) {
		r.reply(ev, messageEphemeralNotServing, logger)
		return
	}
	logger.Error("playback command failed", "error", err)
	r.reply(ev, messageEphemeralEnqueueFailed, logger)
}

func (r *Router) reply(ev discord.InteractionEvent, content string, logger *slog.Logger) {
	if ev.RespondEphemeral == nil {
		return
	}
	if err := ev.RespondEphemeral(content); err != nil {
		logger.Error("failed to respond to interaction", "error", err)
	}
}

func formatQueue(snap player.QueueSnapshot) string {
	if snap.Current == nil {
		return messageEphemeralQueueEmpty
	}
	var b strings.Builder
	state := "playing"
	if snap.Paused {
		state = "paused"
	}
	b.WriteString(fmt.Sprintf(":musical_note: **Now %s**: %s\n", state, snap.Current.Title))
	for i, track := range snap.Upcoming {
		if i == queueDisplayLimit {
			b.WriteString(fmt.Sprintf("…and %d more\n", len(snap.Upcoming)-queueDisplayLimit))
			break
		}
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, track.Title))
	}
	b.WriteString(fmt.Sprintf("\nVolume %d%% · Autoplay %s", snap.Volume, onOff(snap.Autoplay)))
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func livenessEmoji(l coord.Liveness) string {
	switch l {
	case coord.LivenessOnline:
		return ":green_circle:"
	case coord.LivenessReconnecting:
		return ":arrows_counterclockwise:"
	case coord.LivenessInitializing:
		return ":hourglass:"
	case coord.LivenessError:
		return ":yellow_circle:"
	default:
		return ":red_circle:"
	}
}
