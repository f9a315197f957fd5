package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/denlab/denmusic/internal/command"
	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/coord"
	"github.com/denlab/denmusic/internal/discord"
)

const agentConnectTimeout = 20 * time.Second

// AgentFactory builds the live handle for one bot token.
type AgentFactory func(id, token string) discord.Agent

// Fleet owns the set of agent processes inside this coordinating process:
// one discord connection per configured token. It registers every agent
// with the coordination registry and translates gateway callbacks into the
// shared event stream. Only the primary agent registers the guild-wide
// voice-state handler and the slash commands, so each membership change is
// observed exactly once.
type Fleet struct {
	cfg        *config.Config
	registry   *coord.Registry
	dispatcher *coord.Dispatcher
	router     *command.Router
	newAgent   AgentFactory

	mu              sync.Mutex
	agents          []discord.Agent
	agentIDByUserID map[string]string
}

func NewFleet(cfg *config.Config, registry *coord.Registry, dispatcher *coord.Dispatcher, router *command.Router, newAgent AgentFactory) *Fleet {
	return &Fleet{
		cfg:             cfg,
		registry:        registry,
		dispatcher:      dispatcher,
		router:          router,
		newAgent:        newAgent,
		agentIDByUserID: make(map[string]string),
	}
}

// Start connects every configured agent. A token that fails to connect is
// registered with error liveness and skipped, mirroring how agents may
// appear and disappear independently of how they were started; Start only
// fails when no agent at all comes up.
func (f *Fleet) Start(ctx context.Context) error {
	for i, token := range f.cfg.DiscordTokens {
		agentID := agentName(i)
		agent := f.newAgent(agentID, token)
		f.registry.Register(agentID, agent)

		connectCtx, cancel := context.WithTimeout(ctx, agentConnectTimeout)
		err := agent.Connect(connectCtx)
		cancel()
		if err != nil {
			slog.Error("agent failed to connect", "agent_id", agentID, "error", err)
			f.registry.SetLiveness(agentID, coord.LivenessError)
			continue
		}

		userID, err := agent.BotUserID()
		if err != nil {
			slog.Error("agent user id lookup failed", "agent_id", agentID, "error", err)
			f.registry.SetLiveness(agentID, coord.LivenessError)
			_ = agent.Close()
			continue
		}

		f.wireConnectionEvents(agentID, agent)
		f.registry.SetLiveness(agentID, coord.LivenessOnline)
		if err := agent.SetIdlePresence(); err != nil {
			slog.Debug("failed to set idle presence", "agent_id", agentID, "error", err)
		}

		f.mu.Lock()
		f.agents = append(f.agents, agent)
		f.agentIDByUserID[userID] = agentID
		f.mu.Unlock()
		slog.Info("agent connected", "agent_id", agentID, "bot_user_id", userID)
	}

	f.mu.Lock()
	connected := len(f.agents)
	var primary discord.Agent
	if connected > 0 {
		primary = f.agents[0]
	}
	f.mu.Unlock()
	if connected == 0 {
		return fmt.Errorf("no agent could connect (%d token(s) configured)", len(f.cfg.DiscordTokens))
	}
	slog.Info("fleet started", "connected", connected, "configured", len(f.cfg.DiscordTokens))

	if err := primary.UpsertGuildSlashCommands(f.cfg.DiscordGuildID, command.SlashCommandDefinitions()); err != nil {
		return fmt.Errorf("failed to upsert slash commands: %w", err)
	}
	primaryID := primary.ID()
	primary.RegisterInteractionHandler(func(ev discord.InteractionEvent) {
		go f.router.HandleInteraction(primaryID, ev)
	})
	primary.RegisterVoiceStateUpdateHandler(f.handleVoiceState)
	slog.Info("primary agent handlers registered", "agent_id", primaryID, "guild_id", f.cfg.DiscordGuildID)
	return nil
}

func (f *Fleet) Close() {
	f.mu.Lock()
	agents := append([]discord.Agent(nil), f.agents...)
	f.mu.Unlock()
	for _, agent := range agents {
		f.dispatcher.Publish(coord.Event{Kind: coord.EventAgentDisconnect, AgentID: agent.ID()})
		if err := agent.Close(); err != nil {
			slog.Error("agent close failed", "agent_id", agent.ID(), "error", err)
		}
	}
}

// wireConnectionEvents maps gateway callbacks onto liveness events. A
// dropped gateway connection is retried by the discord library on its own,
// so it surfaces as reconnecting rather than offline; offline is reserved
// for agents the fleet closes.
func (f *Fleet) wireConnectionEvents(agentID string, agent discord.Agent) {
	agent.RegisterConnectionHandlers(
		func() { f.dispatcher.Publish(coord.Event{Kind: coord.EventAgentReady, AgentID: agentID}) },
		func() { f.dispatcher.Publish(coord.Event{Kind: coord.EventAgentReconnecting, AgentID: agentID}) },
		func() { f.dispatcher.Publish(coord.Event{Kind: coord.EventAgentReady, AgentID: agentID}) },
	)
}

// handleVoiceState runs on the primary agent's gateway callbacks for every
// voice movement in the guild.
func (f *Fleet) handleVoiceState(ev discord.VoiceStateEvent) {
	if ev.GuildID != f.cfg.DiscordGuildID {
		return
	}

	f.mu.Lock()
	agentID, isFleetAgent := f.agentIDByUserID[ev.UserID]
	f.mu.Unlock()
	if isFleetAgent {
		// An externally forced disconnect of one of our own agents is not
		// advisory; it releases the assignment immediately.
		if ev.BeforeChannelID != "" && ev.AfterChannelID == "" {
			f.dispatcher.Publish(coord.Event{
				Kind:    coord.EventAgentLeftSession,
				AgentID: agentID,
				Session: coord.SessionID{GuildID: ev.GuildID, ChannelID: ev.BeforeChannelID},
			})
		}
		return
	}

	for _, channelID := range affectedChannels(ev) {
		count := f.countNonBotParticipants(ev.GuildID, channelID)
		f.dispatcher.Publish(coord.Event{
			Kind:          coord.EventMembershipChange,
			Session:       coord.SessionID{GuildID: ev.GuildID, ChannelID: channelID},
			NonAgentCount: count,
		})
	}
}

func affectedChannels(ev discord.VoiceStateEvent) []string {
	channels := make([]string, 0, 2)
	if ev.BeforeChannelID != "" {
		channels = append(channels, ev.BeforeChannelID)
	}
	if ev.AfterChannelID != "" && ev.AfterChannelID != ev.BeforeChannelID {
		channels = append(channels, ev.AfterChannelID)
	}
	return channels
}

func (f *Fleet) countNonBotParticipants(guildID, channelID string) int {
	f.mu.Lock()
	var primary discord.Agent
	if len(f.agents) > 0 {
		primary = f.agents[0]
	}
	f.mu.Unlock()
	if primary == nil {
		return 0
	}
	participants, err := primary.ListVoiceParticipants(guildID, channelID)
	if err != nil {
		slog.Warn("failed to list voice participants", "guild_id", guildID, "channel_id", channelID, "error", err)
		return 0
	}
	count := 0
	for _, p := range participants {
		if !p.IsBot {
			count++
		}
	}
	return count
}

func agentName(index int) string {
	return fmt.Sprintf("den-music-%d", index+1)
}
