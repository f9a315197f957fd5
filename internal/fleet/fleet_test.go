package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denlab/denmusic/internal/command"
	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/coord"
	"github.com/denlab/denmusic/internal/discord"
)

type fakeAgent struct {
	id         string
	connectErr error

	mu               sync.Mutex
	participants     map[string][]discord.VoiceParticipant
	voiceHandler     func(discord.VoiceStateEvent)
	interactions     func(discord.InteractionEvent)
	onReady          func()
	onDisconnect     func()
	onResumed        func()
	upsertedCommands int
	closed           bool
}

func (a *fakeAgent) ID() string { return a.id }

func (a *fakeAgent) Connect(ctx context.Context) error { return a.connectErr }

func (a *fakeAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAgent) BotUserID() (string, error) { return "user-" + a.id, nil }

func (a *fakeAgent) Join(ctx context.Context, guildID, channelID string) error { return nil }
func (a *fakeAgent) Leave(guildID string) error                                { return nil }
func (a *fakeAgent) IsConnectedTo(guildID, channelID string) bool              { return false }
func (a *fakeAgent) GetUserVoiceChannelID(guildID, userID string) (string, error) {
	return "", nil
}

func (a *fakeAgent) ListVoiceParticipants(guildID, channelID string) ([]discord.VoiceParticipant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.participants[channelID], nil
}

func (a *fakeAgent) SendChannelMessage(channelID, content string) error { return nil }

func (a *fakeAgent) RegisterVoiceStateUpdateHandler(handler func(discord.VoiceStateEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.voiceHandler = handler
}

func (a *fakeAgent) RegisterInteractionHandler(handler func(discord.InteractionEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interactions = handler
}

func (a *fakeAgent) RegisterConnectionHandlers(onReady, onDisconnect, onResumed func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onReady = onReady
	a.onDisconnect = onDisconnect
	a.onResumed = onResumed
}

func (a *fakeAgent) UpsertGuildSlashCommands(guildID string, defs []discord.SlashCommandDefinition) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.upsertedCommands = len(defs)
	return nil
}

func (a *fakeAgent) SetIdlePresence() error                       { return nil }
func (a *fakeAgent) SetListeningPresence(trackTitle string) error { return nil }

type fixture struct {
	fleet    *Fleet
	registry *coord.Registry
	events   <-chan coord.Event
	agents   map[string]*fakeAgent
}

func newFixture(t *testing.T, tokens ...string) *fixture {
	t.Helper()
	cfg := &config.Config{DiscordGuildID: "guild-1", DiscordTokens: tokens}
	registry := coord.NewRegistry()
	dispatcher := coord.NewDispatcher(16)
	agents := make(map[string]*fakeAgent)
	factory := func(id, token string) discord.Agent {
		agent := &fakeAgent{id: id, participants: make(map[string][]discord.VoiceParticipant)}
		if token == "bad-token" {
			agent.connectErr = errors.New("invalid token")
		}
		agents[id] = agent
		return agent
	}
	router := command.NewRouter(cfg, coord.NewCoordinator(registry, coord.NewTable(), nil, 0), registry, nil, nil, nil, nil)
	return &fixture{
		fleet:    NewFleet(cfg, registry, dispatcher, router, factory),
		registry: registry,
		events:   dispatcher.Subscribe(),
		agents:   agents,
	}
}

func TestStartConnectsFleetAndWiresPrimary(t *testing.T) {
	f := newFixture(t, "token-1", "token-2")

	err := f.fleet.Start(context.Background())
	require.NoError(t, err)

	require.Len(t, f.agents, 2)
	info, ok := f.registry.Info("den-music-1")
	require.True(t, ok)
	assert.Equal(t, coord.LivenessOnline, info.Liveness)
	info, ok = f.registry.Info("den-music-2")
	require.True(t, ok)
	assert.Equal(t, coord.LivenessOnline, info.Liveness)

	primary := f.agents["den-music-1"]
	secondary := f.agents["den-music-2"]
	assert.Equal(t, len(command.SlashCommandDefinitions()), primary.upsertedCommands)
	assert.NotNil(t, primary.voiceHandler)
	assert.NotNil(t, primary.interactions)
	assert.Equal(t, 0, secondary.upsertedCommands, "only the primary registers commands")
	assert.Nil(t, secondary.voiceHandler)
}

func TestStartSkipsFailedTokenButKeepsFleetUp(t *testing.T) {
	f := newFixture(t, "bad-token", "token-2")

	err := f.fleet.Start(context.Background())
	require.NoError(t, err)

	info, _ := f.registry.Info("den-music-1")
	assert.Equal(t, coord.LivenessError, info.Liveness)
	info, _ = f.registry.Info("den-music-2")
	assert.Equal(t, coord.LivenessOnline, info.Liveness)

	// The surviving agent becomes the primary.
	assert.NotNil(t, f.agents["den-music-2"].voiceHandler)
}

func TestStartFailsWhenNoAgentConnects(t *testing.T) {
	f := newFixture(t, "bad-token")
	err := f.fleet.Start(context.Background())
	require.Error(t, err)
}

func TestVoiceStateTranslatesMembershipChange(t *testing.T) {
	f := newFixture(t, "token-1")
	require.NoError(t, f.fleet.Start(context.Background()))
	primary := f.agents["den-music-1"]
	primary.participants["vc-1"] = []discord.VoiceParticipant{
		{UserID: "user-1", IsBot: false},
		{UserID: "user-den-music-1", IsBot: true},
	}

	// A human moved from vc-1 to vc-2: both channels get a recount.
	primary.voiceHandler(discord.VoiceStateEvent{
		GuildID:         "guild-1",
		UserID:          "user-2",
		BeforeChannelID: "vc-1",
		AfterChannelID:  "vc-2",
	})

	ev := <-f.events
	assert.Equal(t, coord.EventMembershipChange, ev.Kind)
	assert.Equal(t, coord.SessionID{GuildID: "guild-1", ChannelID: "vc-1"}, ev.Session)
	assert.Equal(t, 1, ev.NonAgentCount, "bots must not count as participants")

	ev = <-f.events
	assert.Equal(t, coord.EventMembershipChange, ev.Kind)
	assert.Equal(t, coord.SessionID{GuildID: "guild-1", ChannelID: "vc-2"}, ev.Session)
	assert.Equal(t, 0, ev.NonAgentCount)
}

func TestVoiceStateTranslatesOwnAgentForcedExit(t *testing.T) {
	f := newFixture(t, "token-1", "token-2")
	require.NoError(t, f.fleet.Start(context.Background()))
	primary := f.agents["den-music-1"]

	primary.voiceHandler(discord.VoiceStateEvent{
		GuildID:         "guild-1",
		UserID:          "user-den-music-2",
		UserIsBot:       true,
		BeforeChannelID: "vc-1",
	})

	ev := <-f.events
	assert.Equal(t, coord.EventAgentLeftSession, ev.Kind)
	assert.Equal(t, "den-music-2", ev.AgentID)
	assert.Equal(t, coord.SessionID{GuildID: "guild-1", ChannelID: "vc-1"}, ev.Session)
}

func TestVoiceStateIgnoresOtherGuilds(t *testing.T) {
	f := newFixture(t, "token-1")
	require.NoError(t, f.fleet.Start(context.Background()))
	f.agents["den-music-1"].voiceHandler(discord.VoiceStateEvent{
		GuildID:         "guild-other",
		UserID:          "user-9",
		BeforeChannelID: "vc-1",
	})
	assert.Empty(t, f.events)
}

func TestConnectionCallbacksBecomeLivenessEvents(t *testing.T) {
	f := newFixture(t, "token-1")
	require.NoError(t, f.fleet.Start(context.Background()))
	agent := f.agents["den-music-1"]

	agent.onDisconnect()
	ev := <-f.events
	assert.Equal(t, coord.EventAgentReconnecting, ev.Kind, "a dropped gateway is retried, not dead")
	assert.Equal(t, "den-music-1", ev.AgentID)

	agent.onResumed()
	ev = <-f.events
	assert.Equal(t, coord.EventAgentReady, ev.Kind)

	agent.onReady()
	ev = <-f.events
	assert.Equal(t, coord.EventAgentReady, ev.Kind)
}

func TestCloseMarksAgentsOffline(t *testing.T) {
	f := newFixture(t, "token-1", "token-2")
	require.NoError(t, f.fleet.Start(context.Background()))

	f.fleet.Close()

	kinds := map[string]coord.EventKind{}
	for i := 0; i < 2; i++ {
		ev := <-f.events
		kinds[ev.AgentID] = ev.Kind
	}
	assert.Equal(t, coord.EventAgentDisconnect, kinds["den-music-1"])
	assert.Equal(t, coord.EventAgentDisconnect, kinds["den-music-2"])
}

func TestCloseClosesEveryAgent(t *testing.T) {
	f := newFixture(t, "token-1", "token-2")
	require.NoError(t, f.fleet.Start(context.Background()))

	f.fleet.Close()

	assert.True(t, f.agents["den-music-1"].closed)
	assert.True(t, f.agents["den-music-2"].closed)
}
