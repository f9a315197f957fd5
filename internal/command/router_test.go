package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/coord"
	"github.com/denlab/denmusic/internal/discord"
	"github.com/denlab/denmusic/internal/player"
	"github.com/denlab/denmusic/internal/resolver"
)

// stubAgent overrides only what the router touches; calling anything else
// through the embedded nil interface fails the test loudly.
type stubAgent struct {
	discord.Agent
	id          string
	userChannel map[string]string

	mu     sync.Mutex
	joins  []string
	leaves []string
}

func (a *stubAgent) ID() string { return a.id }

func (a *stubAgent) Join(ctx context.Context, guildID, channelID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.joins = append(a.joins, channelID)
	return nil
}

func (a *stubAgent) Leave(guildID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leaves = append(a.leaves, guildID)
	return nil
}

func (a *stubAgent) GetUserVoiceChannelID(guildID, userID string) (string, error) {
	return a.userChannel[userID], nil
}

type stubEngine struct {
	mu        sync.Mutex
	enqueues  []player.Track
	position  int
	stopped   []string
	snapshot  player.QueueSnapshot
	volumeErr error
}

func (e *stubEngine) Enqueue(ctx context.Context, guildID, channelID, agentID string, track player.Track) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enqueues = append(e.enqueues, track)
	return e.position, nil
}

func (e *stubEngine) Skip(guildID string) (*player.Track, error) {
	return &player.Track{Title: "skipped track"}, nil
}

func (e *stubEngine) Pause(guildID string) error  { return nil }
func (e *stubEngine) Resume(guildID string) error { return nil }
func (e *stubEngine) SetVolume(ctx context.Context, guildID string, percent int) error {
	return e.volumeErr
}
func (e *stubEngine) SetAutoplay(ctx context.Context, guildID string, enabled bool) (bool, error) {
	return enabled, nil
}
func (e *stubEngine) Snapshot(guildID string) (player.QueueSnapshot, error) {
	return e.snapshot, nil
}
func (e *stubEngine) Stop(guildID string) error { return nil }

func (e *stubEngine) StopServing(guildID, channelID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = append(e.stopped, channelID)
	return nil
}

type stubResolver struct {
	track *player.Track
	err   error
}

func (r *stubResolver) Resolve(ctx context.Context, query, requestedBy string) (*player.Track, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.track, nil
}

func (r *stubResolver) Related(ctx context.Context, track player.Track) (*player.Track, error) {
	return nil, resolver.ErrNoResults
}

type routerFixture struct {
	router   *Router
	registry *coord.Registry
	table    *coord.Table
	coord    *coord.Coordinator
	engine   *stubEngine
	agents   map[string]*stubAgent
}

func newRouterFixture(t *testing.T, agentIDs ...string) *routerFixture {
	t.Helper()
	cfg := &config.Config{DiscordGuildID: "guild-1"}
	registry := coord.NewRegistry()
	table := coord.NewTable()
	c := coord.NewCoordinator(registry, table, nil, time.Second)
	engine := &stubEngine{}
	res := &stubResolver{track: &player.Track{ID: "v1", Title: "Test Song"}}

	agents := make(map[string]*stubAgent)
	for _, id := range agentIDs {
		agent := &stubAgent{id: id, userChannel: map[string]string{"user-1": "vc-1"}}
		registry.Register(id, agent)
		registry.SetLiveness(id, coord.LivenessOnline)
		agents[id] = agent
	}

	return &routerFixture{
		router:   NewRouter(cfg, c, registry, engine, res, nil, nil),
		registry: registry,
		table:    table,
		coord:    c,
		engine:   engine,
		agents:   agents,
	}
}

func playEvent(replies *[]string) discord.InteractionEvent {
	return discord.InteractionEvent{
		GuildID:     "guild-1",
		CommandName: commandPlay,
		UserID:      "user-1",
		Options:     map[string]string{optionQuery: "test song"},
		RespondEphemeral: func(content string) error {
			*replies = append(*replies, content)
			return nil
		},
	}
}

func TestPlayClaimsIdleAgentForUnownedSession(t *testing.T) {
	f := newRouterFixture(t, "agent-1")
	var replies []string

	f.router.HandleInteraction("agent-1", playEvent(&replies))

	owner, ok := f.table.OwnerOf(coord.SessionID{GuildID: "guild-1", ChannelID: "vc-1"})
	require.True(t, ok)
	assert.Equal(t, "agent-1", owner)
	assert.Equal(t, []string{"vc-1"}, f.agents["agent-1"].joins)
	require.Len(t, f.engine.enqueues, 1)
	assert.Equal(t, "Test Song", f.engine.enqueues[0].Title)
	require.Len(t, replies, 1)
	assert.Equal(t, nowPlayingReply("Test Song", "vc-1"), replies[0])
}

func TestPlayRoutesToExistingLiveOwnerWithoutRejoining(t *testing.T) {
	f := newRouterFixture(t, "agent-1", "agent-2")
	session := coord.SessionID{GuildID: "guild-1", ChannelID: "vc-1"}
	f.table.Assign(session, "agent-2")
	f.registry.SetSession("agent-2", session)
	f.engine.position = 3
	var replies []string

	f.router.HandleInteraction("agent-1", playEvent(&replies))

	assert.Empty(t, f.agents["agent-1"].joins)
	assert.Empty(t, f.agents["agent-2"].joins, "existing owner must not be handed off again")
	require.Len(t, f.engine.enqueues, 1)
	require.Len(t, replies, 1)
	assert.Equal(t, queuedReply("Test Song", 3), replies[0])
}

func TestPlayRequiresVoiceChannel(t *testing.T) {
	f := newRouterFixture(t, "agent-1")
	f.agents["agent-1"].userChannel = map[string]string{}
	var replies []string

	f.router.HandleInteraction("agent-1", playEvent(&replies))

	assert.Empty(t, f.engine.enqueues)
	assert.Equal(t, 0, f.table.Len())
	require.Len(t, replies, 1)
	assert.Equal(t, messageEphemeralJoinVCFirst, replies[0])
}

func TestPlayCapacityExhaustedLeavesStateUntouched(t *testing.T) {
	f := newRouterFixture(t, "agent-1", "agent-2")
	for i, id := range []string{"agent-1", "agent-2"} {
		session := coord.SessionID{GuildID: "guild-1", ChannelID: string(rune('a' + i))}
		f.table.Assign(session, id)
		f.registry.SetSession(id, session)
	}
	before := f.table.Len()
	var replies []string

	f.router.HandleInteraction("agent-1", playEvent(&replies))

	assert.Equal(t, before, f.table.Len())
	assert.Empty(t, f.engine.enqueues)
	require.Len(t, replies, 1)
	assert.Equal(t, allBusyMessage(2), replies[0])
}

func TestWrongGuildIsRejected(t *testing.T) {
	f := newRouterFixture(t, "agent-1")
	var replies []string
	ev := playEvent(&replies)
	ev.GuildID = "other-guild"

	f.router.HandleInteraction("agent-1", ev)

	assert.Empty(t, f.engine.enqueues)
	require.Len(t, replies, 1)
	assert.Equal(t, messageEphemeralWrongGuild, replies[0])
}

func TestControlCommandWithoutServingSession(t *testing.T) {
	f := newRouterFixture(t, "agent-1")
	var replies []string
	ev := playEvent(&replies)
	ev.CommandName = commandSkip

	f.router.HandleInteraction("agent-1", ev)

	require.Len(t, replies, 1)
	assert.Equal(t, messageEphemeralNotServing, replies[0])
}

func TestDisconnectReleasesOwner(t *testing.T) {
	f := newRouterFixture(t, "agent-1", "agent-2")
	session := coord.SessionID{GuildID: "guild-1", ChannelID: "vc-1"}
	f.table.Assign(session, "agent-2")
	f.registry.SetSession("agent-2", session)
	var replies []string
	ev := playEvent(&replies)
	ev.CommandName = commandDisconnect

	f.router.HandleInteraction("agent-1", ev)

	_, owned := f.table.OwnerOf(session)
	assert.False(t, owned)
	info, _ := f.registry.Info("agent-2")
	assert.False(t, info.HasSession)
	assert.Equal(t, []string{"vc-1"}, f.engine.stopped)
	require.Len(t, replies, 1)
	assert.Equal(t, messageEphemeralDisconnected, replies[0])
}

func volumeEvent(replies *[]string, percent string) discord.InteractionEvent {
	ev := playEvent(replies)
	ev.CommandName = commandVolume
	ev.Options = map[string]string{optionPercent: percent}
	return ev
}

func TestVolumePersistenceFailureRepliesGeneric(t *testing.T) {
	f := newRouterFixture(t, "agent-1")
	session := coord.SessionID{GuildID: "guild-1", ChannelID: "vc-1"}
	f.table.Assign(session, "agent-1")
	f.registry.SetSession("agent-1", session)
	f.engine.volumeErr = errors.New("upsert guild settings: connection refused")
	var replies []string

	f.router.HandleInteraction("agent-1", volumeEvent(&replies, "50"))

	require.Len(t, replies, 1)
	assert.Equal(t, messageEphemeralCommandFailed, replies[0])
}

func TestVolumeOutOfRangeRepliesUsage(t *testing.T) {
	f := newRouterFixture(t, "agent-1")
	session := coord.SessionID{GuildID: "guild-1", ChannelID: "vc-1"}
	f.table.Assign(session, "agent-1")
	f.registry.SetSession("agent-1", session)
	f.engine.volumeErr = player.ErrVolumeOutOfRange
	var replies []string

	f.router.HandleInteraction("agent-1", volumeEvent(&replies, "999"))

	require.Len(t, replies, 1)
	assert.Equal(t, messageEphemeralVolumeMissing, replies[0])
}

func TestNoResultsReply(t *testing.T) {
	f := newRouterFixture(t, "agent-1")
	f.router.resolver = &stubResolver{err: resolver.ErrNoResults}
	var replies []string

	f.router.HandleInteraction("agent-1", playEvent(&replies))

	assert.Equal(t, 0, f.table.Len())
	require.Len(t, replies, 1)
	assert.Equal(t, messageEphemeralNoResults, replies[0])
}
