package coord

import (
	"context"
	"sync"
	"time"

	"github.com/denlab/denmusic/internal/discord"
)

// fakeClock drives the registry's last-activity timestamps deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeAgent struct {
	id string

	// joinGate, when set, blocks Join after it is recorded until the gate
	// closes. Lets tests hold several agents mid-join.
	joinGate chan struct{}

	mu      sync.Mutex
	joinErr error
	joins   []SessionID
	leaves  []string
}

func newFakeAgent(id string) *fakeAgent {
	return &fakeAgent{id: id}
}

func (a *fakeAgent) ID() string                        { return a.id }
func (a *fakeAgent) Connect(ctx context.Context) error { return nil }
func (a *fakeAgent) Close() error                      { return nil }
func (a *fakeAgent) BotUserID() (string, error)        { return "user-" + a.id, nil }

func (a *fakeAgent) Join(ctx context.Context, guildID, channelID string) error {
	a.mu.Lock()
	if a.joinErr != nil {
		err := a.joinErr
		a.mu.Unlock()
		return err
	}
	a.joins = append(a.joins, SessionID{GuildID: guildID, ChannelID: channelID})
	a.mu.Unlock()
	if a.joinGate != nil {
		<-a.joinGate
	}
	return nil
}

func (a *fakeAgent) Leave(guildID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leaves = append(a.leaves, guildID)
	return nil
}

func (a *fakeAgent) joinCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.joins)
}

func (a *fakeAgent) leaveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.leaves)
}

func (a *fakeAgent) IsConnectedTo(guildID, channelID string) bool { return false }
func (a *fakeAgent) GetUserVoiceChannelID(guildID, userID string) (string, error) {
	return "", nil
}
func (a *fakeAgent) ListVoiceParticipants(guildID, channelID string) ([]discord.VoiceParticipant, error) {
	return nil, nil
}
func (a *fakeAgent) SendChannelMessage(channelID, content string) error                 { return nil }
func (a *fakeAgent) RegisterVoiceStateUpdateHandler(func(discord.VoiceStateEvent))      {}
func (a *fakeAgent) RegisterInteractionHandler(func(discord.InteractionEvent))          {}
func (a *fakeAgent) RegisterConnectionHandlers(onReady, onDisconnect, onResumed func()) {}
func (a *fakeAgent) UpsertGuildSlashCommands(guildID string, defs []discord.SlashCommandDefinition) error {
	return nil
}
func (a *fakeAgent) SetIdlePresence() error                       { return nil }
func (a *fakeAgent) SetListeningPresence(trackTitle string) error { return nil }

type notifierCall struct {
	session SessionID
	agentID string
	reason  string
}

type fakeNotifier struct {
	mu      sync.Mutex
	claimed []notifierCall
	vacated []notifierCall
}

func (n *fakeNotifier) SessionClaimed(session SessionID, agentID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.claimed = append(n.claimed, notifierCall{session: session, agentID: agentID})
}

func (n *fakeNotifier) SessionVacated(session SessionID, agentID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.vacated = append(n.vacated, notifierCall{session: session, agentID: agentID, reason: reason})
}

func (n *fakeNotifier) claimedCalls() []notifierCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifierCall(nil), n.claimed...)
}

func (n *fakeNotifier) vacatedCalls() []notifierCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifierCall(nil), n.vacated...)
}

type fakeStopper struct {
	mu    sync.Mutex
	err   error
	calls []SessionID
}

func (s *fakeStopper) StopServing(guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, SessionID{GuildID: guildID, ChannelID: channelID})
	return s.err
}

func (s *fakeStopper) stopCalls() []SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SessionID(nil), s.calls...)
}

// registerOnline registers an agent and marks it online in one step.
func registerOnline(r *Registry, id string) *fakeAgent {
	agent := newFakeAgent(id)
	r.Register(id, agent)
	r.SetLiveness(id, LivenessOnline)
	return agent
}
