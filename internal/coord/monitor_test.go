package coord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGrace = 30 * time.Millisecond

func newTestMonitor(t *testing.T) (*Monitor, *Coordinator, *Registry, *Table, *fakeStopper, *fakeNotifier) {
	t.Helper()
	registry := NewRegistry()
	table := NewTable()
	notifier := &fakeNotifier{}
	c := NewCoordinator(registry, table, notifier, time.Second)
	stopper := &fakeStopper{}
	return NewMonitor(c, stopper, notifier, testGrace), c, registry, table, stopper, notifier
}

func ownSession(registry *Registry, table *Table, agentID string, session SessionID) {
	registerOnline(registry, agentID)
	table.Assign(session, agentID)
	registry.SetSession(agentID, session)
}

func TestMonitorVacatesAfterGracePeriod(t *testing.T) {
	m, _, registry, table, stopper, notifier := newTestMonitor(t)
	session := SessionID{GuildID: "g", ChannelID: "c"}
	ownSession(registry, table, "agent-1", session)

	m.handle(Event{Kind: EventMembershipChange, Session: session, NonAgentCount: 0})

	require.Eventually(t, func() bool {
		_, owned := table.OwnerOf(session)
		return !owned
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []SessionID{session}, stopper.stopCalls())
	info, _ := registry.Info("agent-1")
	assert.False(t, info.HasSession)
	vacated := notifier.vacatedCalls()
	require.Len(t, vacated, 1)
	assert.Equal(t, "agent-1", vacated[0].agentID)
	assert.Equal(t, vacateReasonChannelEmpty, vacated[0].reason)
}

func TestMonitorRejoinCancelsGrace(t *testing.T) {
	m, _, registry, table, stopper, _ := newTestMonitor(t)
	session := SessionID{GuildID: "g", ChannelID: "c"}
	ownSession(registry, table, "agent-1", session)

	m.handle(Event{Kind: EventMembershipChange, Session: session, NonAgentCount: 0})
	m.handle(Event{Kind: EventMembershipChange, Session: session, NonAgentCount: 1})

	time.Sleep(3 * testGrace)
	owner, owned := table.OwnerOf(session)
	require.True(t, owned, "assignment must survive a cancelled grace period")
	assert.Equal(t, "agent-1", owner)
	assert.Empty(t, stopper.stopCalls())
}

func TestMonitorRepeatedEmptyEventsArmOneTimer(t *testing.T) {
	m, _, registry, table, stopper, notifier := newTestMonitor(t)
	session := SessionID{GuildID: "g", ChannelID: "c"}
	ownSession(registry, table, "agent-1", session)

	m.handle(Event{Kind: EventMembershipChange, Session: session, NonAgentCount: 0})
	m.handle(Event{Kind: EventMembershipChange, Session: session, NonAgentCount: 0})
	m.handle(Event{Kind: EventMembershipChange, Session: session, NonAgentCount: 0})

	require.Eventually(t, func() bool {
		return len(notifier.vacatedCalls()) > 0
	}, time.Second, 5*time.Millisecond)
	time.Sleep(2 * testGrace)

	assert.Len(t, stopper.stopCalls(), 1)
	assert.Len(t, notifier.vacatedCalls(), 1)
}

func TestMonitorIgnoresUnownedSessions(t *testing.T) {
	m, _, registry, _, stopper, _ := newTestMonitor(t)
	registerOnline(registry, "agent-1")
	session := SessionID{GuildID: "g", ChannelID: "c"}

	m.handle(Event{Kind: EventMembershipChange, Session: session, NonAgentCount: 0})

	time.Sleep(3 * testGrace)
	assert.Empty(t, stopper.stopCalls())
}

func TestMonitorSkipsTeardownWhenOwnershipMovedDuringGrace(t *testing.T) {
	m, c, registry, table, stopper, notifier := newTestMonitor(t)
	session := SessionID{GuildID: "g", ChannelID: "c"}
	ownSession(registry, table, "agent-1", session)

	m.handle(Event{Kind: EventMembershipChange, Session: session, NonAgentCount: 0})
	// The assignment moved before the grace elapsed; the timer must not tear
	// down the new owner.
	c.Release("agent-1")

	time.Sleep(3 * testGrace)
	assert.Empty(t, stopper.stopCalls())
	assert.Empty(t, notifier.vacatedCalls())
}

func TestMonitorForcedExitReleasesImmediately(t *testing.T) {
	m, _, registry, table, stopper, notifier := newTestMonitor(t)
	session := SessionID{GuildID: "g", ChannelID: "c"}
	ownSession(registry, table, "agent-1", session)

	m.handle(Event{Kind: EventAgentLeftSession, Session: session, AgentID: "agent-1"})

	_, owned := table.OwnerOf(session)
	assert.False(t, owned)
	assert.Equal(t, []SessionID{session}, stopper.stopCalls())
	vacated := notifier.vacatedCalls()
	require.Len(t, vacated, 1)
	assert.Equal(t, vacateReasonForcedExit, vacated[0].reason)
}

func TestMonitorForcedExitOfNonOwnerIsIgnored(t *testing.T) {
	m, _, registry, table, stopper, _ := newTestMonitor(t)
	session := SessionID{GuildID: "g", ChannelID: "c"}
	ownSession(registry, table, "agent-1", session)
	registerOnline(registry, "agent-2")

	m.handle(Event{Kind: EventAgentLeftSession, Session: session, AgentID: "agent-2"})

	owner, owned := table.OwnerOf(session)
	require.True(t, owned)
	assert.Equal(t, "agent-1", owner)
	assert.Empty(t, stopper.stopCalls())
}
