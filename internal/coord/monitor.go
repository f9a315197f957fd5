package coord

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	vacateReasonChannelEmpty = "voice channel stayed empty through the grace period"
	vacateReasonForcedExit   = "agent was removed from the voice channel"
)

// Monitor reacts to membership events for owned sessions. A session whose
// last non-bot participant leaves enters a grace period; if nobody returns
// before it elapses the owning agent is told to stop serving and released.
// A re-join during the grace period cancels the teardown. The owning
// agent's own forced exit releases immediately, without debounce.
type Monitor struct {
	coord    *Coordinator
	stopper  PlaybackStopper
	notifier Notifier
	grace    time.Duration

	mu     sync.Mutex
	timers map[SessionID]*time.Timer
}

func NewMonitor(coord *Coordinator, stopper PlaybackStopper, notifier Notifier, grace time.Duration) *Monitor {
	return &Monitor{
		coord:    coord,
		stopper:  stopper,
		notifier: notifier,
		grace:    grace,
		timers:   make(map[SessionID]*time.Timer),
	}
}

// Run consumes membership events until ctx is cancelled or the stream
// closes. Pending grace timers are cancelled on exit.
func (m *Monitor) Run(ctx context.Context, events <-chan Event) {
	defer m.cancelAll()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ev)
		}
	}
}

func (m *Monitor) handle(ev Event) {
	switch ev.Kind {
	case EventMembershipChange:
		if ev.NonAgentCount > 0 {
			m.cancelGrace(ev.Session)
			return
		}
		m.startGrace(ev.Session)
	case EventAgentLeftSession:
		m.cancelGrace(ev.Session)
		m.releaseForced(ev.Session, ev.AgentID)
	}
}

func (m *Monitor) startGrace(session SessionID) {
	if _, owned := m.coord.OwnerOf(session); !owned {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, pending := m.timers[session]; pending {
		return
	}
	m.timers[session] = time.AfterFunc(m.grace, func() {
		m.graceExpired(session)
	})
	slog.Info("session empty, grace period started", "session_key", session.String(), "grace", m.grace)
}

func (m *Monitor) cancelGrace(session SessionID) {
	m.mu.Lock()
	timer, pending := m.timers[session]
	if pending {
		delete(m.timers, session)
	}
	m.mu.Unlock()
	if !pending {
		return
	}
	timer.Stop()
	slog.Info("participant returned, grace period cancelled", "session_key", session.String())
}

func (m *Monitor) graceExpired(session SessionID) {
	m.mu.Lock()
	if _, pending := m.timers[session]; !pending {
		// Lost the race against a cancellation; nothing to tear down.
		m.mu.Unlock()
		return
	}
	delete(m.timers, session)
	m.mu.Unlock()

	owner, owned := m.coord.OwnerOf(session)
	if !owned {
		return
	}
	slog.Info("grace period expired, vacating session", "session_key", session.String(), "agent_id", owner)
	if err := m.stopper.StopServing(session.GuildID, session.ChannelID); err != nil {
		slog.Error("failed to stop serving on vacate", "session_key", session.String(), "agent_id", owner, "error", err)
	}
	m.coord.Release(owner)
	if m.notifier != nil {
		m.notifier.SessionVacated(session, owner, vacateReasonChannelEmpty)
	}
}

func (m *Monitor) releaseForced(session SessionID, agentID string) {
	owner, owned := m.coord.OwnerOf(session)
	if !owned || owner != agentID {
		// The departed agent was not serving this session; an externally
		// forced disconnect of a bystander bot is not ours to reconcile.
		return
	}
	slog.Warn("owning agent left its session, releasing immediately", "session_key", session.String(), "agent_id", agentID)
	if err := m.stopper.StopServing(session.GuildID, session.ChannelID); err != nil {
		slog.Error("failed to stop serving after forced exit", "session_key", session.String(), "agent_id", agentID, "error", err)
	}
	m.coord.Release(agentID)
	if m.notifier != nil {
		m.notifier.SessionVacated(session, agentID, vacateReasonForcedExit)
	}
}

func (m *Monitor) cancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for session, timer := range m.timers {
		timer.Stop()
		delete(m.timers, session)
	}
}
