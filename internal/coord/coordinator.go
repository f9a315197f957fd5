package coord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownAgent     = errors.New("agent is not registered")
	ErrNoAgentAvailable = errors.New("no agent available")
	ErrClaimSuperseded  = errors.New("session was claimed by another agent during hand-off")
)

// PlaybackStopper is the narrow view of the playback collaborator the
// coordination layer needs: tear down whatever is being served in a channel.
type PlaybackStopper interface {
	StopServing(guildID, channelID string) error
}

// Notifier receives coordination lifecycle notifications. Implementations
// must not block.
type Notifier interface {
	SessionClaimed(session SessionID, agentID string)
	SessionVacated(session SessionID, agentID, reason string)
}

type AgentStat struct {
	Liveness Liveness `json:"liveness"`
	Session  string   `json:"session,omitempty"`
}

type Health struct {
	TotalAgents    int  `json:"total_agents"`
	OnlineAgents   int  `json:"online_agents"`
	ActiveSessions int  `json:"active_sessions"`
	Healthy        bool `json:"healthy"`
}

// Coordinator is the façade over the registry and assignment table. All
// mutations of shared coordination state funnel through its methods; no
// other component writes the table directly.
type Coordinator struct {
	registry       *Registry
	table          *Table
	notifier       Notifier
	handoffTimeout time.Duration

	// claimMu serializes the post-join owner check with the assignment, so
	// two hand-offs racing for the same session resolve to exactly one
	// recorded winner.
	claimMu sync.Mutex
}

func NewCoordinator(registry *Registry, table *Table, notifier Notifier, handoffTimeout time.Duration) *Coordinator {
	return &Coordinator{
		registry:       registry,
		table:          table,
		notifier:       notifier,
		handoffTimeout: handoffTimeout,
	}
}

// ShouldHandle reports whether agentID may process a request targeting
// session: it is the recorded live owner, or the session is unowned (or
// owned by a non-online agent) and agentID is idle and online.
func (c *Coordinator) ShouldHandle(agentID string, session SessionID) bool {
	if owner, ok := c.liveOwner(session); ok {
		return owner == agentID
	}
	info, known := c.registry.Info(agentID)
	if !known {
		slog.Warn("routing check for unknown agent", "agent_id", agentID, "session_key", session.String())
		return false
	}
	return info.Liveness == LivenessOnline && !info.HasSession
}

// BestAgentFor delegates to the selection policy.
func (c *Coordinator) BestAgentFor(session SessionID) (string, bool) {
	return SelectAgent(session, c.registry, c.table)
}

// OwnerOf reports the raw table owner without a liveness check.
func (c *Coordinator) OwnerOf(session SessionID) (string, bool) {
	return c.table.OwnerOf(session)
}

// LiveOwner reports the current owner of session if that agent is online.
func (c *Coordinator) LiveOwner(session SessionID) (string, bool) {
	return c.liveOwner(session)
}

// HandOff commands agentID to join session and records the assignment.
// On any failure shared state is left untouched, so a rejected join never
// produces a dangling assignment. Two requests racing for the same new
// session are resolved after the join: whichever hand-off records its
// assignment first wins, the loser disconnects and reports
// ErrClaimSuperseded so the caller can route to the winner.
func (c *Coordinator) HandOff(ctx context.Context, agentID string, session SessionID) error {
	handoffID := uuid.NewString()
	handle, ok := c.registry.Handle(agentID)
	if !ok {
		slog.Warn("hand-off to unknown agent", "handoff_id", handoffID, "agent_id", agentID, "session_key", session.String())
		return fmt.Errorf("hand-off to %s: %w", agentID, ErrUnknownAgent)
	}

	joinCtx, cancel := context.WithTimeout(ctx, c.handoffTimeout)
	defer cancel()
	slog.Info("hand-off started", "handoff_id", handoffID, "agent_id", agentID, "session_key", session.String())
	if err := handle.Join(joinCtx, session.GuildID, session.ChannelID); err != nil {
		slog.Warn("hand-off join failed", "handoff_id", handoffID, "agent_id", agentID, "session_key", session.String(), "error", err)
		return fmt.Errorf("agent %s failed to join %s: %w", agentID, session.String(), err)
	}

	c.claimMu.Lock()
	if owner, ok := c.liveOwner(session); ok && owner != agentID {
		c.claimMu.Unlock()
		_ = handle.Leave(session.GuildID)
		slog.Warn("hand-off superseded by concurrent claim", "handoff_id", handoffID, "agent_id", agentID, "winner_agent_id", owner, "session_key", session.String())
		return fmt.Errorf("hand-off of %s to %s: %w", session.String(), agentID, ErrClaimSuperseded)
	}
	c.table.Assign(session, agentID)
	c.registry.SetSession(agentID, session)
	c.claimMu.Unlock()
	slog.Info("hand-off complete", "handoff_id", handoffID, "agent_id", agentID, "session_key", session.String())
	if c.notifier != nil {
		c.notifier.SessionClaimed(session, agentID)
	}
	return nil
}

// Release clears every assignment referencing agentID and returns it to the
// idle pool. Safe to call repeatedly and for agents that own nothing.
func (c *Coordinator) Release(agentID string) {
	c.table.ReleaseAgent(agentID)
	c.registry.ClearSession(agentID)
	slog.Info("agent released", "agent_id", agentID)
}

// Run consumes liveness events until ctx is cancelled or the stream closes.
// It is one of the independent subscribers of the shared event stream; the
// lifecycle monitor consumes membership events from its own subscription.
func (c *Coordinator) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.applyLivenessEvent(ev)
		}
	}
}

func (c *Coordinator) applyLivenessEvent(ev Event) {
	switch ev.Kind {
	case EventAgentReady:
		c.registry.SetLiveness(ev.AgentID, LivenessOnline)
		slog.Info("agent online", "agent_id", ev.AgentID)
	case EventAgentDisconnect:
		c.registry.SetLiveness(ev.AgentID, LivenessOffline)
		// The table entry, if any, stays: the liveness filter hides the
		// dead owner from selection until the session is reclaimed or
		// empties out.
		slog.Warn("agent offline", "agent_id", ev.AgentID)
	case EventAgentReconnecting:
		c.registry.SetLiveness(ev.AgentID, LivenessReconnecting)
		slog.Info("agent reconnecting", "agent_id", ev.AgentID)
	}
}

func (c *Coordinator) AgentStats() map[string]AgentStat {
	stats := make(map[string]AgentStat)
	for _, info := range c.registry.Snapshot() {
		stat := AgentStat{Liveness: info.Liveness}
		if info.HasSession {
			stat.Session = info.Session.String()
		}
		stats[info.ID] = stat
	}
	return stats
}

func (c *Coordinator) Health() Health {
	var h Health
	for _, info := range c.registry.Snapshot() {
		h.TotalAgents++
		if info.Liveness == LivenessOnline {
			h.OnlineAgents++
		}
	}
	h.ActiveSessions = c.table.Len()
	h.Healthy = h.TotalAgents > 0 && h.OnlineAgents == h.TotalAgents
	return h
}

func (c *Coordinator) liveOwner(session SessionID) (string, bool) {
	owner, ok := c.table.OwnerOf(session)
	if !ok {
		return "", false
	}
	info, known := c.registry.Info(owner)
	if !known || info.Liveness != LivenessOnline {
		return "", false
	}
	return owner, true
}
