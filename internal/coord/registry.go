package coord

import (
	"log/slog"
	"sync"
	"time"

	"github.com/denlab/denmusic/internal/discord"
)

type Liveness string

const (
	LivenessInitializing Liveness = "initializing"
	LivenessOnline       Liveness = "online"
	LivenessReconnecting Liveness = "reconnecting"
	LivenessError        Liveness = "error"
	LivenessOffline      Liveness = "offline"
)

type AgentInfo struct {
	ID           string
	Liveness     Liveness
	Session      SessionID
	HasSession   bool
	LastActivity time.Time
}

type agentRecord struct {
	id           string
	handle       discord.Agent
	liveness     Liveness
	session      SessionID
	hasSession   bool
	lastActivity time.Time
}

// Registry is the soft, logical view of the agent fleet. It is not
// authoritative over process existence: a crashed agent without an explicit
// deregistration leaves a stale entry, which the liveness filter hides from
// selection.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*agentRecord
	order  []string

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*agentRecord),
		now:    time.Now,
	}
}

// Register adds or replaces the entry for an agent identity and makes it
// visible to selection once it reaches online liveness.
func (r *Registry) Register(id string, handle discord.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; !exists {
		r.order = append(r.order, id)
	}
	r.agents[id] = &agentRecord{
		id:           id,
		handle:       handle,
		liveness:     LivenessInitializing,
		lastActivity: r.now(),
	}
	slog.Info("agent registered", "agent_id", id)
}

func (r *Registry) SetLiveness(id string, liveness Liveness) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		slog.Warn("liveness update for unknown agent ignored", "agent_id", id, "liveness", liveness)
		return
	}
	rec.liveness = liveness
}

// SetSession points the agent at the session it now serves and refreshes its
// last-activity timestamp.
func (r *Registry) SetSession(id string, session SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		slog.Warn("session update for unknown agent ignored", "agent_id", id, "session_key", session.String())
		return
	}
	rec.session = session
	rec.hasSession = true
	rec.lastActivity = r.now()
}

// ClearSession returns the agent to the idle pool. The last-activity refresh
// makes just-freed agents the least preferred idle candidates.
func (r *Registry) ClearSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		slog.Warn("session clear for unknown agent ignored", "agent_id", id)
		return
	}
	rec.session = SessionID{}
	rec.hasSession = false
	rec.lastActivity = r.now()
}

func (r *Registry) Handle(id string) (discord.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return rec.handle, true
}

func (r *Registry) Info(id string) (AgentInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		return AgentInfo{}, false
	}
	return rec.info(), true
}

// ListAvailable returns all online agents with no current session, in
// registration order.
func (r *Registry) ListAvailable() []AgentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AgentInfo, 0, len(r.order))
	for _, id := range r.order {
		rec := r.agents[id]
		if rec.liveness != LivenessOnline || rec.hasSession {
			continue
		}
		out = append(out, rec.info())
	}
	return out
}

// Snapshot returns every registered agent in registration order.
func (r *Registry) Snapshot() []AgentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AgentInfo, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].info())
	}
	return out
}

func (rec *agentRecord) info() AgentInfo {
	return AgentInfo{
		ID:           rec.id,
		Liveness:     rec.liveness,
		Session:      rec.session,
		HasSession:   rec.hasSession,
		LastActivity: rec.lastActivity,
	}
}
