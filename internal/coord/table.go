package coord

import "sync"

// Table is the session assignment table: the single source of truth for
// which agent currently owns which session. Assign is last-writer-wins and
// release is idempotent; the table itself never checks liveness, callers
// filter stale owners through the registry.
type Table struct {
	mu        sync.Mutex
	bySession map[SessionID]string
	byAgent   map[string]map[SessionID]struct{}
}

func NewTable() *Table {
	return &Table{
		bySession: make(map[SessionID]string),
		byAgent:   make(map[string]map[SessionID]struct{}),
	}
}

func (t *Table) OwnerOf(session SessionID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	agentID, ok := t.bySession[session]
	return agentID, ok
}

// Assign records agentID as the owner of session, overwriting any prior
// mapping for that session and keeping the reverse index consistent.
func (t *Table) Assign(session SessionID, agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.bySession[session]; ok && prev != agentID {
		t.removeReverse(prev, session)
	}
	t.bySession[session] = agentID
	if t.byAgent[agentID] == nil {
		t.byAgent[agentID] = make(map[SessionID]struct{})
	}
	t.byAgent[agentID][session] = struct{}{}
}

func (t *Table) Release(session SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	agentID, ok := t.bySession[session]
	if !ok {
		return
	}
	delete(t.bySession, session)
	t.removeReverse(agentID, session)
}

func (t *Table) ReleaseAgent(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for session := range t.byAgent[agentID] {
		delete(t.bySession, session)
	}
	delete(t.byAgent, agentID)
}

// SessionsOf reports the sessions currently mapped to agentID. Under
// single-tenancy this is at most one, but load computation treats it as a
// count so relaxing tenancy later does not change the policy.
func (t *Table) SessionsOf(agentID string) []SessionID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SessionID, 0, len(t.byAgent[agentID]))
	for session := range t.byAgent[agentID] {
		out = append(out, session)
	}
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bySession)
}

func (t *Table) removeReverse(agentID string, session SessionID) {
	sessions := t.byAgent[agentID]
	if sessions == nil {
		return
	}
	delete(sessions, session)
	if len(sessions) == 0 {
		delete(t.byAgent, agentID)
	}
}
