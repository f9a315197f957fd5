package coord

// SelectAgent picks the agent that should serve session, re-deriving the
// decision from current registry and table state on every call.
//
// An online current owner is returned unconditionally (sticky assignment: a
// session keeps its agent even when other agents are freer). Otherwise the
// available agent with the fewest owned sessions wins, ties broken by the
// oldest last-activity timestamp so the longest-idle agent is preferred over
// one that just freed up. Remaining ties fall back to registration order,
// which is stable. Returns false when no online agent can take the session.
func SelectAgent(session SessionID, registry *Registry, table *Table) (string, bool) {
	if owner, ok := table.OwnerOf(session); ok {
		if info, known := registry.Info(owner); known && info.Liveness == LivenessOnline {
			return owner, true
		}
		// Stale owner: the recorded agent crashed or went offline without
		// releasing. Fall through and pick a fresh one.
	}

	var (
		best     AgentInfo
		bestLoad int
		found    bool
	)
	for _, candidate := range registry.ListAvailable() {
		load := len(table.SessionsOf(candidate.ID))
		switch {
		case !found:
		case load > bestLoad:
			continue
		case load == bestLoad && !candidate.LastActivity.Before(best.LastActivity):
			continue
		}
		best = candidate
		bestLoad = load
		found = true
	}
	if !found {
		return "", false
	}
	return best.ID, true
}
