package coord

import (
	"log/slog"
	"sync"
	"time"
)

// SessionID identifies a voice session: one physical voice channel in a guild.
type SessionID struct {
	GuildID   string
	ChannelID string
}

func (s SessionID) String() string {
	return s.GuildID + ":" + s.ChannelID
}

func (s SessionID) IsZero() bool {
	return s.GuildID == "" && s.ChannelID == ""
}

type EventKind string

const (
	EventAgentReady        EventKind = "agent_ready"
	EventAgentDisconnect   EventKind = "agent_disconnect"
	EventAgentReconnecting EventKind = "agent_reconnecting"
	EventMembershipChange  EventKind = "membership_change"
	EventAgentLeftSession  EventKind = "agent_left_session"
)

type Event struct {
	Kind    EventKind
	AgentID string
	Session SessionID
	// NonAgentCount is the number of non-bot participants in the session
	// after the change. Only meaningful for EventMembershipChange.
	NonAgentCount int
	At            time.Time
}

// Dispatcher fans events out to independent subscribers over bounded
// channels. Publishing never blocks: when a subscriber falls behind its
// events are dropped with a warning, so a stalled consumer cannot stall
// the gateway callbacks feeding the dispatcher.
type Dispatcher struct {
	mu          sync.Mutex
	subscribers []chan Event
	buffer      int
	closed      bool
}

func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{buffer: buffer}
}

func (d *Dispatcher) Subscribe() <-chan Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan Event, d.buffer)
	if d.closed {
		close(ch)
		return ch
	}
	d.subscribers = append(d.subscribers, ch)
	return ch
}

func (d *Dispatcher) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, ch := range d.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Warn("event dropped for slow subscriber", "kind", ev.Kind, "agent_id", ev.AgentID, "session_key", ev.Session.String())
		}
	}
}

func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, ch := range d.subscribers {
		close(ch)
	}
	d.subscribers = nil
}
