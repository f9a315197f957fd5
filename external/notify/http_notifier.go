package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/denlab/denmusic/internal/coord"
)

const sendTimeout = 10 * time.Second

type lifecyclePayload struct {
	Event     string    `json:"event"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	AgentID   string    `json:"agent_id"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// HTTPNotifier posts coordination lifecycle events to a configured webhook.
// With an empty URL every call is a no-op. Sends happen on their own
// goroutine so the coordinator never blocks on a slow receiver.
type HTTPNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewHTTPNotifier(webhookURL string) coord.Notifier {
	return &HTTPNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{},
	}
}

func (n *HTTPNotifier) SessionClaimed(session coord.SessionID, agentID string) {
	n.send(lifecyclePayload{
		Event:     "session_claimed",
		GuildID:   session.GuildID,
		ChannelID: session.ChannelID,
		AgentID:   agentID,
		At:        time.Now(),
	})
}

func (n *HTTPNotifier) SessionVacated(session coord.SessionID, agentID, reason string) {
	n.send(lifecyclePayload{
		Event:     "session_vacated",
		GuildID:   session.GuildID,
		ChannelID: session.ChannelID,
		AgentID:   agentID,
		Reason:    reason,
		At:        time.Now(),
	})
}

func (n *HTTPNotifier) send(payload lifecyclePayload) {
	if n.webhookURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := n.post(ctx, payload); err != nil {
			slog.Warn("lifecycle webhook delivery failed", "event", payload.Event, "error", err)
		}
	}()
}

func (n *HTTPNotifier) post(ctx context.Context, payload lifecyclePayload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
