package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/denlab/denmusic/internal/coord"
)

func TestPost_Success(t *testing.T) {
	var got lifecyclePayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := &HTTPNotifier{webhookURL: server.URL, client: server.Client()}
	payload := lifecyclePayload{
		Event:     "session_claimed",
		GuildID:   "guild-1",
		ChannelID: "vc-1",
		AgentID:   "agent-1",
	}
	if err := n.post(context.Background(), payload); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.Event != "session_claimed" || got.GuildID != "guild-1" || got.AgentID != "agent-1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestPost_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := &HTTPNotifier{webhookURL: server.URL, client: server.Client()}
	if err := n.post(context.Background(), lifecyclePayload{Event: "session_vacated"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestSend_EmptyWebhookURL(t *testing.T) {
	n := NewHTTPNotifier("")
	// Must be a silent no-op, not a panic or a queued send.
	n.SessionClaimed(coord.SessionID{GuildID: "g", ChannelID: "c"}, "agent-1")
	n.SessionVacated(coord.SessionID{GuildID: "g", ChannelID: "c"}, "agent-1", "test")
}
