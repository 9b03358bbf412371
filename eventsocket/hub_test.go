package eventsocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/koshroy/outpost/outbox"
)

func TestHubStreamsPublishedEvents(t *testing.T) {
	t.Parallel()

	observers := outbox.NewObservers()
	hub := New(observers, zap.NewNop())

	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine a moment to register its subscription
	// before publishing, since Subscribe races with the dial handshake.
	time.Sleep(20 * time.Millisecond)

	observers.Publish(outbox.Event{
		Actor:    "https://localhost/u/alice",
		Activity: map[string]interface{}{"type": "Create"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, body, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got outbox.Event
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Actor != "https://localhost/u/alice" {
		t.Errorf("unexpected actor: %s", got.Actor)
	}
}
