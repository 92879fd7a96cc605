package events

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilHubPublishIsSafe(t *testing.T) {
	var h *Hub
	h.Publish(Event{Type: TypeTurn, CallID: "CA1"})
}

func TestPublishWithoutSubscribers(t *testing.T) {
	h := NewHub()
	h.Publish(Event{Type: TypeCallStarted, CallID: "CA1"})
}

func TestSubscriberReceivesEvents(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server loop a moment to register the subscription.
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.subs) == 1
	}, time.Second, 5*time.Millisecond)

	h.Publish(Event{Type: TypeTurn, CallID: "CA1", Speaker: "caller", Text: "hello"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, TypeTurn, got.Type)
	assert.Equal(t, "CA1", got.CallID)
	assert.Equal(t, "hello", got.Text)
	assert.False(t, got.At.IsZero(), "publish stamps the event time")
}

func TestSlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// Fill the buffer and then some; Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			h.Publish(Event{Type: TypeTurn, CallID: "CA1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
	assert.Equal(t, cap(ch), len(ch), "buffer is full, overflow was dropped")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	ch := h.subscribe()
	h.unsubscribe(ch)

	h.Publish(Event{Type: TypeCallFinished, CallID: "CA1"})
	assert.Zero(t, len(ch))
}
