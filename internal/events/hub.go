// Package events streams call lifecycle events to operator dashboards over
// WebSocket. Delivery is best-effort: a slow consumer drops frames rather
// than blocking a webhook response.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types published by the call flow.
const (
	TypeCallStarted  = "call_started"
	TypeTurn         = "turn"
	TypeCallFinished = "call_finished"
)

// Event is one call lifecycle notification.
type Event struct {
	Type     string    `json:"type"`
	CallID   string    `json:"call_id"`
	CallerID string    `json:"caller_id,omitempty"`
	Speaker  string    `json:"speaker,omitempty"`
	Text     string    `json:"text,omitempty"`
	Decision string    `json:"decision,omitempty"`
	At       time.Time `json:"at"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans call events out to connected WebSocket subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[chan []byte]struct{}{}}
}

func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// Publish broadcasts an event to all subscribers. Nil hubs and marshal
// failures are silently ignored; the event feed must never affect call
// handling.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
		}
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("events upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := h.subscribe()
	defer h.unsubscribe(ch)
	slog.Info("events client connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			slog.Info("events client disconnected", "remote", r.RemoteAddr)
			return
		case msg := <-ch:
			if writeErr := conn.WriteMessage(websocket.TextMessage, msg); writeErr != nil {
				return
			}
		}
	}
}
