package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vathakkar/ai-voice-concierge/internal/callflow"
	"github.com/vathakkar/ai-voice-concierge/internal/events"
	"github.com/vathakkar/ai-voice-concierge/internal/exceptions"
	"github.com/vathakkar/ai-voice-concierge/internal/metrics"
	"github.com/vathakkar/ai-voice-concierge/internal/store"
	"github.com/vathakkar/ai-voice-concierge/internal/twiml"
)

const defaultConversationLimit = 10

type deps struct {
	flow     *callflow.Orchestrator
	registry *exceptions.Registry
	store    *store.Store
	events   *events.Hub
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /ws/events", d.events)

	mux.HandleFunc("POST /twilio/voice", timed("voice", d.handleVoice))
	mux.HandleFunc("POST /twilio/speech", timed("speech", d.handleSpeech))
	mux.HandleFunc("POST /twilio/transfer-status", timed("transfer-status", d.handleDialStatus))

	mux.HandleFunc("GET /exceptions", d.handleListExceptions)
	mux.HandleFunc("POST /exceptions", d.handleUpsertException)
	mux.HandleFunc("DELETE /exceptions/{number}", d.handleDeactivateException)
	mux.HandleFunc("GET /exceptions/check/{number}", d.handleCheckException)

	mux.HandleFunc("GET /conversations", d.handleConversations)
	mux.HandleFunc("GET /test-db", d.handleTestDB)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// timed wraps a handler with the per-endpoint latency histogram.
func timed(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		metrics.WebhookDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

// --- telephony webhooks ---
//
// These always answer with a valid control document, even on internal
// failure: the gateway cannot interpret anything else.

func (d deps) handleVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("malformed voice webhook", "error", err)
		writeTwiML(w, d.flow.Apology())
		return
	}
	doc := d.flow.HandleInbound(r.Context(), r.PostFormValue("CallSid"), r.PostFormValue("From"))
	writeTwiML(w, doc)
}

func (d deps) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("malformed speech webhook", "error", err)
		writeTwiML(w, d.flow.Apology())
		return
	}
	// The gather action URL carries the expected turn index so a retried
	// delivery is recognized as a duplicate.
	expected := -1
	if v := r.URL.Query().Get("turn"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			expected = n
		}
	}
	doc := d.flow.HandleSpeech(r.Context(), r.PostFormValue("CallSid"), r.PostFormValue("SpeechResult"), expected)
	writeTwiML(w, doc)
}

func (d deps) handleDialStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("malformed transfer-status webhook", "error", err)
		writeTwiML(w, d.flow.Apology())
		return
	}
	doc := d.flow.HandleDialStatus(r.Context(), r.PostFormValue("CallSid"), r.PostFormValue("DialCallStatus"))
	writeTwiML(w, doc)
}

func writeTwiML(w http.ResponseWriter, doc *twiml.Response) {
	body, err := doc.Encode()
	if err != nil {
		// Last resort: a bare hangup document is always encodable.
		slog.Error("twiml encode failed", "error", err)
		body, _ = twiml.HangupOnly().Encode()
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write(body)
}

// --- exception management API ---

func (d deps) handleListExceptions(w http.ResponseWriter, r *http.Request) {
	contacts, err := d.registry.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list exceptions")
		return
	}
	if contacts == nil {
		contacts = []store.ExceptionContact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exceptions": contacts})
}

func (d deps) handleUpsertException(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		ContactName string `json:"contact_name"`
		Category    string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if exceptions.NormalizeNumber(req.PhoneNumber) == "" {
		writeError(w, http.StatusBadRequest, "phone_number is required")
		return
	}
	if req.Category == "" {
		req.Category = "family"
	}
	contact, err := d.registry.Add(r.Context(), req.PhoneNumber, req.ContactName, req.Category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store exception")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (d deps) handleDeactivateException(w http.ResponseWriter, r *http.Request) {
	if err := d.registry.Deactivate(r.Context(), r.PathValue("number")); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to deactivate exception")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d deps) handleCheckException(w http.ResponseWriter, r *http.Request) {
	contact := d.registry.Lookup(r.Context(), r.PathValue("number"))
	writeJSON(w, http.StatusOK, map[string]bool{"active": contact != nil})
}

// --- read / diagnostic API ---

func (d deps) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultConversationLimit)
	convs, err := d.store.RecentCalls(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (d deps) handleTestDB(w http.ResponseWriter, r *http.Request) {
	if err := d.store.Ping(r.Context()); err != nil {
		slog.Error("db probe failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database connection failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "Database connection successful"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
