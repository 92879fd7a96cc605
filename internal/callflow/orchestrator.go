// Package callflow owns the per-call protocol: it receives each telephony
// webhook, consults the exception registry and the screener, and emits the
// next control document. Every handler re-derives the call's position from
// the persisted rows, so the service can be restarted or scaled horizontally
// between two webhooks of the same call.
package callflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vathakkar/ai-voice-concierge/internal/events"
	"github.com/vathakkar/ai-voice-concierge/internal/exceptions"
	"github.com/vathakkar/ai-voice-concierge/internal/metrics"
	"github.com/vathakkar/ai-voice-concierge/internal/prompts"
	"github.com/vathakkar/ai-voice-concierge/internal/screener"
	"github.com/vathakkar/ai-voice-concierge/internal/store"
	"github.com/vathakkar/ai-voice-concierge/internal/twiml"
)

// Config tunes the call flow.
type Config struct {
	OwnerName          string
	Voice              string
	TransferNumber     string
	SpeechURL          string // action URL for speech gathers
	DialStatusURL      string // action URL for transfer outcomes
	RetryLimit         int    // no-speech reprompts before giving up
	GatherTimeoutSec   int    // first gather listen window
	RepromptTimeoutSec int    // reprompt listen window
	DialTimeoutSec     int
	Location           *time.Location // for the time-of-day greeting
}

// Orchestrator drives the call state machine.
type Orchestrator struct {
	cfg      Config
	store    *store.Store
	registry *exceptions.Registry
	screener *screener.Processor
	events   *events.Hub
	now      func() time.Time
}

// New creates an orchestrator. hub may be nil when no event feed is wanted.
func New(cfg Config, st *store.Store, reg *exceptions.Registry, proc *screener.Processor, hub *events.Hub) *Orchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		registry: reg,
		screener: proc,
		events:   hub,
		now:      time.Now,
	}
}

// HandleInbound answers a new call: registry hit goes straight to transfer,
// everything else is greeted and gathered.
func (o *Orchestrator) HandleInbound(ctx context.Context, callSID, callerID string) *twiml.Response {
	if callSID == "" {
		// The gateway always sends a call SID; tolerate its absence so local
		// curl testing still produces a coherent call record.
		callSID = uuid.NewString()
	}
	slog.Info("call started", "call_sid", callSID, "caller", callerID)

	created, err := o.store.CreateCall(ctx, callSID, callerID)
	if err != nil {
		o.storeFailure("create call", callSID, err)
	}
	if created {
		metrics.CallsTotal.Inc()
		metrics.CallsActive.Inc()
		o.events.Publish(events.Event{Type: events.TypeCallStarted, CallID: callSID, CallerID: callerID})
	}

	if contact := o.registry.Lookup(ctx, callerID); contact != nil && o.cfg.TransferNumber != "" {
		slog.Info("exception contact, bypassing screening", "call_sid", callSID, "contact", contact.ContactName)
		marker := fmt.Sprintf("%s %s (%s)", bypassMarker, contact.ContactName, contact.Category)
		o.appendTurn(ctx, callSID, 0, store.SpeakerSystem, marker, nil)
		spoken := prompts.ExceptionGreeting(contact.ContactName)
		o.appendTurn(ctx, callSID, 1, store.SpeakerAssistant, spoken, nil)
		return twiml.Transfer(o.cfg.Voice, spoken, o.cfg.TransferNumber, o.cfg.DialStatusURL, o.cfg.DialTimeoutSec)
	}

	greeting := prompts.Greeting(o.cfg.OwnerName, o.now().In(o.cfg.Location))
	o.appendTurn(ctx, callSID, 0, store.SpeakerAssistant, greeting, nil)
	return twiml.Greet(o.cfg.Voice, greeting, o.speechURL(1), o.cfg.GatherTimeoutSec)
}

// speechURL embeds the expected next turn index in the gather action URL so a
// retried delivery of the same gather result re-derives the same index.
func (o *Orchestrator) speechURL(next int) string {
	return fmt.Sprintf("%s?turn=%d", o.cfg.SpeechURL, next)
}

// HandleSpeech processes the speech-result callback: reprompt or give up on
// silence, otherwise run one screening turn and act on the decision.
//
// expected is the turn index carried in the action URL, or negative when the
// webhook arrived without one. A retried delivery carries the index the first
// delivery already consumed; the handler then replays the logged reply instead
// of logging new turns or consulting the engine again.
func (o *Orchestrator) HandleSpeech(ctx context.Context, callSID, speech string, expected int) *twiml.Response {
	call, turns, ok := o.load(ctx, callSID)
	if !ok {
		return o.apology()
	}
	if call.FinalDecision != nil {
		// Duplicate delivery after the call already finished.
		return twiml.HangupOnly()
	}

	speech = strings.TrimSpace(speech)
	next := len(turns)
	if expected >= 0 && expected < next {
		next = expected
	}
	// The history as of this webhook's first delivery. On a retry it excludes
	// the turns that delivery already logged.
	history := turns[:next]

	if speech == "" {
		return o.handleNoSpeech(ctx, callSID, deriveState(history), next)
	}

	inserted := o.appendTurn(ctx, callSID, next, store.SpeakerCaller, speech, nil)
	if !inserted && len(turns) > next+1 {
		return o.replay(callSID, turns, next)
	}

	outcome := o.screener.Process(ctx, history, speech)

	if outcome.Decision == screener.DecisionTransfer && o.cfg.TransferNumber == "" {
		// No destination configured; the only safe degradation is the
		// text-suggestion path.
		slog.Warn("transfer decided but no transfer number configured", "call_sid", callSID)
		outcome.Decision = screener.DecisionEnd
		outcome.Spoken = prompts.TransferFallback(o.cfg.OwnerName)
	}

	o.appendTurn(ctx, callSID, next+1, store.SpeakerAssistant, outcome.Spoken, &outcome.LatencyMs)
	slog.Info("screening turn", "call_sid", callSID, "decision", outcome.Decision.String(),
		"latency_ms", outcome.LatencyMs, "fallback", outcome.Fallback)

	switch outcome.Decision {
	case screener.DecisionTransfer:
		o.appendTurn(ctx, callSID, next+2, store.SpeakerSystem, transferMarker, nil)
		return twiml.Transfer(o.cfg.Voice, outcome.Spoken, o.cfg.TransferNumber, o.cfg.DialStatusURL, o.cfg.DialTimeoutSec)
	case screener.DecisionEnd:
		o.finish(ctx, callSID, store.DecisionCompleted)
		return twiml.SayHangup(o.cfg.Voice, outcome.Spoken)
	default:
		return twiml.GatherSpeech(o.cfg.Voice, outcome.Spoken, o.speechURL(next+2), o.cfg.GatherTimeoutSec)
	}
}

// replay answers a duplicate speech delivery whose turns are already logged:
// the stored assistant reply is spoken again and the engine is not consulted.
// The gateway retries when it never processed the first response, so the
// replay re-emits the same control document.
func (o *Orchestrator) replay(callSID string, turns []store.Turn, next int) *twiml.Response {
	slog.Info("duplicate speech webhook, replaying logged reply", "call_sid", callSID, "turn", next)
	reply := turns[next+1].Text
	if len(turns) > next+2 && turns[next+2].Speaker == store.SpeakerSystem &&
		strings.HasPrefix(turns[next+2].Text, transferMarker) {
		return twiml.Transfer(o.cfg.Voice, reply, o.cfg.TransferNumber, o.cfg.DialStatusURL, o.cfg.DialTimeoutSec)
	}
	return twiml.GatherSpeech(o.cfg.Voice, reply, o.speechURL(next+2), o.cfg.GatherTimeoutSec)
}

func (o *Orchestrator) handleNoSpeech(ctx context.Context, callSID string, st callState, next int) *twiml.Response {
	if st.retries >= o.cfg.RetryLimit {
		o.appendTurn(ctx, callSID, next, store.SpeakerAssistant, prompts.NoSpeechGoodbye, nil)
		o.finish(ctx, callSID, store.DecisionEndedNoSpeech)
		return twiml.SayHangup(o.cfg.Voice, prompts.NoSpeechGoodbye)
	}
	o.appendTurn(ctx, callSID, next, store.SpeakerAssistant, prompts.Reprompt, nil)
	return twiml.GatherSpeech(o.cfg.Voice, prompts.Reprompt, o.speechURL(next+1), o.cfg.RepromptTimeoutSec)
}

// HandleDialStatus processes the transfer outcome callback. A completed dial
// finishes the call as transferred; anything else falls back to the
// text-suggestion message.
func (o *Orchestrator) HandleDialStatus(ctx context.Context, callSID, dialStatus string) *twiml.Response {
	call, turns, ok := o.load(ctx, callSID)
	if !ok {
		return o.apology()
	}
	if call.FinalDecision != nil {
		return twiml.HangupOnly()
	}

	if dialStatus == "completed" {
		decision := store.DecisionTransferred
		if deriveState(turns).exceptionBypass {
			decision = store.DecisionTransferredException
		}
		o.finish(ctx, callSID, decision)
		return twiml.HangupOnly()
	}

	slog.Info("transfer failed, suggesting text", "call_sid", callSID, "dial_status", dialStatus)
	suggestion := prompts.TransferFallback(o.cfg.OwnerName)
	o.appendTurn(ctx, callSID, len(turns), store.SpeakerAssistant, suggestion, nil)
	o.finish(ctx, callSID, store.DecisionCompleted)
	return twiml.SayHangup(o.cfg.Voice, suggestion)
}

// Apology is the safe default control document for webhooks that cannot be
// interpreted; the gateway cannot recover from a non-telephony response.
func (o *Orchestrator) Apology() *twiml.Response {
	return o.apology()
}

func (o *Orchestrator) apology() *twiml.Response {
	return twiml.SayHangup(o.cfg.Voice, prompts.Apology(o.cfg.OwnerName))
}

func (o *Orchestrator) load(ctx context.Context, callSID string) (*store.Call, []store.Turn, bool) {
	if callSID == "" {
		return nil, nil, false
	}
	call, err := o.store.GetCall(ctx, callSID)
	if err != nil {
		o.storeFailure("load call", callSID, err)
		return nil, nil, false
	}
	if call == nil {
		slog.Warn("webhook for unknown call", "call_sid", callSID)
		return nil, nil, false
	}
	turns, err := o.store.Turns(ctx, callSID)
	if err != nil {
		o.storeFailure("load turns", callSID, err)
		return nil, nil, false
	}
	return call, turns, true
}

// appendTurn persists one turn and publishes it to the event feed. A store
// failure is logged and surfaced in metrics but never aborts the turn: the
// caller-facing response is prioritized over guaranteed logging. The return
// reports whether the row was inserted; false on a collapsed duplicate.
func (o *Orchestrator) appendTurn(ctx context.Context, callSID string, idx int, speaker, text string, latencyMs *int64) bool {
	inserted, err := o.store.AppendTurn(ctx, store.Turn{
		CallID:    callSID,
		TurnIndex: idx,
		Speaker:   speaker,
		Text:      text,
		LatencyMs: latencyMs,
	})
	if err != nil {
		o.storeFailure("append turn", callSID, err)
		return false
	}
	if inserted {
		o.events.Publish(events.Event{Type: events.TypeTurn, CallID: callSID, Speaker: speaker, Text: text})
	}
	return inserted
}

func (o *Orchestrator) finish(ctx context.Context, callSID, decision string) {
	finished, err := o.store.FinishCall(ctx, callSID, decision)
	if err != nil {
		o.storeFailure("finish call", callSID, err)
		return
	}
	if !finished {
		return
	}
	metrics.Decisions.WithLabelValues(decision).Inc()
	metrics.CallsActive.Dec()
	slog.Info("call finished", "call_sid", callSID, "decision", decision)
	o.events.Publish(events.Event{Type: events.TypeCallFinished, CallID: callSID, Decision: decision})
}

func (o *Orchestrator) storeFailure(op, callSID string, err error) {
	slog.Error("store operation failed, continuing", "op", op, "call_sid", callSID, "error", err)
	metrics.Errors.WithLabelValues("store", op).Inc()
}
