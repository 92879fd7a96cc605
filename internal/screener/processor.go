// Package screener turns a caller utterance plus conversation history into a
// structured routing decision. It is the only place where generated free text
// meets deterministic control flow: downstream code sees a Decision and the
// spoken text, never the raw reply.
package screener

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/vathakkar/ai-voice-concierge/internal/metrics"
	"github.com/vathakkar/ai-voice-concierge/internal/store"
)

// Directive tokens the engine embeds in its reply. Detection is
// case-sensitive and positional-independent; repeats count as one.
const (
	TransferToken = "{TRANSFER}"
	EndCallToken  = "{END CALL}"
)

// Decision is the parsed routing outcome of one screening turn.
type Decision int

const (
	// DecisionContinue keeps the dialogue going: speak the reply, gather again.
	DecisionContinue Decision = iota
	// DecisionTransfer bridges the caller to the screened destination.
	DecisionTransfer
	// DecisionEnd speaks the reply and ends the call.
	DecisionEnd
)

func (d Decision) String() string {
	switch d {
	case DecisionTransfer:
		return "transfer"
	case DecisionEnd:
		return "end"
	default:
		return "continue"
	}
}

// Outcome is the result of processing one caller utterance.
type Outcome struct {
	Decision  Decision
	Spoken    string // token-free text to speak to the caller
	Raw       string // unmodified engine reply, for the audit log
	LatencyMs int64
	Fallback  bool // true when the scripted fallback was used
}

// Config tunes the processor.
type Config struct {
	SystemPrompt string
	Timeout      time.Duration
	ApologyText  string // fallback End text on engine failure
	TransferText string // default spoken text when a transfer reply is token-only
	EndText      string // default spoken text when an end reply is token-only
}

// Processor screens callers with a generative engine under a hard timeout.
type Processor struct {
	engine Engine
	cfg    Config
}

// NewProcessor creates a processor. A nil engine is allowed and makes every
// turn take the fallback path, so the service degrades instead of failing
// when no engine is configured.
func NewProcessor(engine Engine, cfg Config) *Processor {
	return &Processor{engine: engine, cfg: cfg}
}

// Process builds the prompt from the turn history plus the new utterance and
// resolves the engine reply to a Decision. The engine call never exceeds
// cfg.Timeout; on timeout or failure the scripted apology End outcome is
// returned so the call cannot hang on an unavailable upstream.
func (p *Processor) Process(ctx context.Context, history []store.Turn, utterance string) Outcome {
	start := time.Now()

	if p.engine == nil {
		return p.fallback(start, errors.New("no engine configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	raw, err := p.engine.Complete(ctx, p.buildPrompt(history, utterance))
	latency := time.Since(start)
	metrics.ScreenerDuration.Observe(latency.Seconds())

	if err != nil {
		return p.fallback(start, err)
	}
	if strings.TrimSpace(raw) == "" {
		return p.fallback(start, errors.New("empty engine reply"))
	}

	decision, spoken := p.parse(raw)
	return Outcome{
		Decision:  decision,
		Spoken:    spoken,
		Raw:       raw,
		LatencyMs: latency.Milliseconds(),
	}
}

func (p *Processor) buildPrompt(history []store.Turn, utterance string) []Message {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: "system", Content: p.cfg.SystemPrompt})
	for _, t := range history {
		switch t.Speaker {
		case store.SpeakerCaller:
			msgs = append(msgs, Message{Role: "user", Content: t.Text})
		case store.SpeakerAssistant:
			msgs = append(msgs, Message{Role: "assistant", Content: t.Text})
		}
	}
	return append(msgs, Message{Role: "user", Content: utterance})
}

// parse scans for directive tokens, strips them and trims the residue.
// {TRANSFER} wins over {END CALL} if the engine emitted both.
func (p *Processor) parse(raw string) (Decision, string) {
	decision := DecisionContinue
	if strings.Contains(raw, TransferToken) {
		decision = DecisionTransfer
	} else if strings.Contains(raw, EndCallToken) {
		decision = DecisionEnd
	}

	spoken := strings.ReplaceAll(raw, TransferToken, "")
	spoken = strings.ReplaceAll(spoken, EndCallToken, "")
	spoken = strings.TrimSpace(spoken)

	if spoken == "" {
		switch decision {
		case DecisionTransfer:
			spoken = p.cfg.TransferText
		default:
			spoken = p.cfg.EndText
		}
	}
	return decision, spoken
}

func (p *Processor) fallback(start time.Time, err error) Outcome {
	slog.Error("screener fallback", "error", err)
	metrics.ScreenerFallbacks.Inc()
	metrics.Errors.WithLabelValues("screener", errorType(err)).Inc()
	return Outcome{
		Decision:  DecisionEnd,
		Spoken:    p.cfg.ApologyText,
		Raw:       "",
		LatencyMs: time.Since(start).Milliseconds(),
		Fallback:  true,
	}
}

func errorType(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "engine"
}
