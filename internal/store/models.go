package store

import "time"

// Speaker values for conversation turns.
const (
	SpeakerCaller    = "caller"
	SpeakerAssistant = "assistant"
	SpeakerSystem    = "system"
)

// Final decision values recorded on a call.
const (
	DecisionTransferred          = "transferred"
	DecisionTransferredException = "transferred_exception"
	DecisionCompleted            = "completed"
	DecisionEndedNoSpeech        = "ended_no_speech"
)

// Call is one telephone call, keyed by the gateway-supplied call SID.
type Call struct {
	CallID        string     `json:"call_id"`
	CallerID      string     `json:"caller_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	FinalDecision *string    `json:"final_decision,omitempty"`
}

// Turn is one logged unit of dialogue within a call.
type Turn struct {
	CallID    string    `json:"-"`
	TurnIndex int       `json:"turn_index"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMs *int64    `json:"latency_ms,omitempty"`
}

// Conversation is a call together with its ordered turn history.
type Conversation struct {
	Call
	Turns []Turn `json:"conversation"`
}

// ExceptionContact is a caller identity that bypasses AI screening.
type ExceptionContact struct {
	PhoneNumber string    `json:"phone_number"`
	ContactName string    `json:"contact_name"`
	Category    string    `json:"category"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}
