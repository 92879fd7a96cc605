package callflow

import (
	"strings"

	"github.com/vathakkar/ai-voice-concierge/internal/store"
)

// bypassMarker opens the system turn logged when an exception contact skips
// screening. Its presence lets later webhooks re-derive which transfer
// decision the call is heading toward.
const bypassMarker = "Screening bypassed:"

// transferMarker is the system turn logged when a screening transfer is
// issued. A replayed speech webhook uses it to re-emit the dial document
// instead of another gather.
const transferMarker = "Transfer initiated"

// callState is the protocol position re-derived from persisted rows. Webhooks
// are independent stateless requests, so nothing here survives in process
// memory between two events of the same call.
type callState struct {
	// retries is how many no-speech reprompts have already been spoken since
	// the caller last said something.
	retries int
	// exceptionBypass is true when the call skipped screening via the registry.
	exceptionBypass bool
}

// deriveState reconstructs the protocol position from the turn history.
// Assistant turns since the last caller turn are one prompt (greeting or
// screener reply) plus one turn per no-speech reprompt.
func deriveState(turns []store.Turn) callState {
	var st callState
	promptsSinceCaller := 0
	for _, t := range turns {
		switch t.Speaker {
		case store.SpeakerCaller:
			promptsSinceCaller = 0
		case store.SpeakerAssistant:
			promptsSinceCaller++
		case store.SpeakerSystem:
			if strings.HasPrefix(t.Text, bypassMarker) {
				st.exceptionBypass = true
			}
		}
	}
	if promptsSinceCaller > 1 {
		st.retries = promptsSinceCaller - 1
	}
	return st
}
