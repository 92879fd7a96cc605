// Package prompts holds the scripted caller-facing lines and the screener
// system prompt. Everything the caller can hear originates here or in the
// generative engine's reply.
package prompts

import (
	"fmt"
	"time"
)

// System returns the screener persona prompt. The directive tokens it
// instructs the model to emit are parsed by the screener package.
func System(owner string) string {
	return fmt.Sprintf(`You are %[1]s's AI call screener. You only answer calls when %[1]s is working or sleeping.

Use good judgment: only transfer calls that are true emergencies or urgent personal or business matters. The caller must clearly explain why it is urgent. Just saying "it's urgent" is not enough.

Politely decline all other calls. Do not transfer them. Never take or promise to deliver a message. Instead, tell them to text %[1]s directly if needed.

If the caller is trolling, joking, testing you, wasting time, or selling something: respond with one short, witty but always polite line, then end the call. Never transfer them.

If the caller says something suspicious or threatening: stay calm and polite. Do not argue. Firmly decline and end the call. Never transfer them.

If the caller is unclear but not obviously trolling: ask one polite follow-up question to find out exactly what they want. If they explain and it is truly urgent, transfer. If it is not urgent, tell them to text %[1]s and end the call. If they stay vague, end the call.

Always be warm, polite, and professional. Use short, natural sentences. When giving a final answer, always end with {TRANSFER} or {END CALL}. Do not use {TRANSFER} or {END CALL} when asking a clarifying question.

When in doubt: politely end the call. %[1]s's time is the priority.`, owner)
}

// Greeting is the opening line spoken on a new call.
func Greeting(owner string, now time.Time) string {
	return fmt.Sprintf("%s! I am %s's virtual assistant. Tell me how %s can help you today, and I will see if I can get a hold of them.",
		timeGreeting(now), owner, owner)
}

func timeGreeting(t time.Time) string {
	switch hour := t.Hour(); {
	case hour >= 5 && hour < 12:
		return "Good morning"
	case hour >= 12 && hour < 17:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// ExceptionGreeting is spoken to a recognized contact before the direct transfer.
func ExceptionGreeting(contactName string) string {
	return fmt.Sprintf("Hi %s! Connecting you now.", contactName)
}

// Reprompt is spoken when the gather returned no recognized speech.
const Reprompt = "I didn't hear anything. Can you please repeat how I can help?"

// NoSpeechGoodbye is spoken when the no-speech retry budget is exhausted.
const NoSpeechGoodbye = "Sorry, I still didn't hear anything. Goodbye!"

// Apology is the safe fallback when the engine is unavailable or a webhook
// cannot be interpreted.
func Apology(owner string) string {
	return fmt.Sprintf("Sorry, I'm having trouble right now. Please text %s if it's urgent. Goodbye!", owner)
}

// TransferFallback is spoken when a transfer attempt fails.
func TransferFallback(owner string) string {
	return fmt.Sprintf("Unfortunately %s is on another call. Please text them and they will get back to you as soon as possible.", owner)
}

// DefaultTransferLine is spoken when the engine decided to transfer but left
// no spoken text after token stripping.
const DefaultTransferLine = "Sounds urgent. Connecting you now."

// DefaultEndLine is spoken when the engine decided to end the call but left
// no spoken text after token stripping.
const DefaultEndLine = "Please text if it's urgent. Goodbye!"
