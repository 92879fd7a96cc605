// Package twiml builds the control documents returned to the telephony
// gateway. The vocabulary is deliberately closed: Say, Gather, Dial,
// Redirect, Hangup, combined into the handful of composite documents the
// call flow needs.
package twiml

import (
	"encoding/xml"
	"fmt"
)

// Response is one control document. Verb order is fixed by field order:
// every document this service emits speaks first, then gathers, dials,
// redirects or hangs up.
type Response struct {
	XMLName  xml.Name  `xml:"Response"`
	Say      *Say      `xml:"Say,omitempty"`
	Gather   *Gather   `xml:"Gather,omitempty"`
	Dial     *Dial     `xml:"Dial,omitempty"`
	Redirect *Redirect `xml:"Redirect,omitempty"`
	Hangup   *Hangup   `xml:"Hangup,omitempty"`
}

// Say speaks text to the caller.
type Say struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

// Gather collects speech and posts the result to Action. A nested Say plays
// while the gather is listening.
type Gather struct {
	Input      string `xml:"input,attr"`
	Action     string `xml:"action,attr"`
	Method     string `xml:"method,attr"`
	TimeoutSec int    `xml:"timeout,attr"`
	Say        *Say   `xml:"Say,omitempty"`
}

// Dial bridges the caller to Number and posts the outcome to Action.
type Dial struct {
	TimeoutSec     int    `xml:"timeout,attr"`
	Record         string `xml:"record,attr"`
	AnswerOnBridge bool   `xml:"answerOnBridge,attr"`
	Action         string `xml:"action,attr"`
	Number         string `xml:",chardata"`
}

// Redirect re-enters the call flow at URL when the preceding gather expires.
type Redirect struct {
	Method string `xml:"method,attr"`
	URL    string `xml:",chardata"`
}

// Hangup ends the call.
type Hangup struct{}

// Encode renders the document with an XML declaration.
func (r *Response) Encode() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// GatherSpeech builds a speak-then-listen document: the prompt plays, speech
// is collected for timeoutSec, and an expired gather redirects back to
// actionURL so the no-speech branch runs.
func GatherSpeech(voice, prompt, actionURL string, timeoutSec int) *Response {
	return &Response{
		Gather: &Gather{
			Input:      "speech",
			Action:     actionURL,
			Method:     "POST",
			TimeoutSec: timeoutSec,
			Say:        &Say{Voice: voice, Text: prompt},
		},
		Redirect: &Redirect{Method: "POST", URL: actionURL},
	}
}

// Greet builds the inbound-call document: spoken greeting followed by a
// bare gather.
func Greet(voice, greeting, actionURL string, timeoutSec int) *Response {
	return &Response{
		Say: &Say{Voice: voice, Text: greeting},
		Gather: &Gather{
			Input:      "speech",
			Action:     actionURL,
			Method:     "POST",
			TimeoutSec: timeoutSec,
		},
		Redirect: &Redirect{Method: "POST", URL: actionURL},
	}
}

// Transfer builds a speak-then-dial document. The dial outcome is posted to
// statusURL so a busy or unanswered transfer can fall back.
func Transfer(voice, spoken, number, statusURL string, timeoutSec int) *Response {
	return &Response{
		Say: &Say{Voice: voice, Text: spoken},
		Dial: &Dial{
			TimeoutSec:     timeoutSec,
			Record:         "false",
			AnswerOnBridge: true,
			Action:         statusURL,
			Number:         number,
		},
	}
}

// SayHangup builds a final spoken message followed by hangup.
func SayHangup(voice, text string) *Response {
	return &Response{
		Say:    &Say{Voice: voice, Text: text},
		Hangup: &Hangup{},
	}
}

// HangupOnly ends the call without speaking.
func HangupOnly() *Response {
	return &Response{Hangup: &Hangup{}}
}
