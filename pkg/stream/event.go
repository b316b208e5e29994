// Package stream defines the step events produced by an orchestration and
// their newline-delimited JSON framing.
package stream

import (
	"github.com/ormasoftchile/gcloud-commander/pkg/steps"
)

// EventType discriminates stream events.
type EventType string

const (
	TypeStep  EventType = "step"
	TypeError EventType = "error"
	TypeEnd   EventType = "end"
)

// Event is one message on the stream. Data is a steps.Step for step events,
// an ErrorData for error events and nil for end.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// StepEvent wraps a completed step.
func StepEvent(s steps.Step) Event { return Event{Type: TypeStep, Data: s} }

// ErrorEvent reports a terminal failure.
func ErrorEvent(message string) Event {
	return Event{Type: TypeError, Data: ErrorData{Message: message}}
}

// EndEvent reports successful completion.
func EndEvent() Event { return Event{Type: TypeEnd} }

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool { return e.Type == TypeError || e.Type == TypeEnd }

// Step returns the step carried by a step event.
func (e Event) Step() (steps.Step, bool) {
	s, ok := e.Data.(steps.Step)
	return s, ok && e.Type == TypeStep
}

// Message returns the message of an error event, or "".
func (e Event) Message() string {
	if d, ok := e.Data.(ErrorData); ok {
		return d.Message
	}
	return ""
}
