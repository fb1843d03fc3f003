package session

import (
	"time"

	"github.com/teslashibe/go-coworker/pkg/event"
)

// StatusKind categorizes a status line.
type StatusKind string

// Status kinds.
const (
	StatusInfo       StatusKind = "info"
	StatusMessage    StatusKind = "message"
	StatusTool       StatusKind = "tool"
	StatusAudio      StatusKind = "audio"
	StatusDiagnostic StatusKind = "diagnostic"
	StatusError      StatusKind = "error"
)

// Status is one line of operator-visible status.
type Status struct {
	SessionID string        `json:"session_id"`
	Kind      StatusKind    `json:"kind"`
	Text      string        `json:"text"`
	Role      string        `json:"role,omitempty"`
	Emotions  []event.Score `json:"emotions,omitempty"`
	At        time.Time     `json:"at"`
}

// Observer receives state changes and status lines. Calls are made from the
// driver's goroutines and must not block.
type Observer interface {
	OnState(sessionID string, from, to State)
	OnStatus(s Status)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	State  func(sessionID string, from, to State)
	Status func(s Status)
}

// OnState implements Observer.
func (o ObserverFuncs) OnState(sessionID string, from, to State) {
	if o.State != nil {
		o.State(sessionID, from, to)
	}
}

// OnStatus implements Observer.
func (o ObserverFuncs) OnStatus(s Status) {
	if o.Status != nil {
		o.Status(s)
	}
}
