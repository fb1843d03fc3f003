// Package event models the inbound messages of a voice session as a closed
// set of Go types and routes each one to the code that consumes it.
//
// A raw wire message is turned into an Event with Decode. Every Event has a
// Kind; message kinds become transcript turns, tool calls go to the tool
// dispatcher, audio output is acknowledged and anything else is kept as an
// Other so new server message types never break the session loop.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the shape of an Event.
type Kind string

// Event kinds.
const (
	KindUserMessage      Kind = "user_message"
	KindAssistantMessage Kind = "assistant_message"
	KindToolCall         Kind = "tool_call"
	KindAudioOutput      Kind = "audio_output"
	KindOther            Kind = "other"
)

// IsMessage reports whether k is a conversational turn.
func (k Kind) IsMessage() bool {
	return k == KindUserMessage || k == KindAssistantMessage
}

// Sentinel errors for the event package.
var (
	// ErrMissingType indicates a wire message without a "type" field.
	ErrMissingType = errors.New("event: message has no type")

	// ErrInvalidMessage indicates a wire message that could not be decoded.
	ErrInvalidMessage = errors.New("event: invalid message")
)

// Event is one inbound message from the voice transport.
// The set of implementations is closed: Message, ToolCall, AudioOutput, Other.
type Event interface {
	Kind() Kind
	sealed()
}

// Message is a user or assistant turn.
type Message struct {
	// Type is KindUserMessage or KindAssistantMessage.
	Type    Kind
	Role    string
	Content string

	// Prosody holds the expression scores attached by the voice service, if any.
	Prosody map[string]float64
}

// Kind implements Event.
func (m Message) Kind() Kind { return m.Type }

func (Message) sealed() {}

// Score is one named emotion score.
type Score struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// TopEmotions returns the n highest prosody scores, highest first.
// Ties are broken by name so the result is stable.
func (m Message) TopEmotions(n int) []Score {
	if n <= 0 || len(m.Prosody) == 0 {
		return nil
	}
	scores := make([]Score, 0, len(m.Prosody))
	for name, v := range m.Prosody {
		scores = append(scores, Score{Name: name, Score: v})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Name < scores[j].Name
	})
	if n < len(scores) {
		scores = scores[:n]
	}
	return scores
}

// ToolCall asks the client to perform a named side effect.
type ToolCall struct {
	CallID string
	Name   string

	// Arguments is the serialized JSON argument object, unparsed.
	Arguments string

	ResponseRequired bool
}

// Kind implements Event.
func (ToolCall) Kind() Kind { return KindToolCall }

func (ToolCall) sealed() {}

// AudioOutput is synthesized speech already produced by the voice service.
type AudioOutput struct {
	ID   string
	Data []byte
}

// Kind implements Event.
func (AudioOutput) Kind() Kind { return KindAudioOutput }

func (AudioOutput) sealed() {}

// Other is any message type this package does not model. The full field set
// is retained for diagnostics.
type Other struct {
	Type   string
	Fields map[string]any
}

// Kind implements Event.
func (Other) Kind() Kind { return KindOther }

func (Other) sealed() {}

// Render formats the fields as "key: value" lines, keys sorted.
func (o Other) Render() string {
	keys := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(renderValue(o.Fields[k]))
	}
	return b.String()
}

func renderValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Classify returns the kind of ev. A nil event is KindOther.
func Classify(ev Event) Kind {
	if ev == nil {
		return KindOther
	}
	return ev.Kind()
}
