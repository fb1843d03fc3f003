package event

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type wireMessage struct {
	Type    string `json:"type"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Models struct {
		Prosody *struct {
			Scores map[string]float64 `json:"scores"`
		} `json:"prosody"`
	} `json:"models"`

	// tool_call
	Name             string `json:"name"`
	Parameters       string `json:"parameters"`
	ToolCallID       string `json:"tool_call_id"`
	ResponseRequired bool   `json:"response_required"`

	// audio_output
	ID   string `json:"id"`
	Data string `json:"data"`
}

// Decode parses one wire message. A message without a type is an error;
// a type this package does not model decodes to Other.
func Decode(raw []byte) (Event, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if head.Type == nil || *head.Type == "" {
		return nil, ErrMissingType
	}

	switch Kind(*head.Type) {
	case KindUserMessage, KindAssistantMessage, KindToolCall, KindAudioOutput:
	default:
		fields := make(map[string]any)
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return Other{Type: *head.Type, Fields: fields}, nil
	}

	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, *head.Type, err)
	}

	switch Kind(msg.Type) {
	case KindToolCall:
		return ToolCall{
			CallID:           msg.ToolCallID,
			Name:             msg.Name,
			Arguments:        msg.Parameters,
			ResponseRequired: msg.ResponseRequired,
		}, nil

	case KindAudioOutput:
		data, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: audio_output data: %v", ErrInvalidMessage, err)
		}
		return AudioOutput{ID: msg.ID, Data: data}, nil

	default:
		m := Message{
			Type:    Kind(msg.Type),
			Role:    msg.Message.Role,
			Content: msg.Message.Content,
		}
		if msg.Models.Prosody != nil {
			m.Prosody = msg.Models.Prosody.Scores
		}
		return m, nil
	}
}
