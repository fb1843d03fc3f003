package evi

import (
	"sync"

	"github.com/teslashibe/go-coworker/pkg/event"
)

// Mock is an in-memory stand-in for Conn, for testing.
type Mock struct {
	mu     sync.Mutex
	events chan event.Event
	closed bool
	err    error

	// Configurable behavior
	SendTextFunc  func(text string) error
	SendAudioFunc func(pcm []byte) error

	// Captured calls for assertions
	TextsSent     []string
	AudioSent     [][]byte
	ToolResponses map[string]string
	ToolErrors    map[string]string
	CloseCalls    int
}

// NewMock creates a Mock with a buffered event channel.
func NewMock() *Mock {
	return &Mock{
		events:        make(chan event.Event, 256),
		ToolResponses: make(map[string]string),
		ToolErrors:    make(map[string]string),
	}
}

// SendText records a text turn.
func (m *Mock) SendText(text string) error {
	if m.SendTextFunc != nil {
		return m.SendTextFunc(text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	m.TextsSent = append(m.TextsSent, text)
	return nil
}

// SendAudio records an audio frame.
func (m *Mock) SendAudio(pcm []byte) error {
	if m.SendAudioFunc != nil {
		return m.SendAudioFunc(pcm)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	m.AudioSent = append(m.AudioSent, pcm)
	return nil
}

// SendToolResponse records a tool response.
func (m *Mock) SendToolResponse(callID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	m.ToolResponses[callID] = content
	return nil
}

// SendToolError records a tool error.
func (m *Mock) SendToolError(callID, errMsg, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	m.ToolErrors[callID] = errMsg
	return nil
}

// Events returns the event channel.
func (m *Mock) Events() <-chan event.Event {
	return m.events
}

// Err returns the error set by SimulateError.
func (m *Mock) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close closes the event channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}

// Closed reports whether Close has been called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Simulate delivers an event. It is a no-op after Close.
func (m *Mock) Simulate(ev event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.events <- ev
}

// SimulateMessage delivers a user or assistant turn.
func (m *Mock) SimulateMessage(kind event.Kind, role, content string) {
	m.Simulate(event.Message{Type: kind, Role: role, Content: content})
}

// SimulateToolCall delivers a tool call.
func (m *Mock) SimulateToolCall(callID, name, arguments string) {
	m.Simulate(event.ToolCall{CallID: callID, Name: name, Arguments: arguments, ResponseRequired: true})
}

// SimulateError ends the session with err, as the server or transport would.
func (m *Mock) SimulateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.err = err
	m.closed = true
	close(m.events)
}

// ToolResponse returns the captured response for callID.
func (m *Mock) ToolResponse(callID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.ToolResponses[callID]
	return content, ok
}

// AudioFrames returns the number of audio frames sent.
func (m *Mock) AudioFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.AudioSent)
}
