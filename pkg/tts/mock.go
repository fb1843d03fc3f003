package tts

import (
	"context"
	"sync"
)

// Mock implements Synthesizer for testing.
type Mock struct {
	// SynthesizeFunc overrides the default behavior, which returns the text
	// bytes as audio.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	mu    sync.Mutex
	texts []string
}

// NewMock creates a new mock synthesizer.
func NewMock() *Mock {
	return &Mock{}
}

// Synthesize implements Synthesizer.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return &AudioResult{Audio: []byte(text), Format: FormatMP3, CharCount: len(text)}, nil
}

// Texts returns the texts synthesized so far.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

var _ Synthesizer = (*Mock)(nil)
