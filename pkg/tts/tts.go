// Package tts turns text into speech through the LMNT synthesis API and
// plays the result through an external player process.
//
// Example usage:
//
//	synth, _ := tts.NewLMNT(tts.WithAPIKey(os.Getenv("LMNT_API_KEY")))
//	result, _ := synth.Synthesize(ctx, "Hello world")
//	_ = tts.NewPlayer().Play(ctx, result.Audio)
package tts

import (
	"context"
	"time"
)

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*AudioResult, error)
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	// Audio contains the encoded audio.
	Audio []byte

	// Format is the audio encoding, e.g. "mp3".
	Format string

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request round-trip time in milliseconds.
	LatencyMs int64
}

// Latency returns the request round-trip time.
func (r *AudioResult) Latency() time.Duration {
	return time.Duration(r.LatencyMs) * time.Millisecond
}
