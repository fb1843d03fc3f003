package audioio

import (
	"context"
	"encoding/binary"
	"io"
)

// AudioChunk is a run of interleaved PCM16 samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes returns the samples as little-endian PCM16.
func (c AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration returns the length of the chunk in seconds.
func (c AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// ChunkFromBytes builds a chunk from little-endian PCM16 bytes.
func ChunkFromBytes(data []byte, sampleRate, channels int) AudioChunk {
	return AudioChunk{
		Samples:    BytesToSamples(data),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// BytesToSamples decodes little-endian PCM16. A trailing odd byte is dropped.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes encodes samples as little-endian PCM16.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins capture. Chunks are then delivered on Stream.
	Start(ctx context.Context) error

	// Stop halts capture and closes the Stream channel.
	// It is safe to call Stop multiple times.
	Stop() error

	// Stream returns the chunk channel of the current capture.
	// Call it after Start.
	Stream() <-chan AudioChunk

	// Config returns the audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close releases all resources. The source cannot be restarted.
	io.Closer
}

// SourceStats contains capture statistics.
type SourceStats struct {
	ChunksRead int64  `json:"chunks_read"`
	Overruns   int64  `json:"overruns"`
	Running    bool   `json:"running"`
	Backend    string `json:"backend"`
}
