// Package audioio captures microphone audio for voice sessions and records
// fixed-length clips.
//
// Backends:
//   - malgo (miniaudio) - real capture device, requires cgo
//   - mock - synthetic audio for tests and headless runs
package audioio

import (
	"errors"
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects malgo when built with cgo, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendMalgo captures from the default device through miniaudio.
	BackendMalgo Backend = "malgo"
	// BackendMock generates synthetic audio.
	BackendMock Backend = "mock"
)

// Sample rates used by the application.
const (
	// StreamSampleRate is what the voice service expects for linear16 input.
	StreamSampleRate = 16000
	// RecordSampleRate is used for standalone recordings.
	RecordSampleRate = 44100
)

// ErrBackendUnavailable is returned when a backend is not compiled in.
var ErrBackendUnavailable = errors.New("audioio: backend not available in this build")

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `json:"channels"`

	// BufferDuration is the length of each delivered chunk.
	BufferDuration time.Duration `json:"buffer_duration"`
}

// DefaultConfig returns a mono 16 kHz configuration with 20ms chunks.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     StreamSampleRate,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per chunk.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a chunk in bytes (int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}

// BytesFor returns the number of PCM16 bytes covering d.
func (c *Config) BytesFor(d time.Duration) int {
	frames := int(float64(c.SampleRate) * d.Seconds())
	return frames * c.Channels * 2
}
