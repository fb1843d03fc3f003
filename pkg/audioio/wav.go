package audioio

import (
	"fmt"
	"io"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// pcmStreamer adapts interleaved PCM16 samples to beep.Streamer.
type pcmStreamer struct {
	samples  []int16
	channels int
	pos      int
}

func (s *pcmStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for n < len(out) && s.pos+s.channels <= len(s.samples) {
		left := float64(s.samples[s.pos]) / 32768
		right := left
		if s.channels == 2 {
			right = float64(s.samples[s.pos+1]) / 32768
		}
		out[n][0], out[n][1] = left, right
		s.pos += s.channels
		n++
	}
	return n, n > 0
}

func (s *pcmStreamer) Err() error { return nil }

// EncodeWAV writes chunk as a 16-bit PCM WAV file.
func EncodeWAV(w io.WriteSeeker, chunk AudioChunk) error {
	if chunk.Channels != 1 && chunk.Channels != 2 {
		return fmt.Errorf("audioio: wav supports 1 or 2 channels, got %d", chunk.Channels)
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(chunk.SampleRate),
		NumChannels: chunk.Channels,
		Precision:   2,
	}
	streamer := &pcmStreamer{samples: chunk.Samples, channels: chunk.Channels}
	if err := wav.Encode(w, streamer, format); err != nil {
		return fmt.Errorf("audioio: encode wav: %w", err)
	}
	return nil
}

// WriteWAVFile writes chunk to path.
func WriteWAVFile(path string, chunk AudioChunk) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audioio: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return EncodeWAV(f, chunk)
}

// WriteTempWAV writes chunk to a new temporary file and returns its path.
// The caller removes the file.
func WriteTempWAV(chunk AudioChunk) (string, error) {
	f, err := os.CreateTemp("", "coworker-*.wav")
	if err != nil {
		return "", fmt.Errorf("audioio: create temp wav: %w", err)
	}
	path := f.Name()
	if err := EncodeWAV(f, chunk); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
