package audioio

import (
	"context"
	"fmt"
	"time"

	"github.com/smallnest/ringbuffer"
)

// DefaultRecordDuration is the length of a standalone recording.
const DefaultRecordDuration = 5 * time.Second

// Record captures d of audio from src and returns it as one chunk. The
// source is started and stopped by Record. Capture ends early if the source
// stops; a source running slower than real time is cut off at 2*d plus one second.
func Record(ctx context.Context, src Source, d time.Duration) (AudioChunk, error) {
	cfg := src.Config()
	size := cfg.BytesFor(d)
	if size <= 0 {
		return AudioChunk{}, fmt.Errorf("audioio: invalid record duration %v", d)
	}
	rb := ringbuffer.New(size)

	if err := src.Start(ctx); err != nil {
		return AudioChunk{}, fmt.Errorf("audioio: start recording: %w", err)
	}
	defer src.Stop()

	deadline := time.NewTimer(2*d + time.Second)
	defer deadline.Stop()

	frames := src.Stream()
capture:
	for rb.Free() > 0 {
		select {
		case <-ctx.Done():
			return AudioChunk{}, ctx.Err()
		case <-deadline.C:
			break capture
		case chunk, ok := <-frames:
			if !ok {
				break capture
			}
			// A full buffer truncates the last chunk.
			_, _ = rb.Write(chunk.Bytes())
		}
	}

	buf := make([]byte, rb.Length())
	if len(buf) > 0 {
		if _, err := rb.Read(buf); err != nil {
			return AudioChunk{}, fmt.Errorf("audioio: drain recording: %w", err)
		}
	}
	return ChunkFromBytes(buf, cfg.SampleRate, cfg.Channels), nil
}
