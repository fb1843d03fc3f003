//go:build cgo

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"
)

// MalgoSource captures from the default input device through miniaudio.
// The device callback is the only writer of a ring buffer; a pump goroutine
// is its only reader and slices it into chunks.
type MalgoSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	ring     *ringbuffer.RingBuffer
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}

	chunksRead atomic.Int64
	overruns   atomic.Int64
}

func newMalgoSource(cfg Config, logger *slog.Logger) (Source, error) {
	actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audioio: init audio context: %w", err)
	}

	s := &MalgoSource{
		cfg:      cfg,
		logger:   logger.With("component", "audioio.malgo"),
		ctx:      actx,
		ring:     ringbuffer.New(cfg.BytesFor(time.Second)),
		streamCh: make(chan AudioChunk),
	}
	close(s.streamCh)

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * cfg.Channels

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = uint32(cfg.SampleRate)
	devCfg.Capture.Format = format
	devCfg.Capture.Channels = uint32(cfg.Channels)
	devCfg.Alsa.NoMMap = 1
	devCfg.PeriodSizeInMilliseconds = uint32(cfg.BufferDuration.Milliseconds())

	s.device, err = malgo.InitDevice(actx.Context, devCfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(input) < n {
				return
			}
			if _, err := s.ring.Write(input[:n]); err != nil {
				s.overruns.Add(1)
			}
		},
	})
	if err != nil {
		_ = actx.Uninit()
		actx.Free()
		return nil, fmt.Errorf("audioio: init capture device: %w", err)
	}

	return s, nil
}

// Start begins capture.
func (s *MalgoSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	s.ring.Reset()
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("audioio: start capture device: %w", err)
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.streamCh = make(chan AudioChunk, 10)
	go s.pump(ctx, s.stopCh, s.streamCh)

	s.logger.Info("capture started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
	)
	return nil
}

// pump drains the ring into chunks and owns out.
func (s *MalgoSource) pump(ctx context.Context, stop <-chan struct{}, out chan<- AudioChunk) {
	defer close(out)

	ticker := time.NewTicker(s.cfg.BufferDuration)
	defer ticker.Stop()

	chunkBytes := s.cfg.BufferBytes()
	for {
		select {
		case <-ctx.Done():
			_ = s.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
			for s.ring.Length() >= chunkBytes {
				buf := make([]byte, chunkBytes)
				n, err := s.ring.Read(buf)
				if err != nil || n == 0 {
					break
				}
				select {
				case out <- ChunkFromBytes(buf[:n], s.cfg.SampleRate, s.cfg.Channels):
					s.chunksRead.Add(1)
				default:
					s.overruns.Add(1)
				}
			}
		}
	}
}

// Stop halts capture.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)

	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("audioio: stop capture device: %w", err)
	}
	s.logger.Info("capture stopped", "overruns", s.overruns.Load())
	return nil
}

// Stream returns the chunk channel of the current capture.
func (s *MalgoSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *MalgoSource) Config() Config {
	return s.cfg
}

// Name returns "malgo".
func (s *MalgoSource) Name() string {
	return string(BackendMalgo)
}

// Close releases the device and context.
func (s *MalgoSource) Close() error {
	err := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	s.closed = true
	s.device.Uninit()
	_ = s.ctx.Uninit()
	s.ctx.Free()
	return err
}

// Stats returns capture statistics.
func (s *MalgoSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead: s.chunksRead.Load(),
		Overruns:   s.overruns.Load(),
		Running:    running,
		Backend:    string(BackendMalgo),
	}
}

const malgoAvailable = true
