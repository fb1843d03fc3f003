package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Signal produces the samples a MockSource emits.
type Signal interface {
	// Fill writes len(buf) interleaved samples for cfg.
	Fill(buf []int16, cfg Config)
}

// Silence emits zeros.
type Silence struct{}

// Fill implements Signal.
func (Silence) Fill(buf []int16, _ Config) {
	clear(buf)
}

// Sine emits a tone on every channel.
type Sine struct {
	Frequency float64
	Amplitude float64 // 0..1

	frame int
}

// Fill implements Signal.
func (s *Sine) Fill(buf []int16, cfg Config) {
	for i := 0; i+cfg.Channels <= len(buf); i += cfg.Channels {
		t := float64(s.frame) / float64(cfg.SampleRate)
		v := int16(s.Amplitude * math.Sin(2*math.Pi*s.Frequency*t) * math.MaxInt16)
		for ch := 0; ch < cfg.Channels; ch++ {
			buf[i+ch] = v
		}
		s.frame = (s.frame + 1) % cfg.SampleRate
	}
}

// Clip loops a pre-recorded run of samples in the source's format, such as
// a spoken phrase loaded from a WAV fixture.
type Clip struct {
	Samples []int16

	pos int
}

// Fill implements Signal.
func (c *Clip) Fill(buf []int16, _ Config) {
	if len(c.Samples) == 0 {
		clear(buf)
		return
	}
	for i := range buf {
		buf[i] = c.Samples[c.pos]
		c.pos = (c.pos + 1) % len(c.Samples)
	}
}

// MockSource emits chunks from a Signal on a ticker, one chunk per
// BufferDuration. Chunks are dropped and counted as overruns when the
// consumer falls behind.
type MockSource struct {
	cfg    Config
	signal Signal
	logger *slog.Logger

	mu     sync.Mutex
	run    *mockRun
	stream chan AudioChunk
	closed bool

	chunks   atomic.Int64
	overruns atomic.Int64
}

// mockRun is one Start..Stop cycle.
type mockRun struct {
	stop chan struct{}
	once sync.Once
}

func (r *mockRun) halt() {
	r.once.Do(func() { close(r.stop) })
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSignal sets what the source emits. The default is Silence.
func WithSignal(s Signal) MockSourceOption {
	return func(m *MockSource) {
		m.signal = s
	}
}

// WithSineWave emits a tone of the given frequency and amplitude.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return WithSignal(&Sine{Frequency: frequency, Amplitude: amplitude})
}

// WithClip loops the samples of chunk, which must match the source format.
func WithClip(chunk AudioChunk) MockSourceOption {
	return WithSignal(&Clip{Samples: chunk.Samples})
}

// NewMockSource creates a mock source. Its stream is closed until Start.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:    cfg,
		signal: Silence{},
		logger: logger.With("component", "audioio.mock"),
		stream: make(chan AudioChunk),
	}
	close(m.stream)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins emitting until Stop or ctx is done. Starting a running
// source is a no-op.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.run != nil {
		return nil
	}

	run := &mockRun{stop: make(chan struct{})}
	out := make(chan AudioChunk, 10)
	m.run, m.stream = run, out
	go m.emit(ctx, run, out)

	m.logger.Debug("mock audio source started", "sample_rate", m.cfg.SampleRate)
	return nil
}

// emit owns out and closes it when the run ends.
func (m *MockSource) emit(ctx context.Context, run *mockRun, out chan<- AudioChunk) {
	defer close(out)
	defer m.finish(run)

	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-run.stop:
			return
		case <-ticker.C:
			chunk := AudioChunk{
				Samples:    make([]int16, m.cfg.BufferSize()*m.cfg.Channels),
				SampleRate: m.cfg.SampleRate,
				Channels:   m.cfg.Channels,
			}
			m.signal.Fill(chunk.Samples, m.cfg)

			select {
			case out <- chunk:
				m.chunks.Add(1)
			default:
				m.overruns.Add(1)
			}
		}
	}
}

// finish clears run if it is still current.
func (m *MockSource) finish(run *mockRun) {
	run.halt()
	m.mu.Lock()
	if m.run == run {
		m.run = nil
	}
	m.mu.Unlock()
}

// Stop halts the current run. The stream closes once the emitter exits.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	run := m.run
	m.run = nil
	m.mu.Unlock()
	if run != nil {
		run.halt()
	}
	return nil
}

// Stream returns the chunk channel of the current run.
func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return string(BackendMock)
}

// Close stops the source permanently.
func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.run != nil
	m.mu.Unlock()
	return SourceStats{
		ChunksRead: m.chunks.Load(),
		Overruns:   m.overruns.Load(),
		Running:    running,
		Backend:    string(BackendMock),
	}
}

var _ Source = (*MockSource)(nil)
