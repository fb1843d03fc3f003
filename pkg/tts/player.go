package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
)

// DefaultPlayerCommand plays MP3 from stdin.
var DefaultPlayerCommand = []string{"mpg321", "-q", "-"}

// Player pipes encoded audio into an external player process. Playback is
// serialized: a second Play waits for the first to finish.
type Player struct {
	command []string
	logger  *slog.Logger

	mu sync.Mutex
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithCommand sets the player command. The audio is written to its stdin.
func WithCommand(name string, args ...string) PlayerOption {
	return func(p *Player) {
		p.command = append([]string{name}, args...)
	}
}

// WithPlayerLogger sets the logger.
func WithPlayerLogger(logger *slog.Logger) PlayerOption {
	return func(p *Player) {
		p.logger = logger
	}
}

// NewPlayer creates a Player using DefaultPlayerCommand.
func NewPlayer(opts ...PlayerOption) *Player {
	p := &Player{
		command: DefaultPlayerCommand,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "tts.player")
	return p
}

// Play writes audio to the player and waits for it to exit.
func (p *Player) Play(ctx context.Context, audio []byte) error {
	if len(p.command) == 0 {
		return ErrNoPlayer
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Stdin = bytes.NewReader(audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("tts: %s: %w: %s", p.command[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	p.logger.Debug("played audio", "bytes", len(audio), "player", p.command[0])
	return nil
}

// SinkBuffer is how many payloads a Sink queues before dropping.
const SinkBuffer = 256

// Sink returns a callback for streaming audio output. Payloads are queued
// and played one at a time in arrival order by a single goroutine that
// exits when ctx is done. The callback never blocks; when the queue is
// full the payload is dropped. Errors are logged.
func (p *Player) Sink(ctx context.Context) func([]byte) {
	queue := make(chan []byte, SinkBuffer)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-queue:
				if err := p.Play(ctx, data); err != nil && ctx.Err() == nil {
					p.logger.Warn("playback failed", "error", err)
				}
			}
		}
	}()

	return func(audio []byte) {
		data := append([]byte(nil), audio...)
		select {
		case <-ctx.Done():
		case queue <- data:
		default:
			p.logger.Warn("playback queue full, dropping audio", "bytes", len(data))
		}
	}
}
