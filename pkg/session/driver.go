// Package session drives one real-time voice session: it opens the transport,
// streams microphone audio and operator text into it, and feeds inbound
// events to the transcript and the tool dispatcher until the session closes.
//
// Only one session runs per Driver at a time. Every failure while connecting
// or active is logged, published as a status line and resolves to
// StateClosed; Run never leaves goroutines behind.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-coworker/pkg/audioio"
	"github.com/teslashibe/go-coworker/pkg/event"
	"github.com/teslashibe/go-coworker/pkg/evi"
	"github.com/teslashibe/go-coworker/pkg/tools"
	"github.com/teslashibe/go-coworker/pkg/transcript"
)

// DefaultHandshakeTimeout bounds transport setup.
const DefaultHandshakeTimeout = 10 * time.Second

// TopEmotions is how many prosody scores accompany a message status line.
const TopEmotions = 3

// Sentinel errors for the session package.
var (
	// ErrAlreadyRunning is returned by Run while a session is in progress.
	ErrAlreadyRunning = errors.New("session: already running")

	// ErrNoDialer indicates the driver was created without a transport dialer.
	ErrNoDialer = errors.New("session: dialer is required")

	// ErrNotActive is returned by SendText when no session is active.
	ErrNotActive = errors.New("session: not active")
)

// Internal end-of-session reasons. They resolve to a clean close.
var (
	errQuit         = errors.New("session: quit requested")
	errRemoteClosed = errors.New("session: remote closed the session")
)

// Transport is an open voice-service session.
type Transport interface {
	SendText(text string) error
	SendAudio(pcm []byte) error
	SendToolResponse(callID, content string) error
	SendToolError(callID, errMsg, content string) error

	// Events is closed when the session ends; Err then reports why.
	Events() <-chan event.Event
	Err() error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Transport, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// EVIDialer dials the Hume EVI service with cfg.
func EVIDialer(cfg evi.Config) Dialer {
	return DialerFunc(func(ctx context.Context) (Transport, error) {
		conn, err := evi.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// Dispatcher runs tool calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, call event.ToolCall) tools.Result
}

// Config configures a Driver.
type Config struct {
	// Dialer opens the voice transport. Required.
	Dialer Dialer

	// Dispatcher runs tool calls. Without one, tool calls are only reported.
	Dispatcher Dispatcher

	// Transcript receives message turns. A new sink is created if nil.
	Transcript *transcript.Sink

	// Microphone streams audio into the session. Optional.
	Microphone audioio.Source

	// Lines supplies operator text. Optional.
	Lines LineSource

	// Prelude runs once before dialing, e.g. a fixed-length recording
	// pipeline. Its failure is reported but does not stop the session.
	Prelude func(ctx context.Context) error

	Observer         Observer
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Driver owns the lifecycle of voice sessions.
type Driver struct {
	cfg        Config
	transcript *transcript.Sink
	observer   Observer
	logger     *slog.Logger

	running atomic.Bool

	mu        sync.RWMutex
	state     State
	sessionID string
	transport Transport
	cancel    context.CancelFunc
	lastErr   error

	messages  atomic.Int64
	toolCalls atomic.Int64
}

// New creates a Driver.
func New(cfg Config) (*Driver, error) {
	if cfg.Dialer == nil {
		return nil, ErrNoDialer
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	sink := cfg.Transcript
	if sink == nil {
		sink = transcript.New()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = ObserverFuncs{}
	}
	return &Driver{
		cfg:        cfg,
		transcript: sink,
		observer:   obs,
		logger:     cfg.Logger.With("component", "session"),
		state:      StateIdle,
	}, nil
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// SessionID returns the id of the current or last session.
func (d *Driver) SessionID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sessionID
}

// Err returns the cause that ended the last session, or nil.
func (d *Driver) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

// Transcript returns the sink the driver appends to.
func (d *Driver) Transcript() *transcript.Sink {
	return d.transcript
}

// Stats is a snapshot of per-session counters.
type Stats struct {
	SessionID string `json:"session_id"`
	State     State  `json:"state"`
	Messages  int64  `json:"messages"`
	ToolCalls int64  `json:"tool_calls"`
	Turns     int    `json:"turns"`
}

// Stats returns per-session counters.
func (d *Driver) Stats() Stats {
	d.mu.RLock()
	id, state := d.sessionID, d.state
	d.mu.RUnlock()
	return Stats{
		SessionID: id,
		State:     state,
		Messages:  d.messages.Load(),
		ToolCalls: d.toolCalls.Load(),
		Turns:     d.transcript.Len(),
	}
}

// Stop requests the active session to close. It does not wait.
func (d *Driver) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	d.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// SendText forwards operator text to the active session.
func (d *Driver) SendText(text string) error {
	d.mu.RLock()
	tr, state := d.transport, d.state
	d.mu.RUnlock()
	if tr == nil || state != StateActive {
		return ErrNotActive
	}
	return tr.SendText(text)
}

func (d *Driver) setState(to State) {
	d.mu.Lock()
	from := d.state
	d.state = to
	id := d.sessionID
	d.mu.Unlock()

	if from == to {
		return
	}
	d.logger.Info("session state", "session_id", id, "from", from, "to", to)
	d.observer.OnState(id, from, to)
}

func (d *Driver) status(kind StatusKind, text string) {
	d.publish(Status{Kind: kind, Text: text})
}

func (d *Driver) publish(s Status) {
	s.SessionID = d.SessionID()
	if s.At.IsZero() {
		s.At = time.Now()
	}
	d.observer.OnStatus(s)
}

// Run runs one session to completion. It returns nil when the session was
// closed on request (quit sentinel, Stop, context cancel, remote close) and
// the cause otherwise. The driver is in StateClosed when Run returns.
func (d *Driver) Run(ctx context.Context) (err error) {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	d.sessionID = uuid.NewString()
	d.cancel = cancel
	d.lastErr = nil
	d.mu.Unlock()

	d.transcript.Reset()
	d.messages.Store(0)
	d.toolCalls.Store(0)

	runCtx, span := tracer.Start(runCtx, "session.run")
	span.SetAttributes(attribute.String("session.id", d.SessionID()))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session: panic: %v", r)
			d.logger.Error("session panicked", "panic", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.status(StatusError, err.Error())
		}
		span.End()

		d.mu.Lock()
		d.lastErr = err
		d.cancel = nil
		d.transport = nil
		d.mu.Unlock()
		d.setState(StateClosed)
	}()

	d.setState(StateConnecting)

	if d.cfg.Prelude != nil {
		if perr := d.cfg.Prelude(runCtx); perr != nil {
			if runCtx.Err() != nil {
				return nil
			}
			d.logger.Warn("prelude failed", "error", perr)
			d.status(StatusError, "prelude: "+perr.Error())
		}
	}

	dialCtx, dialCancel := context.WithTimeout(runCtx, d.cfg.HandshakeTimeout)
	tr, err := d.cfg.Dialer.Dial(dialCtx)
	dialCancel()
	if err != nil {
		if runCtx.Err() != nil {
			return nil
		}
		d.logger.Error("connect failed", "error", err)
		return fmt.Errorf("session: connect: %w", err)
	}

	d.mu.Lock()
	d.transport = tr
	d.mu.Unlock()
	d.setState(StateActive)
	d.status(StatusInfo, "connected")

	return d.runActive(runCtx, tr)
}

// runActive runs the session tasks until one ends the session, then closes
// the transport and joins everything.
func (d *Driver) runActive(ctx context.Context, tr Transport) error {
	g, gctx := errgroup.WithContext(ctx)

	var (
		causeOnce sync.Once
		cause     error
	)
	task := func(name string, fn func(context.Context) error) {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("session: %s task panicked: %v", name, r)
				}
				if err != nil {
					causeOnce.Do(func() { cause = err })
				}
			}()
			return fn(gctx)
		})
	}

	task("microphone", func(ctx context.Context) error { return d.streamMicrophone(ctx, tr) })
	task("lines", func(ctx context.Context) error { return d.readLines(ctx, tr) })
	task("events", func(ctx context.Context) error { return d.consumeEvents(ctx, tr) })

	g.Go(func() error {
		<-gctx.Done()
		causeOnce.Do(func() {})
		if evi.IsConnectionError(cause) {
			d.setState(StateFailed)
		} else {
			d.setState(StateClosing)
		}
		if err := tr.Close(); err != nil {
			d.logger.Warn("transport close failed", "error", err)
		}
		return nil
	})

	err := g.Wait()
	switch {
	case err == nil,
		errors.Is(err, errQuit),
		errors.Is(err, errRemoteClosed),
		errors.Is(err, context.Canceled):
		return nil
	default:
		d.logger.Error("session ended with error", "error", err)
		return err
	}
}

func (d *Driver) streamMicrophone(ctx context.Context, tr Transport) error {
	mic := d.cfg.Microphone
	if mic == nil {
		return nil
	}
	if err := mic.Start(ctx); err != nil {
		d.logger.Warn("microphone unavailable", "error", err)
		d.status(StatusError, "microphone unavailable: "+err.Error())
		return nil
	}
	defer mic.Stop()

	frames := mic.Stream()
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-frames:
			if !ok {
				return nil
			}
			if err := tr.SendAudio(chunk.Bytes()); err != nil {
				if errors.Is(err, evi.ErrNotConnected) || ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (d *Driver) readLines(ctx context.Context, tr Transport) error {
	lines := d.cfg.Lines
	if lines == nil {
		return nil
	}
	for {
		line, err := lines.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if IsQuit(line) {
			d.status(StatusInfo, "quit requested")
			return errQuit
		}
		if err := tr.SendText(line); err != nil {
			if errors.Is(err, evi.ErrNotConnected) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (d *Driver) consumeEvents(ctx context.Context, tr Transport) error {
	events := tr.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if err := tr.Err(); err != nil {
					return err
				}
				return errRemoteClosed
			}
			d.handleEvent(ctx, tr, ev)
		}
	}
}

func (d *Driver) handleEvent(ctx context.Context, tr Transport, ev event.Event) {
	event.Handlers{
		OnMessage: func(m event.Message) {
			d.transcript.Append(m.Role, m.Content)
			d.messages.Add(1)
			d.publish(Status{
				Kind:     StatusMessage,
				Role:     m.Role,
				Text:     m.Content,
				Emotions: m.TopEmotions(TopEmotions),
			})
		},
		OnToolCall: func(call event.ToolCall) {
			d.toolCalls.Add(1)
			d.handleToolCall(ctx, tr, call)
		},
		OnAudio: func(out event.AudioOutput) {
			d.logger.Debug("audio output", "bytes", len(out.Data))
			d.status(StatusAudio, fmt.Sprintf("audio output (%d bytes)", len(out.Data)))
		},
		OnOther: func(o event.Other) {
			d.logger.Debug("unhandled event", "type", o.Type)
			d.status(StatusDiagnostic, o.Render())
		},
	}.Handle(ev)
}

func (d *Driver) handleToolCall(ctx context.Context, tr Transport, call event.ToolCall) {
	if d.cfg.Dispatcher == nil {
		d.status(StatusTool, "tool call "+call.Name+" ignored: no dispatcher")
		return
	}

	res := d.cfg.Dispatcher.Dispatch(ctx, call)
	if res.Err != nil {
		d.status(StatusError, fmt.Sprintf("tool %s failed: %v", call.Name, res.Err))
	} else {
		d.status(StatusTool, fmt.Sprintf("tool %s: %s", call.Name, res.Output))
	}

	if call.CallID == "" {
		return
	}
	var err error
	if res.Err != nil {
		err = tr.SendToolError(call.CallID, res.Err.Error(), "The action could not be completed.")
	} else {
		err = tr.SendToolResponse(call.CallID, res.Output)
	}
	if err != nil {
		d.logger.Warn("failed to report tool result", "call_id", call.CallID, "error", err)
	}
}
