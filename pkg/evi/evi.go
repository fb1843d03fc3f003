// Package evi is a client for the Hume Empathic Voice Interface, a
// bidirectional WebSocket that takes microphone audio and text and streams
// back transcripts, synthesized speech and tool calls.
//
// Inbound messages are decoded into event.Event values and delivered on a
// channel in arrival order; the caller reads them on its own goroutine.
package evi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-coworker/pkg/event"
)

// DefaultURL is the EVI chat endpoint.
const DefaultURL = "wss://api.hume.ai/v0/evi/chat"

// Defaults for Config.
const (
	DefaultSampleRate       = 16000
	DefaultChannels         = 1
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultEventBuffer      = 64
)

// Config configures a connection.
type Config struct {
	// ConfigID selects the EVI configuration (voice, prompt, tools).
	ConfigID string

	// APIKey authenticates the connection.
	APIKey string

	// URL overrides DefaultURL.
	URL string

	// EnableAudio hands audio_output payloads to AudioSink.
	EnableAudio bool

	// AudioSink receives synthesized WAV audio when EnableAudio is set.
	AudioSink func(wav []byte)

	// SampleRate and Channels describe the linear16 audio sent with SendAudio.
	SampleRate int
	Channels   int

	// SystemPrompt overrides the configuration's prompt when non-empty.
	SystemPrompt string

	HandshakeTimeout time.Duration
	EventBuffer      int

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Conn is an open EVI chat session.
type Conn struct {
	cfg    Config
	logger *slog.Logger
	ws     *websocket.Conn

	writeMu sync.Mutex
	events  chan event.Event
	done    chan struct{}

	closeOnce sync.Once
	closing   atomic.Bool

	errMu sync.Mutex
	err   error

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// Dial opens a chat session and sends the session settings.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.ConfigID == "" {
		return nil, ErrMissingConfigID
	}
	cfg.applyDefaults()

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("evi: parse url: %w", err)
	}
	q := u.Query()
	q.Set("config_id", cfg.ConfigID)
	q.Set("api_key", cfg.APIKey)
	u.RawQuery = q.Encode()

	logger := cfg.Logger.With("component", "evi")
	logger.Info("connecting to EVI", "config_id", cfg.ConfigID)

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		connErr := NewConnectionError("dial failed", err)
		if resp != nil {
			connErr.Reason = fmt.Sprintf("dial failed with status %d", resp.StatusCode)
			connErr.StatusCode = resp.StatusCode
		}
		return nil, connErr
	}

	c := &Conn{
		cfg:    cfg,
		logger: logger,
		ws:     ws,
		events: make(chan event.Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}

	if err := c.sendSessionSettings(); err != nil {
		ws.Close()
		return nil, err
	}

	go c.readLoop()

	logger.Info("connected to EVI")
	return c, nil
}

func (c *Conn) sendSessionSettings() error {
	msg := map[string]any{
		"type": "session_settings",
		"audio": map[string]any{
			"encoding":    "linear16",
			"sample_rate": c.cfg.SampleRate,
			"channels":    c.cfg.Channels,
		},
	}
	if c.cfg.SystemPrompt != "" {
		msg["system_prompt"] = c.cfg.SystemPrompt
	}
	return c.write(msg, "session settings")
}

// SendText sends a typed user turn.
func (c *Conn) SendText(text string) error {
	return c.write(map[string]any{
		"type": "user_input",
		"text": text,
	}, "send text")
}

// SendAudio sends one frame of linear16 PCM audio.
func (c *Conn) SendAudio(pcm []byte) error {
	return c.write(map[string]any{
		"type": "audio_input",
		"data": base64.StdEncoding.EncodeToString(pcm),
	}, "send audio")
}

// SendToolResponse reports a successful tool invocation.
func (c *Conn) SendToolResponse(callID, content string) error {
	return c.write(map[string]any{
		"type":         "tool_response",
		"tool_call_id": callID,
		"content":      content,
	}, "send tool response")
}

// SendToolError reports a failed tool invocation.
func (c *Conn) SendToolError(callID, errMsg, content string) error {
	return c.write(map[string]any{
		"type":         "tool_error",
		"tool_call_id": callID,
		"error":        errMsg,
		"content":      content,
	}, "send tool error")
}

func (c *Conn) write(msg any, what string) error {
	if c.closing.Load() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	err := c.ws.WriteJSON(msg)
	c.writeMu.Unlock()

	if err != nil {
		return NewConnectionError(what+" failed", err)
	}
	c.messagesSent.Add(1)
	return nil
}

// Events returns the inbound event channel. It is closed when the session
// ends; Err then reports why.
func (c *Conn) Events() <-chan event.Event {
	return c.events
}

// Err returns the error that ended the session, or nil for a normal close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Stats returns message counters.
func (c *Conn) Stats() (sent, received int64) {
	return c.messagesSent.Load(), c.messagesReceived.Load()
}

// Close closes the session. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()

		c.ws.Close()
		c.logger.Info("disconnected from EVI")
	})
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case c.closing.Load():
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Info("connection closed by server")
			default:
				c.logger.Error("read error", "error", err)
				c.setErr(NewConnectionError("read failed", err))
			}
			return
		}
		c.messagesReceived.Add(1)

		if apiErr := parseAPIError(data); apiErr != nil {
			c.logger.Error("EVI error", "code", apiErr.Code, "slug", apiErr.Slug, "message", apiErr.Message)
			c.setErr(apiErr)
			return
		}

		ev, err := event.Decode(data)
		if err != nil {
			c.logger.Warn("failed to decode message", "error", err)
			continue
		}

		if out, ok := ev.(event.AudioOutput); ok && c.cfg.EnableAudio && c.cfg.AudioSink != nil {
			c.cfg.AudioSink(out.Data)
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func parseAPIError(data []byte) *APIError {
	var msg struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Slug    string `json:"slug"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "error" {
		return nil
	}
	return &APIError{Code: msg.Code, Slug: msg.Slug, Message: msg.Message}
}
