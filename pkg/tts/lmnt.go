package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-coworker/internal/httpc"
)

// DefaultLMNTURL is the LMNT synthesis endpoint.
const DefaultLMNTURL = "https://api.lmnt.ai/synthesize"

// FormatMP3 is the default output format.
const FormatMP3 = "mp3"

// LMNT implements Synthesizer for the LMNT API.
type LMNT struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewLMNT creates a new LMNT synthesizer.
func NewLMNT(opts ...Option) (*LMNT, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httpc.New("lmnt", cfg.Timeout)
	}

	return &LMNT{
		config: cfg,
		client: client,
		logger: cfg.Logger.With("component", "tts.lmnt"),
	}, nil
}

// Synthesize converts text to audio.
func (l *LMNT) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	payload := map[string]any{
		"text":   text,
		"format": l.config.Format,
	}
	if l.config.Voice != "" {
		payload["voice"] = l.config.Voice
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tts: marshal payload: %w", err)
	}

	resp, err := l.doWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read response: %w", err)
	}

	latency := time.Since(start).Milliseconds()
	l.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    l.config.Format,
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// doWithRetry posts body, retrying on 429/5xx and transport errors.
// The returned response has status 200.
func (l *LMNT) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= l.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.config.BaseURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("tts: create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+l.config.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := l.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("tts: request: %w", err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := parseError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		l.logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", apiErr.StatusCode,
		)
	}

	return nil, lastErr
}

func parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Message != "" {
			message = errResp.Message
		} else if errResp.Error != "" {
			message = errResp.Error
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

var _ Synthesizer = (*LMNT)(nil)
