// Package emotion submits short recordings to the Hume batch analysis API
// and returns the transcription together with any emotion scores.
package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/teslashibe/go-coworker/internal/httpc"
)

// DefaultURL is the batch analysis endpoint.
const DefaultURL = "https://api.hume.ai/v0/batch/analyze"

// NoTranscription is returned when the response carries no transcription.
const NoTranscription = "No transcription available"

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("emotion: API key required")

// Score is one named emotion score.
type Score struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Result is the outcome of one analysis. A zero Result means the service
// answered with a non-200 status.
type Result struct {
	Transcription string  `json:"transcription"`
	Emotions      []Score `json:"emotions,omitempty"`
}

// Empty reports whether the result carries nothing.
func (r Result) Empty() bool {
	return r.Transcription == "" && len(r.Emotions) == 0
}

// Config configures a Client.
type Config struct {
	APIKey     string
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the analysis API.
type Client struct {
	apiKey string
	url    string
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpc.New("hume", 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiKey: cfg.APIKey,
		url:    cfg.URL,
		http:   cfg.HTTPClient,
		logger: cfg.Logger.With("component", "emotion"),
	}, nil
}

// Analyze uploads the WAV file at path.
func (c *Client) Analyze(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("emotion: read recording: %w", err)
	}
	return c.AnalyzeBytes(ctx, filepath.Base(path), data)
}

// AnalyzeBytes uploads an in-memory recording under the given file name.
func (c *Client) AnalyzeBytes(ctx context.Context, name string, audio []byte) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", name)
	if err != nil {
		return Result{}, fmt.Errorf("emotion: build form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Result{}, fmt.Errorf("emotion: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("emotion: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return Result{}, fmt.Errorf("emotion: create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("emotion: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.Debug("analysis rejected", "status", resp.StatusCode)
		return Result{}, nil
	}

	var payload struct {
		Transcription *string            `json:"transcription"`
		Emotions      map[string]float64 `json:"emotions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("emotion: decode response: %w", err)
	}

	res := Result{Transcription: NoTranscription}
	if payload.Transcription != nil {
		res.Transcription = *payload.Transcription
	}
	for name, score := range payload.Emotions {
		res.Emotions = append(res.Emotions, Score{Name: name, Score: score})
	}
	sort.Slice(res.Emotions, func(i, j int) bool {
		if res.Emotions[i].Score != res.Emotions[j].Score {
			return res.Emotions[i].Score > res.Emotions[j].Score
		}
		return res.Emotions[i].Name < res.Emotions[j].Name
	})

	c.logger.Debug("analysis complete",
		"chars", len(res.Transcription),
		"emotions", len(res.Emotions),
	)
	return res, nil
}
