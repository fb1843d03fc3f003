// Package chat wraps an OpenAI-compatible chat completions endpoint for the
// single-shot replies used by the interaction prelude.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-coworker/internal/httpc"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the completion model.
	DefaultModel = "gpt-3.5-turbo"

	// DefaultSystemPrompt frames the assistant as a colleague.
	DefaultSystemPrompt = "You are a virtual colleague of the user."
)

// Roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sentinel errors.
var (
	ErrNoAPIKey  = errors.New("chat: API key required")
	ErrNoChoices = errors.New("chat: no choices returned")
)

// APIError is a non-200 response from the completions API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chat: API error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true for HTTP 429.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Config configures a Client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client calls the chat completions endpoint.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httpc.New("openai", cfg.Timeout)
	}
	return &Client{
		config: cfg,
		http:   client,
		logger: cfg.Logger.With("component", "chat"),
	}, nil
}

// Complete sends a system prompt and one user message and returns the
// assistant reply. An empty systemPrompt uses DefaultSystemPrompt.
func (c *Client) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	reply, _, err := c.Chat(ctx, []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userText},
	})
	return reply, err
}

// Chat sends the full message list.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, Usage, error) {
	start := time.Now()

	payload := map[string]any{
		"model":    c.config.Model,
		"messages": messages,
	}
	if c.config.Temperature > 0 {
		payload["temperature"] = c.config.Temperature
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", Usage{}, fmt.Errorf("chat: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, fmt.Errorf("chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("chat: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", Usage{}, parseError(resp)
	}

	var result struct {
		Model   string `json:"model"`
		Choices []struct {
			Message      Message `json:"message"`
			FinishReason string  `json:"finish_reason"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", Usage{}, fmt.Errorf("chat: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", result.Usage, ErrNoChoices
	}

	c.logger.Debug("completion",
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result.Choices[0].Message.Content, result.Usage, nil
}

func parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Error.Message,
			Code:       errResp.Error.Code,
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
