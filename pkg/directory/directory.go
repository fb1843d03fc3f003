// Package directory queries the company directory kept in an Airtable base.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/teslashibe/go-coworker/internal/httpc"
)

// DefaultBaseURL is the Airtable REST endpoint.
const DefaultBaseURL = "https://api.airtable.com/v0"

// Sentinel errors for the directory package.
var (
	// ErrNoToken is returned when the access token is missing.
	ErrNoToken = errors.New("directory: access token required")

	// ErrNoTable is returned when the base or table is missing.
	ErrNoTable = errors.New("directory: base ID and table required")
)

// APIError is a non-200 response from the directory API.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("directory: API error %d: %s", e.StatusCode, e.Message)
}

// Record is one directory row.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

// Config configures a Client.
type Config struct {
	Token   string
	BaseID  string
	Table   string
	BaseURL string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client runs filtered queries against one directory table.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	if cfg.BaseID == "" || cfg.Table == "" {
		return nil, ErrNoTable
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httpc.New("airtable", 0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "directory"),
	}, nil
}

// Formula builds an equality filter formula for field = value.
func Formula(field, value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return fmt.Sprintf("{%s}='%s'", field, escaped)
}

// Query returns the records whose field equals value.
// A non-200 response is returned as *APIError.
func (c *Client) Query(ctx context.Context, field, value string) ([]Record, error) {
	endpoint := fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		url.PathEscape(c.cfg.BaseID),
		url.PathEscape(c.cfg.Table),
	)
	q := url.Values{}
	q.Set("filterByFormula", Formula(field, value))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("directory: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var out struct {
		Records []Record `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("directory: decode response: %w", err)
	}

	c.logger.Debug("directory query",
		"field", field,
		"value", value,
		"records", len(out.Records),
	)
	return out.Records, nil
}
