package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teslashibe/go-coworker/internal/log"
)

func TestComplete(t *testing.T) {
	t.Run("sends system and user messages", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer sk-test" {
				t.Errorf("missing bearer token")
			}
			var req struct {
				Model    string    `json:"model"`
				Messages []Message `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if req.Model != DefaultModel {
				t.Errorf("expected default model, got %s", req.Model)
			}
			if len(req.Messages) != 2 || req.Messages[0].Content != DefaultSystemPrompt || req.Messages[1].Content != "hi" {
				t.Errorf("unexpected messages %+v", req.Messages)
			}
			w.Write([]byte(`{"model":"gpt-3.5-turbo","choices":[{"message":{"role":"assistant","content":"Hello!"}}],"usage":{"total_tokens":12}}`))
		}))
		defer srv.Close()

		c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", Logger: log.Discard()})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		reply, err := c.Complete(context.Background(), "", "hi")
		if err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		if reply != "Hello!" {
			t.Errorf("unexpected reply %q", reply)
		}
	})

	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`))
		}))
		defer srv.Close()

		c, _ := New(Config{APIKey: "k", BaseURL: srv.URL, Logger: log.Discard()})
		_, err := c.Complete(context.Background(), "sys", "hi")

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if !apiErr.IsRateLimited() || apiErr.Code != "rate_limit_exceeded" {
			t.Errorf("unexpected error %+v", apiErr)
		}
	})

	t.Run("no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		c, _ := New(Config{APIKey: "k", BaseURL: srv.URL, Logger: log.Discard()})
		if _, err := c.Complete(context.Background(), "", "hi"); !errors.Is(err, ErrNoChoices) {
			t.Errorf("expected ErrNoChoices, got %v", err)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := New(Config{}); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})
}
