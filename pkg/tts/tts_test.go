package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-coworker/internal/log"
)

func TestLMNTSynthesize(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("unexpected auth header: %s", got)
			}
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["text"] != "hello there" {
				t.Errorf("unexpected text: %v", body["text"])
			}
			w.Write([]byte("ID3-mp3-bytes"))
		}))
		defer srv.Close()

		l, err := NewLMNT(WithAPIKey("test-key"), WithBaseURL(srv.URL), WithLogger(log.Discard()))
		if err != nil {
			t.Fatalf("NewLMNT failed: %v", err)
		}

		res, err := l.Synthesize(context.Background(), "hello there")
		if err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
		if string(res.Audio) != "ID3-mp3-bytes" || res.Format != FormatMP3 || res.CharCount != 11 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"invalid key"}`))
		}))
		defer srv.Close()

		l, _ := NewLMNT(WithAPIKey("bad"), WithBaseURL(srv.URL), WithLogger(log.Discard()))
		_, err := l.Synthesize(context.Background(), "hi")

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if !apiErr.IsUnauthorized() || apiErr.Message != "invalid key" {
			t.Errorf("unexpected error: %+v", apiErr)
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", calls.Load())
		}
	})

	t.Run("server error is retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("audio"))
		}))
		defer srv.Close()

		l, _ := NewLMNT(
			WithAPIKey("k"),
			WithBaseURL(srv.URL),
			WithRetry(2, time.Millisecond),
			WithLogger(log.Discard()),
		)
		res, err := l.Synthesize(context.Background(), "hi")
		if err != nil {
			t.Fatalf("expected success after retry, got %v", err)
		}
		if string(res.Audio) != "audio" || calls.Load() != 2 {
			t.Errorf("unexpected result %q after %d calls", res.Audio, calls.Load())
		}
	})

	t.Run("validation", func(t *testing.T) {
		if _, err := NewLMNT(); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
		l, _ := NewLMNT(WithAPIKey("k"), WithLogger(log.Discard()))
		if _, err := l.Synthesize(context.Background(), "  "); !errors.Is(err, ErrEmptyText) {
			t.Errorf("expected ErrEmptyText, got %v", err)
		}
	})
}

func TestPlayer(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	t.Run("pipes audio to command", func(t *testing.T) {
		p := NewPlayer(WithCommand("cat"), WithPlayerLogger(log.Discard()))
		if err := p.Play(context.Background(), []byte("audio")); err != nil {
			t.Errorf("Play failed: %v", err)
		}
	})

	t.Run("command failure", func(t *testing.T) {
		p := NewPlayer(WithCommand("false"), WithPlayerLogger(log.Discard()))
		if err := p.Play(context.Background(), []byte("audio")); err == nil {
			t.Error("expected error from failing player")
		}
	})

	t.Run("sink plays in arrival order", func(t *testing.T) {
		if _, err := exec.LookPath("sh"); err != nil {
			t.Skip("sh not available")
		}
		out := filepath.Join(t.TempDir(), "out")
		p := NewPlayer(WithCommand("sh", "-c", "cat >> "+out), WithPlayerLogger(log.Discard()))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sink := p.Sink(ctx)

		const chunks = 40
		var want strings.Builder
		for i := 0; i < chunks; i++ {
			line := fmt.Sprintf("%d\n", i)
			want.WriteString(line)
			sink([]byte(line))
		}

		deadline := time.Now().Add(10 * time.Second)
		for {
			got, _ := os.ReadFile(out)
			if string(got) == want.String() {
				return
			}
			if len(got) >= want.Len() || time.Now().After(deadline) {
				t.Fatalf("chunks played out of order or missing:\n%s", got)
			}
			time.Sleep(20 * time.Millisecond)
		}
	})

	t.Run("no command", func(t *testing.T) {
		p := &Player{}
		if err := p.Play(context.Background(), nil); !errors.Is(err, ErrNoPlayer) {
			t.Errorf("expected ErrNoPlayer, got %v", err)
		}
	})
}

func TestMock(t *testing.T) {
	m := NewMock()
	res, _ := m.Synthesize(context.Background(), "hi")
	if string(res.Audio) != "hi" || len(m.Texts()) != 1 {
		t.Error("mock did not record call")
	}
}
