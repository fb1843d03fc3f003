package evi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-coworker/internal/log"
	"github.com/teslashibe/go-coworker/pkg/event"
)

// fakeServer runs handler against each upgraded connection.
func fakeServer(t *testing.T, handler func(ws *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()
		handler(ws, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		ConfigID: "cfg-1",
		APIKey:   "key-1",
		URL:      wsURL(srv),
		Logger:   log.Discard(),
	}
}

func readType(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	if err := ws.ReadJSON(&msg); err != nil {
		t.Errorf("server read failed: %v", err)
		return nil
	}
	return msg
}

func collect(t *testing.T, c *Conn) []event.Event {
	t.Helper()
	var out []event.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events to close")
			return out
		}
	}
}

func TestDial(t *testing.T) {
	t.Run("sends settings and streams events in order", func(t *testing.T) {
		textCh := make(chan string, 1)
		srv := fakeServer(t, func(ws *websocket.Conn, r *http.Request) {
			if r.URL.Query().Get("config_id") != "cfg-1" || r.URL.Query().Get("api_key") != "key-1" {
				t.Errorf("unexpected query: %s", r.URL.RawQuery)
			}

			settings := readType(t, ws)
			if settings["type"] != "session_settings" {
				t.Errorf("expected session_settings first, got %v", settings["type"])
			}
			audio, _ := settings["audio"].(map[string]any)
			if audio["encoding"] != "linear16" || audio["sample_rate"] != float64(DefaultSampleRate) {
				t.Errorf("unexpected audio settings: %v", audio)
			}

			ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_message","message":{"role":"user","content":"hi"}}`))
			ws.WriteMessage(websocket.TextMessage, []byte(`not json`))
			ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"assistant_message","message":{"role":"assistant","content":"hello"}}`))
			ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"tool_call","name":"meeting_book","tool_call_id":"c1","parameters":"{}"}`))

			text := readType(t, ws)
			textCh <- text["text"].(string)

			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			time.Sleep(50 * time.Millisecond)
		})

		c, err := Dial(context.Background(), testConfig(srv))
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		defer c.Close()

		if err := c.SendText("book a meeting"); err != nil {
			t.Fatalf("send text failed: %v", err)
		}
		if got := <-textCh; got != "book a meeting" {
			t.Errorf("server got %q", got)
		}

		events := collect(t, c)
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		wantKinds := []event.Kind{event.KindUserMessage, event.KindAssistantMessage, event.KindToolCall}
		for i, k := range wantKinds {
			if events[i].Kind() != k {
				t.Errorf("event %d: expected %s, got %s", i, k, events[i].Kind())
			}
		}
		if err := c.Err(); err != nil {
			t.Errorf("expected clean close, got %v", err)
		}
	})

	t.Run("tool responses", func(t *testing.T) {
		got := make(chan map[string]any, 2)
		srv := fakeServer(t, func(ws *websocket.Conn, r *http.Request) {
			readType(t, ws)
			got <- readType(t, ws)
			got <- readType(t, ws)
		})

		c, err := Dial(context.Background(), testConfig(srv))
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		defer c.Close()

		c.SendToolResponse("c1", "Event created")
		c.SendToolError("c2", "bad args", "could not book")

		resp := <-got
		if resp["type"] != "tool_response" || resp["tool_call_id"] != "c1" || resp["content"] != "Event created" {
			t.Errorf("unexpected tool_response: %v", resp)
		}
		toolErr := <-got
		if toolErr["type"] != "tool_error" || toolErr["error"] != "bad args" {
			t.Errorf("unexpected tool_error: %v", toolErr)
		}
	})

	t.Run("audio output goes to sink", func(t *testing.T) {
		srv := fakeServer(t, func(ws *websocket.Conn, r *http.Request) {
			readType(t, ws)
			ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio_output","data":"UklGRg=="}`))
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			time.Sleep(50 * time.Millisecond)
		})

		var played []byte
		cfg := testConfig(srv)
		cfg.EnableAudio = true
		cfg.AudioSink = func(wav []byte) { played = wav }

		c, err := Dial(context.Background(), cfg)
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		defer c.Close()

		events := collect(t, c)
		if len(events) != 1 || events[0].Kind() != event.KindAudioOutput {
			t.Fatalf("unexpected events: %v", events)
		}
		if string(played) != "RIFF" {
			t.Errorf("sink got %q", played)
		}
	})

	t.Run("server error ends session", func(t *testing.T) {
		srv := fakeServer(t, func(ws *websocket.Conn, r *http.Request) {
			readType(t, ws)
			ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","code":"E0709","slug":"bad_config","message":"config not found"}`))
			time.Sleep(50 * time.Millisecond)
		})

		c, err := Dial(context.Background(), testConfig(srv))
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		defer c.Close()

		collect(t, c)

		var apiErr *APIError
		if !errors.As(c.Err(), &apiErr) {
			t.Fatalf("expected APIError, got %v", c.Err())
		}
		if apiErr.Code != "E0709" || apiErr.Slug != "bad_config" {
			t.Errorf("unexpected error: %+v", apiErr)
		}
	})

	t.Run("abrupt disconnect is a connection error", func(t *testing.T) {
		srv := fakeServer(t, func(ws *websocket.Conn, r *http.Request) {
			readType(t, ws)
			ws.UnderlyingConn().Close()
		})

		c, err := Dial(context.Background(), testConfig(srv))
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		defer c.Close()

		collect(t, c)
		if !IsConnectionError(c.Err()) {
			t.Errorf("expected ConnectionError, got %v", c.Err())
		}
	})

	t.Run("send after close", func(t *testing.T) {
		srv := fakeServer(t, func(ws *websocket.Conn, r *http.Request) {
			readType(t, ws)
			time.Sleep(100 * time.Millisecond)
		})

		c, err := Dial(context.Background(), testConfig(srv))
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		c.Close()
		c.Close()

		if err := c.SendText("x"); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		collect(t, c)
		if c.Err() != nil {
			t.Errorf("local close should not set an error, got %v", c.Err())
		}
	})

	t.Run("handshake rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := Dial(context.Background(), testConfig(srv))
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			t.Fatalf("expected ConnectionError, got %v", err)
		}
		if connErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", connErr.StatusCode)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		if _, err := Dial(context.Background(), Config{ConfigID: "x"}); !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("expected ErrMissingAPIKey, got %v", err)
		}
		if _, err := Dial(context.Background(), Config{APIKey: "x"}); !errors.Is(err, ErrMissingConfigID) {
			t.Errorf("expected ErrMissingConfigID, got %v", err)
		}
	})
}

func TestMock(t *testing.T) {
	m := NewMock()
	m.SimulateMessage(event.KindUserMessage, "user", "hi")
	m.SimulateToolCall("c1", "meeting_book", "{}")

	if err := m.SendText("hello"); err != nil {
		t.Fatalf("send text failed: %v", err)
	}
	m.SendToolResponse("c1", "ok")

	m.SimulateError(&APIError{Code: "E1"})

	var kinds []event.Kind
	for ev := range m.Events() {
		kinds = append(kinds, ev.Kind())
	}
	if len(kinds) != 2 || kinds[1] != event.KindToolCall {
		t.Errorf("unexpected events: %v", kinds)
	}
	if !IsAPIError(m.Err()) {
		t.Errorf("expected APIError, got %v", m.Err())
	}
	if m.TextsSent[0] != "hello" || m.ToolResponses["c1"] != "ok" {
		t.Error("calls not captured")
	}
	if err := m.SendText("late"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}

	// Close after SimulateError is safe.
	m.Close()
	data, _ := json.Marshal(m.TextsSent)
	if string(data) != `["hello"]` {
		t.Errorf("unexpected texts: %s", data)
	}
}
