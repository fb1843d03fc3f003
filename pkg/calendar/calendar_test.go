package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/teslashibe/go-coworker/internal/log"
)

// fakeGoogle serves the token endpoint and the subset of the Calendar API
// the client uses.
type fakeGoogle struct {
	mu        sync.Mutex
	inserted  map[string]any
	listQuery string
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/token":
		r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Write([]byte(`{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600}`))

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/calendars/primary/events"):
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.inserted = body
		f.mu.Unlock()
		w.Write([]byte(`{"id":"ev1","htmlLink":"https://calendar.google.com/event?eid=ev1"}`))

	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/calendars/primary/events"):
		f.mu.Lock()
		f.listQuery = r.URL.RawQuery
		f.mu.Unlock()
		w.Write([]byte(`{"items":[
			{"id":"a","summary":"Standup","start":{"dateTime":"2026-10-17T09:00:00-07:00"},"end":{"dateTime":"2026-10-17T09:15:00-07:00"}},
			{"id":"b","summary":"Offsite","start":{"date":"2026-10-20"},"end":{"date":"2026-10-21"}}
		]}`))

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeGoogle, string) {
	t.Helper()
	fake := &fakeGoogle{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tokenPath := filepath.Join(t.TempDir(), "token.json")
	c, err := New(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenPath:    tokenPath,
		Endpoint:     &oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		APIEndpoint:  srv.URL + "/",
		HTTPClient:   srv.Client(),
		Logger:       log.Discard(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, fake, tokenPath
}

func TestClientAuthorization(t *testing.T) {
	t.Run("not authenticated before exchange", func(t *testing.T) {
		c, _, _ := newTestClient(t)
		if c.Authenticated() {
			t.Error("expected unauthenticated client")
		}
		_, err := c.CreateEvent(context.Background(), "s", "d", "t1", "t2", nil)
		if !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if st := c.Status(); st.Connected {
			t.Errorf("unexpected status %+v", st)
		}
		u := c.AuthURL("s-123")
		if !strings.Contains(u, "access_type=offline") || !strings.Contains(u, "state=s-123") {
			t.Errorf("unexpected auth url %s", u)
		}
	})

	t.Run("exchange saves token", func(t *testing.T) {
		c, _, tokenPath := newTestClient(t)
		if err := c.Exchange(context.Background(), "good-code"); err != nil {
			t.Fatalf("Exchange failed: %v", err)
		}
		if !c.Authenticated() {
			t.Error("expected authenticated client")
		}
		info, err := os.Stat(tokenPath)
		if err != nil {
			t.Fatalf("token not saved: %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("expected 0600, got %v", info.Mode().Perm())
		}
	})

	t.Run("bad code", func(t *testing.T) {
		c, _, _ := newTestClient(t)
		if err := c.Exchange(context.Background(), "bad"); err == nil {
			t.Error("expected error for bad code")
		}
		if err := c.Exchange(context.Background(), ""); !errors.Is(err, ErrEmptyCode) {
			t.Errorf("expected ErrEmptyCode, got %v", err)
		}
	})

	t.Run("disconnect", func(t *testing.T) {
		c, _, tokenPath := newTestClient(t)
		c.Exchange(context.Background(), "good-code")
		if err := c.Disconnect(); err != nil {
			t.Fatalf("Disconnect failed: %v", err)
		}
		if c.Authenticated() {
			t.Error("expected unauthenticated after disconnect")
		}
		if _, err := os.Stat(tokenPath); !os.IsNotExist(err) {
			t.Error("expected token file removed")
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		if _, err := New(Config{}); !errors.Is(err, ErrNoCredentials) {
			t.Errorf("expected ErrNoCredentials, got %v", err)
		}
	})
}

func TestCreateEvent(t *testing.T) {
	c, fake, _ := newTestClient(t)
	if err := c.Exchange(context.Background(), "good-code"); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	link, err := c.CreateEvent(context.Background(),
		"Sync", "Weekly sync",
		"2026-10-20T10:00:00-07:00", "2026-10-20T10:30:00-07:00",
		[]string{"a@example.com", "b@example.com"},
	)
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if link != "https://calendar.google.com/event?eid=ev1" {
		t.Errorf("unexpected link %q", link)
	}

	fake.mu.Lock()
	body := fake.inserted
	fake.mu.Unlock()

	if body["summary"] != "Sync" || body["description"] != "Weekly sync" {
		t.Errorf("unexpected body %v", body)
	}
	start, _ := body["start"].(map[string]any)
	if start["timeZone"] != DefaultTimeZone || start["dateTime"] != "2026-10-20T10:00:00-07:00" {
		t.Errorf("unexpected start %v", start)
	}
	attendees, _ := body["attendees"].([]any)
	if len(attendees) != 2 {
		t.Errorf("expected 2 attendees, got %v", attendees)
	}
}

func TestUpcoming(t *testing.T) {
	c, fake, _ := newTestClient(t)
	c.Exchange(context.Background(), "good-code")

	events, err := c.Upcoming(context.Background(), 10)
	if err != nil {
		t.Fatalf("Upcoming failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Summary != "Standup" || events[1].Start != "2026-10-20" {
		t.Errorf("unexpected events %+v", events)
	}

	fake.mu.Lock()
	q := fake.listQuery
	fake.mu.Unlock()
	for _, want := range []string{"maxResults=10", "singleEvents=true", "orderBy=startTime", "timeMin="} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}
}

func TestSavedTokenLoaded(t *testing.T) {
	c, _, tokenPath := newTestClient(t)
	c.Exchange(context.Background(), "good-code")

	again, err := New(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenPath:    tokenPath,
		Logger:       log.Discard(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !again.Authenticated() {
		t.Error("expected saved token to authenticate new client")
	}
}
