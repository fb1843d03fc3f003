package coworker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-coworker/internal/config"
	"github.com/teslashibe/go-coworker/internal/log"
	"github.com/teslashibe/go-coworker/pkg/audioio"
	"github.com/teslashibe/go-coworker/pkg/event"
	"github.com/teslashibe/go-coworker/pkg/evi"
	"github.com/teslashibe/go-coworker/pkg/session"
	"github.com/teslashibe/go-coworker/pkg/tools"
	"github.com/teslashibe/go-coworker/pkg/tts"
)

type statusLog struct {
	mu    sync.Mutex
	lines []session.Status
}

func (l *statusLog) observer() session.Observer {
	return session.ObserverFuncs{Status: func(s session.Status) {
		l.mu.Lock()
		l.lines = append(l.lines, s)
		l.mu.Unlock()
	}}
}

func (l *statusLog) has(contains string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.lines {
		if strings.Contains(s.Text, contains) {
			return true
		}
	}
	return false
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EVIConfigID = "cfg-1"
	cfg.HumeAPIKey = "hume-key"
	cfg.Web = false
	cfg.Prelude = false
	cfg.StreamMicrophone = false
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestApp(t *testing.T, cfg Config, opts ...Option) *App {
	t.Helper()
	app, err := New(cfg, append([]Option{WithLogger(log.Discard())}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(app.Shutdown)
	return app
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	_, err := New(cfg)
	if !config.IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
	if !strings.Contains(err.Error(), "EVI_CONFIG_ID") {
		t.Errorf("expected missing EVI_CONFIG_ID, got %v", err)
	}

	cfg.EVIConfigID = "x"
	if _, err := New(cfg); err == nil || !strings.Contains(err.Error(), "HUME_API_KEY") {
		t.Errorf("expected missing HUME_API_KEY, got %v", err)
	}
}

func TestInteractionLifecycle(t *testing.T) {
	mock := evi.NewMock()
	texts := make(chan string, 4)
	mock.SendTextFunc = func(text string) error {
		texts <- text
		return nil
	}
	dialer := session.DialerFunc(func(ctx context.Context) (session.Transport, error) {
		return mock, nil
	})

	app := newTestApp(t, testConfig(), WithDialer(dialer))

	if err := app.SendText("too early"); !errors.Is(err, session.ErrNotActive) {
		t.Errorf("expected ErrNotActive before start, got %v", err)
	}

	if err := app.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "active session", func() bool { return app.Stats().State == session.StateActive })

	if err := app.Start(); !errors.Is(err, session.ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	if err := app.SendText("hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	select {
	case got := <-texts:
		if got != "hello" {
			t.Errorf("expected hello, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("text was not forwarded")
	}

	mock.SimulateMessage(event.KindUserMessage, "user", "hello")
	waitFor(t, "transcript entry", func() bool { return len(app.Transcript()) == 1 })

	if err := app.SendText(" q "); err != nil {
		t.Fatalf("SendText quit failed: %v", err)
	}
	waitFor(t, "closed session", func() bool {
		return app.Stats().State == session.StateClosed && !app.active.Load()
	})
	if !mock.Closed() {
		t.Error("expected transport closed")
	}
}

func TestManualDispatch(t *testing.T) {
	app := newTestApp(t, testConfig())

	res := app.Dispatch(context.Background(), "who_is_on_call", `{"department":"Sales"}`)
	if !errors.Is(res.Err, tools.ErrNoDirectory) {
		t.Errorf("expected ErrNoDirectory, got %v", res.Err)
	}
	if res.Route != tools.RouteDirectory {
		t.Errorf("expected directory route, got %s", res.Route)
	}

	res = app.Dispatch(context.Background(), tools.MeetingBook, `{}`)
	if !tools.IsArgumentError(res.Err) {
		t.Errorf("expected argument error, got %v", res.Err)
	}
}

func TestPrelude(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	analyze := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("audio"); err != nil {
			t.Errorf("expected audio upload: %v", err)
		}
		w.Write([]byte(`{"transcription":"schedule a sync with Sales"}`))
	}))
	defer analyze.Close()

	completions := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"On it."}}]}`))
	}))
	defer completions.Close()

	cfg := testConfig()
	cfg.Prelude = true
	cfg.AudioBackend = audioio.BackendMock
	cfg.RecordDuration = 100 * time.Millisecond
	cfg.OpenAIKey = "sk-test"
	cfg.Player = "cat"

	synth := tts.NewMock()
	var statuses statusLog
	app := newTestApp(t, cfg,
		WithEmotionURL(analyze.URL),
		WithChatURL(completions.URL),
		WithSynthesizer(synth),
		WithObserver(statuses.observer()),
	)

	res, err := app.Prelude(context.Background())
	if err != nil {
		t.Fatalf("Prelude failed: %v", err)
	}
	if res.Transcription != "schedule a sync with Sales" || res.Reply != "On it." || !res.Spoken {
		t.Errorf("unexpected result %+v", res)
	}
	if texts := synth.Texts(); len(texts) != 1 || texts[0] != "On it." {
		t.Errorf("unexpected synthesized texts %v", texts)
	}
	if !statuses.has("You said: schedule a sync") || !statuses.has("Assistant: On it.") {
		t.Error("expected prelude status lines")
	}
}

func TestPreludeDisabled(t *testing.T) {
	app := newTestApp(t, testConfig())
	if _, err := app.Prelude(context.Background()); !errors.Is(err, ErrPreludeDisabled) {
		t.Errorf("expected ErrPreludeDisabled, got %v", err)
	}
}
