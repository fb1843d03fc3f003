package coworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-coworker/internal/httpc"
	"github.com/teslashibe/go-coworker/pkg/audioio"
	"github.com/teslashibe/go-coworker/pkg/auth"
	"github.com/teslashibe/go-coworker/pkg/calendar"
	"github.com/teslashibe/go-coworker/pkg/chat"
	"github.com/teslashibe/go-coworker/pkg/directory"
	"github.com/teslashibe/go-coworker/pkg/emotion"
	"github.com/teslashibe/go-coworker/pkg/event"
	"github.com/teslashibe/go-coworker/pkg/evi"
	"github.com/teslashibe/go-coworker/pkg/hub"
	"github.com/teslashibe/go-coworker/pkg/session"
	"github.com/teslashibe/go-coworker/pkg/tools"
	"github.com/teslashibe/go-coworker/pkg/transcript"
	"github.com/teslashibe/go-coworker/pkg/tts"
	"github.com/teslashibe/go-coworker/pkg/web"
)

// Sentinel errors.
var (
	ErrNotInitialized  = errors.New("coworker: not initialized")
	ErrPreludeDisabled = errors.New("coworker: prelude is disabled")
)

// Option overrides a collaborator, mostly for tests.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithDialer replaces the EVI dialer.
func WithDialer(d session.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithObserver adds an observer alongside the status hub.
func WithObserver(o session.Observer) Option {
	return func(a *App) { a.extraObservers = append(a.extraObservers, o) }
}

// WithSynthesizer replaces the LMNT synthesizer.
func WithSynthesizer(s tts.Synthesizer) Option {
	return func(a *App) { a.synth = s }
}

// WithEmotionURL points the analysis client at another endpoint.
func WithEmotionURL(url string) Option {
	return func(a *App) { a.emotionURL = url }
}

// WithChatURL points the chat client at another endpoint.
func WithChatURL(url string) Option {
	return func(a *App) { a.chatURL = url }
}

// App is the application orchestrator. It owns the session driver and every
// collaborator the session and the web UI need.
type App struct {
	config Config
	logger *slog.Logger

	// Session.
	driver     *session.Driver
	dialer     session.Dialer
	dispatcher *tools.Dispatcher
	lines      *session.Queue
	hub        *hub.Hub

	extraObservers []session.Observer

	// Collaborators; nil when not configured.
	calendar  *calendar.Client
	directory *directory.Client
	emotion   *emotion.Client
	chat      *chat.Client
	synth     tts.Synthesizer
	player    *tts.Player
	wavPlayer *tts.Player
	mic       audioio.Source

	emotionURL string
	chatURL    string

	// Accounts.
	users    auth.Store
	sessions auth.Sessions
	auth     *auth.Service
	google   *auth.Google

	webServer *web.Server

	baseCtx context.Context
	cancel  context.CancelFunc
	active  atomic.Bool
	wg      sync.WaitGroup
	closed  sync.Once
}

// New creates an application with the given configuration.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "coworker")
	a.baseCtx, a.cancel = context.WithCancel(context.Background())
	return a, nil
}

// Init builds all collaborators. Call it after New and before Run.
func (a *App) Init(ctx context.Context) error {
	a.hub = hub.New("events", hub.WithLogger(a.logger))

	if err := a.initTools(); err != nil {
		return fmt.Errorf("tools init: %w", err)
	}
	if err := a.initPrelude(); err != nil {
		return fmt.Errorf("prelude init: %w", err)
	}
	if err := a.initSession(); err != nil {
		return fmt.Errorf("session init: %w", err)
	}
	if a.config.Web {
		if err := a.initAccounts(ctx); err != nil {
			return fmt.Errorf("accounts init: %w", err)
		}
		a.initWeb()
	}
	return nil
}

func (a *App) initTools() error {
	// Collaborators are passed as interfaces only when configured.
	var (
		cal tools.Calendar
		dir tools.Directory
	)

	if a.config.GoogleClientID != "" {
		c, err := calendar.New(calendar.Config{
			ClientID:     a.config.GoogleClientID,
			ClientSecret: a.config.GoogleClientSecret,
			RedirectURL:  a.config.redirectURL("/api/calendar/callback"),
			TokenPath:    a.config.CalendarTokenPath,
			HTTPClient:   httpc.New("google-calendar", a.config.ToolTimeout),
			Logger:       a.logger,
		})
		if err != nil {
			return err
		}
		a.calendar, cal = c, c
	} else {
		a.logger.Warn("calendar disabled: GOOGLE_CLIENT_ID not set")
	}

	if a.config.AirtableToken != "" {
		d, err := directory.New(directory.Config{
			Token:  a.config.AirtableToken,
			BaseID: a.config.AirtableBaseID,
			Table:  a.config.AirtableTable,
			Logger: a.logger,
		})
		if err != nil {
			return err
		}
		a.directory, dir = d, d
	} else {
		a.logger.Warn("directory disabled: AIRTABLE_TOKEN not set")
	}

	a.dispatcher = tools.NewDispatcher(cal, dir,
		tools.WithTimeout(a.config.ToolTimeout),
		tools.WithLogger(a.logger),
	)
	return nil
}

func (a *App) initPrelude() error {
	if !a.config.Prelude {
		return nil
	}

	em, err := emotion.New(emotion.Config{APIKey: a.config.HumeAPIKey, URL: a.emotionURL, Logger: a.logger})
	if err != nil {
		return err
	}
	a.emotion = em

	if a.config.OpenAIKey != "" {
		c, err := chat.New(chat.Config{APIKey: a.config.OpenAIKey, BaseURL: a.chatURL, Logger: a.logger})
		if err != nil {
			return err
		}
		a.chat = c
	}

	if a.synth == nil && a.config.LMNTKey != "" {
		s, err := tts.NewLMNT(
			tts.WithAPIKey(a.config.LMNTKey),
			tts.WithVoice(a.config.LMNTVoice),
			tts.WithLogger(a.logger),
		)
		if err != nil {
			return err
		}
		a.synth = s
	}
	if cmd := command(a.config.Player); len(cmd) > 0 {
		a.player = tts.NewPlayer(tts.WithCommand(cmd[0], cmd[1:]...), tts.WithPlayerLogger(a.logger))
	}
	return nil
}

func (a *App) initSession() error {
	eviCfg := evi.Config{
		ConfigID:         a.config.EVIConfigID,
		APIKey:           a.config.HumeAPIKey,
		SystemPrompt:     a.config.SystemPrompt,
		HandshakeTimeout: a.config.HandshakeTimeout,
		Logger:           a.logger,
	}
	if a.config.EnableAudio {
		if cmd := command(a.config.WAVPlayer); len(cmd) > 0 {
			a.wavPlayer = tts.NewPlayer(tts.WithCommand(cmd[0], cmd[1:]...), tts.WithPlayerLogger(a.logger))
			eviCfg.EnableAudio = true
			eviCfg.AudioSink = a.wavPlayer.Sink(a.baseCtx)
		}
	}
	if a.dialer == nil {
		a.dialer = session.EVIDialer(eviCfg)
	}

	if a.config.StreamMicrophone {
		micCfg := audioio.DefaultConfig()
		micCfg.Backend = a.config.AudioBackend
		mic, err := audioio.NewSource(micCfg, a.logger)
		if err != nil {
			a.logger.Warn("microphone disabled", "error", err)
		} else {
			a.mic = mic
		}
	}

	var lines session.LineSource
	if a.config.Terminal {
		lines = session.NewReaderLines(os.Stdin)
	} else {
		a.lines = session.NewQueue(16)
		lines = a.lines
	}

	var prelude func(context.Context) error
	if a.config.Prelude {
		prelude = a.runPrelude
	}

	d, err := session.New(session.Config{
		Dialer:           a.dialer,
		Dispatcher:       a.dispatcher,
		Microphone:       a.mic,
		Lines:            lines,
		Prelude:          prelude,
		Observer:         a.observer(),
		HandshakeTimeout: a.config.HandshakeTimeout,
		Logger:           a.logger,
	})
	if err != nil {
		return err
	}
	a.driver = d
	return nil
}

func (a *App) initAccounts(ctx context.Context) error {
	if !a.config.RequireLogin {
		return nil
	}

	if a.config.DatabaseURL != "" {
		store, err := auth.OpenPostgres(ctx, a.config.DatabaseURL, a.logger)
		if err != nil {
			return err
		}
		a.users = store
	} else {
		a.logger.Warn("DATABASE_URL not set, accounts are kept in memory")
		a.users = auth.NewMemoryStore()
	}

	if a.config.RedisURL != "" {
		rs, err := auth.OpenRedisSessions(ctx, a.config.RedisURL, auth.DefaultSessionTTL)
		if err != nil {
			return err
		}
		a.sessions = rs
	} else {
		a.sessions = auth.NewMemorySessions(auth.DefaultSessionTTL)
	}
	a.auth = auth.NewService(a.users, a.sessions, a.logger)

	if a.config.GoogleClientID != "" {
		g, err := auth.NewGoogle(auth.GoogleConfig{
			ClientID:     a.config.GoogleClientID,
			ClientSecret: a.config.GoogleClientSecret,
			RedirectURL:  a.config.redirectURL("/auth/google/callback"),
			HTTPClient:   httpc.New("google-oauth", 0),
		})
		if err != nil {
			return err
		}
		a.google = g
	}
	return nil
}

func (a *App) initWeb() {
	cfg := web.Config{
		Port:       a.config.Port,
		Controller: a,
		Auth:       a.auth,
		Google:     a.google,
		Hub:        a.hub,
		StaticDir:  a.config.StaticDir,
		Logger:     a.logger,

		SecureCookies: strings.HasPrefix(a.config.PublicURL, "https://"),
	}
	if a.calendar != nil {
		cfg.Calendar = a.calendar
	}
	a.webServer = web.NewServer(cfg)
}

// Run serves the web UI until ctx is cancelled. In terminal mode it runs one
// session in the foreground and returns when it ends.
func (a *App) Run(ctx context.Context) error {
	if a.driver == nil {
		return ErrNotInitialized
	}
	if !a.config.Terminal {
		return a.serve(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- a.serve(ctx) }()

	a.logger.Info("starting terminal session", "quit", session.QuitSentinel)
	err := a.runSession(ctx)
	cancel()
	if serr := <-served; serr != nil {
		a.logger.Warn("web server stopped", "error", serr)
	}
	return err
}

// serve runs the web server, or only the hub when the UI is disabled.
func (a *App) serve(ctx context.Context) error {
	if a.webServer != nil {
		return a.webServer.Start(ctx)
	}
	a.hub.Run(ctx)
	return nil
}

func (a *App) runSession(ctx context.Context) error {
	if !a.active.CompareAndSwap(false, true) {
		return session.ErrAlreadyRunning
	}
	defer a.active.Store(false)
	return a.session(ctx)
}

func (a *App) session(ctx context.Context) error {
	if a.lines != nil {
		a.lines.Drain()
	}
	err := a.driver.Run(ctx)
	if err != nil {
		a.logger.Error("session ended", "error", err)
	} else {
		a.logger.Info("session ended", "stats", a.driver.Stats())
	}
	return err
}

// Shutdown stops the active session and releases resources.
func (a *App) Shutdown() {
	a.closed.Do(a.shutdown)
}

func (a *App) shutdown() {
	a.cancel()
	if a.driver != nil {
		a.driver.Stop()
	}
	a.wg.Wait()

	if a.webServer != nil {
		a.webServer.Shutdown()
	}
	if a.mic != nil {
		a.mic.Close()
	}
	if a.sessions != nil {
		if c, ok := a.sessions.(interface{ Close() error }); ok {
			c.Close()
		}
	}
	if a.users != nil {
		a.users.Close()
	}
	a.logger.Info("shutdown complete")
}

// Start begins a session in the background. It implements web.Controller.
func (a *App) Start() error {
	if a.driver == nil {
		return ErrNotInitialized
	}
	if !a.active.CompareAndSwap(false, true) {
		return session.ErrAlreadyRunning
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.active.Store(false)
		a.session(a.baseCtx)
	}()
	return nil
}

// Stop requests the active session to close.
func (a *App) Stop() {
	if a.driver != nil {
		a.driver.Stop()
	}
}

// SendText queues operator text for the active session.
func (a *App) SendText(text string) error {
	if a.driver == nil || a.driver.State() != session.StateActive {
		return session.ErrNotActive
	}
	if a.lines == nil {
		return a.driver.SendText(text)
	}
	return a.lines.Push(a.baseCtx, text)
}

// Stats returns the session counters.
func (a *App) Stats() session.Stats {
	return a.driver.Stats()
}

// Transcript returns a snapshot of the current transcript.
func (a *App) Transcript() []transcript.Turn {
	return a.driver.Transcript().Snapshot()
}

// Dispatch runs a tool by hand, outside any voice session.
func (a *App) Dispatch(ctx context.Context, name, arguments string) tools.Result {
	return a.dispatcher.Dispatch(ctx, event.ToolCall{Name: name, Arguments: arguments})
}

var _ web.Controller = (*App)(nil)
