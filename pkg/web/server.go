// Package web serves the operator UI: login gate, interaction control,
// transcript, calendar authorization and a live status feed.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-coworker/pkg/auth"
	"github.com/teslashibe/go-coworker/pkg/calendar"
	"github.com/teslashibe/go-coworker/pkg/hub"
	"github.com/teslashibe/go-coworker/pkg/session"
	"github.com/teslashibe/go-coworker/pkg/tools"
	"github.com/teslashibe/go-coworker/pkg/transcript"
)

// Controller drives interactions on behalf of the UI.
type Controller interface {
	// Start begins a session in the background.
	Start() error
	Stop()
	SendText(text string) error
	Stats() session.Stats
	Transcript() []transcript.Turn
	Dispatch(ctx context.Context, name, arguments string) tools.Result
}

// Calendar is the calendar authorization surface.
type Calendar interface {
	Status() calendar.Status
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) error
	Upcoming(ctx context.Context, n int) ([]calendar.Event, error)
	Disconnect() error
}

// Config configures a Server.
type Config struct {
	Port string

	Controller Controller

	// Auth gates /api and /ws. Nil disables the login gate.
	Auth *auth.Service

	// Google enables Google sign-in. Optional.
	Google *auth.Google

	// Calendar enables the calendar routes. Optional.
	Calendar Calendar

	// Hub feeds /ws/events. A new hub is created if nil.
	Hub *hub.Hub

	// StaticDir is served at /. Empty disables static files.
	StaticDir string

	// SecureCookies marks session cookies Secure.
	SecureCookies bool

	Logger *slog.Logger
}

// Server is the operator web server.
type Server struct {
	app    *fiber.App
	cfg    Config
	hub    *hub.Hub
	logger *slog.Logger
}

// NewServer creates a Server and registers its routes.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Port == "" {
		cfg.Port = "8501"
	}
	h := cfg.Hub
	if h == nil {
		h = hub.New("events", hub.WithLogger(cfg.Logger))
	}

	s := &Server{
		cfg:    cfg,
		hub:    h,
		logger: cfg.Logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Coworker",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	a := app.Group("/auth")
	a.Post("/signup", s.handleSignUp)
	a.Post("/login", s.handleLogin)
	a.Post("/logout", s.handleLogout)
	a.Get("/google", s.handleGoogleStart)
	a.Get("/google/callback", s.handleGoogleCallback)

	api := app.Group("/api", s.requireLogin)
	api.Get("/me", s.handleMe)
	api.Get("/session", s.handleSessionState)
	api.Post("/session/start", s.handleSessionStart)
	api.Post("/session/text", s.handleSessionText)
	api.Post("/session/stop", s.handleSessionStop)
	api.Get("/transcript", s.handleTranscript)
	api.Get("/tools", s.handleListTools)
	api.Post("/tools/:name", s.handleTriggerTool)

	cal := api.Group("/calendar", s.requireCalendar)
	cal.Get("/status", s.handleCalendarStatus)
	cal.Get("/auth", s.handleCalendarAuth)
	cal.Post("/code", s.handleCalendarCode)
	cal.Get("/callback", s.handleCalendarCallback)
	cal.Get("/events", s.handleCalendarEvents)
	cal.Post("/disconnect", s.handleCalendarDisconnect)

	app.Use("/ws", s.requireLogin, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// Hub returns the status hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Start runs the hub and serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()
	s.logger.Info("web server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		return s.app.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
		"seq":     s.hub.Seq(),
	})
}

func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.NewClient(s.hub, c).Run()
}
