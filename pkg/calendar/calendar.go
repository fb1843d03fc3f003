// Package calendar books meetings on the operator's primary Google Calendar.
//
// Authorization follows the installed-app flow: the operator opens AuthURL,
// pastes the returned code (or lets the redirect deliver it) and the token is
// persisted to disk so later runs start authenticated. The caller owns the
// OAuth state value and checks it on the redirect.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	// Scope grants read/write access to calendars.
	Scope = gcal.CalendarScope

	// DefaultTimeZone is applied to event start and end times.
	DefaultTimeZone = "America/Los_Angeles"

	// PrimaryCalendar is the calendar id of the authorized user's calendar.
	PrimaryCalendar = "primary"

	// DefaultRedirectURL matches the web server's callback route.
	DefaultRedirectURL = "http://localhost:8501/api/calendar/callback"

	// DefaultTokenFile is relative to the user's home directory.
	DefaultTokenFile = ".coworker/calendar_token.json"
)

// Sentinel errors.
var (
	ErrNotAuthenticated = errors.New("calendar: not authenticated")
	ErrNoCredentials    = errors.New("calendar: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	ErrEmptyCode        = errors.New("calendar: authorization code is empty")
)

// Config configures a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenPath    string
	TimeZone     string

	// Endpoint overrides google.Endpoint.
	Endpoint *oauth2.Endpoint

	// APIEndpoint overrides the Calendar API base URL.
	APIEndpoint string

	// HTTPClient is the base transport used for token and API calls.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Event is a calendar entry as returned by Upcoming.
type Event struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Link    string `json:"link,omitempty"`
}

// Status describes the authorization state for the UI.
type Status struct {
	Connected bool `json:"connected"`
}

// Client wraps the Calendar v3 API with token management.
type Client struct {
	oauth       *oauth2.Config
	tokenPath   string
	timeZone    string
	apiEndpoint string
	httpClient  *http.Client
	logger      *slog.Logger

	mu      sync.RWMutex
	token   *oauth2.Token
	service *gcal.Service
}

// New creates a Client and loads a previously saved token if one exists.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNoCredentials
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = DefaultRedirectURL
	}
	if cfg.TokenPath == "" {
		home, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(home, DefaultTokenFile)
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = DefaultTimeZone
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{Scope},
			Endpoint:     endpoint,
		},
		tokenPath:   cfg.TokenPath,
		timeZone:    cfg.TimeZone,
		apiEndpoint: cfg.APIEndpoint,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger.With("component", "calendar"),
	}

	if tok, err := c.loadToken(); err == nil {
		if err := c.useToken(tok); err != nil {
			c.logger.Warn("saved token unusable", "error", err)
		} else {
			c.logger.Info("loaded saved token", "path", c.tokenPath)
		}
	}
	return c, nil
}

// Authenticated reports whether a token is available. Expired tokens with a
// refresh token still count.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.service != nil
}

// AuthURL returns the consent URL carrying state, which the redirect
// echoes back.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Status returns the authorization state.
func (c *Client) Status() Status {
	return Status{Connected: c.Authenticated()}
}

// Exchange trades an authorization code for a token and saves it.
func (c *Client) Exchange(ctx context.Context, code string) error {
	if code == "" {
		return ErrEmptyCode
	}
	tok, err := c.oauth.Exchange(c.baseContext(ctx), code)
	if err != nil {
		return fmt.Errorf("calendar: exchange code: %w", err)
	}
	if err := c.useToken(tok); err != nil {
		return err
	}
	if err := c.saveToken(tok); err != nil {
		c.logger.Warn("failed to save token", "error", err)
	}
	c.logger.Info("calendar authorized")
	return nil
}

// Disconnect forgets the token and removes the saved copy.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.token = nil
	c.service = nil
	c.mu.Unlock()

	if err := os.Remove(c.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("calendar: remove token: %w", err)
	}
	return nil
}

// CreateEvent inserts an event on the primary calendar and returns its
// HTML link. start and end are RFC 3339 date-times.
func (c *Client) CreateEvent(ctx context.Context, summary, description, start, end string, attendees []string) (string, error) {
	svc, err := c.svc()
	if err != nil {
		return "", err
	}

	ev := &gcal.Event{
		Summary:     summary,
		Description: description,
		Start:       &gcal.EventDateTime{DateTime: start, TimeZone: c.timeZone},
		End:         &gcal.EventDateTime{DateTime: end, TimeZone: c.timeZone},
	}
	for _, email := range attendees {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
	}

	created, err := svc.Events.Insert(PrimaryCalendar, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	c.logger.Info("event created", "id", created.Id, "summary", summary)
	return created.HtmlLink, nil
}

// Upcoming lists the next n single events starting from now.
func (c *Client) Upcoming(ctx context.Context, n int) ([]Event, error) {
	svc, err := c.svc()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 10
	}

	res, err := svc.Events.List(PrimaryCalendar).
		TimeMin(time.Now().Format(time.RFC3339)).
		MaxResults(int64(n)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: list events: %w", err)
	}

	events := make([]Event, 0, len(res.Items))
	for _, item := range res.Items {
		events = append(events, Event{
			ID:      item.Id,
			Summary: item.Summary,
			Start:   when(item.Start),
			End:     when(item.End),
			Link:    item.HtmlLink,
		})
	}
	return events, nil
}

// when returns the date-time, or the date for all-day events.
func when(dt *gcal.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date
}

func (c *Client) svc() (*gcal.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.service == nil {
		return nil, ErrNotAuthenticated
	}
	return c.service, nil
}

func (c *Client) baseContext(ctx context.Context) context.Context {
	if c.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	return ctx
}

func (c *Client) useToken(tok *oauth2.Token) error {
	ctx := c.baseContext(context.Background())
	opts := []option.ClientOption{option.WithHTTPClient(c.oauth.Client(ctx, tok))}
	if c.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(c.apiEndpoint))
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("calendar: create service: %w", err)
	}

	c.mu.Lock()
	c.token = tok
	c.service = svc
	c.mu.Unlock()
	return nil
}

func (c *Client) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *Client) saveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(c.tokenPath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.tokenPath, data, 0o600)
}
