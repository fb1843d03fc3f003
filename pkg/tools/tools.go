// Package tools routes tool calls from the voice service to the side effects
// they request: booking a calendar meeting or looking up a department in the
// company directory.
//
// Routing is a fixed table keyed by tool name. "meeting_book" goes to the
// calendar handler; every other name falls through to the directory lookup.
package tools

import (
	"context"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-coworker/pkg/directory"
	"github.com/teslashibe/go-coworker/pkg/event"
)

// Tool names known to the voice service configuration.
const (
	MeetingBook     = "meeting_book"
	DirectoryLookup = "directory_lookup"
)

// Routes a tool call can take.
const (
	RouteCalendar  = "calendar"
	RouteDirectory = "directory"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 30 * time.Second

var table = map[string]string{
	MeetingBook: RouteCalendar,
}

// Route returns the route for a tool name. Names missing from the table
// take the directory route.
func Route(name string) string {
	if r, ok := table[name]; ok {
		return r
	}
	return RouteDirectory
}

// Calendar creates calendar events.
type Calendar interface {
	CreateEvent(ctx context.Context, summary, description, start, end string, attendees []string) (string, error)
}

// Directory runs equality-filtered record queries.
type Directory interface {
	Query(ctx context.Context, field, value string) ([]directory.Record, error)
}

// Handler performs one tool invocation given its serialized arguments.
type Handler func(ctx context.Context, arguments string) (string, error)

// Result is the outcome of one dispatched tool call.
type Result struct {
	CallID   string        `json:"call_id"`
	Tool     string        `json:"tool"`
	Route    string        `json:"route"`
	Output   string        `json:"output,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the invocation returned an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-invocation timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

// Dispatcher routes tool calls to their handlers.
type Dispatcher struct {
	calendar  Calendar
	directory Directory
	handlers  map[string]Handler
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. Either collaborator may be nil; calls
// routed to a missing collaborator fail with ErrNoCalendar or ErrNoDirectory.
func NewDispatcher(cal Calendar, dir Directory, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		calendar:  cal,
		directory: dir,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "tools")
	d.handlers = map[string]Handler{
		RouteCalendar:  d.bookMeeting,
		RouteDirectory: d.lookupDepartment,
	}
	return d
}

// Dispatch runs the handler for call and returns its result. Errors are
// carried in the Result, never panicked or returned separately.
func (d *Dispatcher) Dispatch(ctx context.Context, call event.ToolCall) Result {
	callID := call.CallID
	if callID == "" {
		if id, err := gonanoid.New(); err == nil {
			callID = id
		}
	}
	route := Route(call.Name)

	ctx, span := tracer.Start(ctx, "tools.dispatch", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.route", route),
		attribute.String("tool.call_id", callID),
	))
	defer span.End()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := d.handlers[route](ctx, call.Arguments)
	res := Result{
		CallID:   callID,
		Tool:     call.Name,
		Route:    route,
		Output:   out,
		Err:      err,
		Duration: time.Since(start),
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("tool call failed",
			"tool", call.Name,
			"call_id", callID,
			"error", err,
		)
		return res
	}

	d.logger.Info("tool call completed",
		"tool", call.Name,
		"route", route,
		"call_id", callID,
		"duration", res.Duration,
	)
	return res
}
