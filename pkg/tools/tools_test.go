package tools

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/teslashibe/go-coworker/internal/log"
	"github.com/teslashibe/go-coworker/pkg/directory"
	"github.com/teslashibe/go-coworker/pkg/event"
)

type createEventCall struct {
	Summary, Description, Start, End string
	Attendees                        []string
}

type mockCalendar struct {
	calls []createEventCall
	link  string
	err   error
}

func (m *mockCalendar) CreateEvent(ctx context.Context, summary, description, start, end string, attendees []string) (string, error) {
	m.calls = append(m.calls, createEventCall{summary, description, start, end, attendees})
	return m.link, m.err
}

type mockDirectory struct {
	field, value string
	records      []directory.Record
	err          error
	calls        int
}

func (m *mockDirectory) Query(ctx context.Context, field, value string) ([]directory.Record, error) {
	m.calls++
	m.field, m.value = field, value
	return m.records, m.err
}

func newTestDispatcher(cal Calendar, dir Directory) *Dispatcher {
	return NewDispatcher(cal, dir, WithLogger(log.Discard()))
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"meeting_book", RouteCalendar},
		{"directory_lookup", RouteDirectory},
		{"", RouteDirectory},
		{"Meeting_Book", RouteDirectory},
		{"something_new", RouteDirectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.name); got != tt.want {
				t.Errorf("Route(%q) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestExtractDepartment(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{`{"department": "Finance"}`, "Finance"},
		{`prefix ..."department":"Human Resources"... suffix`, "Human Resources"},
		{"no department key", UnknownDepartment},
		{`{"department": ""}`, UnknownDepartment},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ExtractDepartment(tt.text); got != tt.want {
				t.Errorf("ExtractDepartment(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestMeetingBook(t *testing.T) {
	t.Run("calls create event once with parsed fields", func(t *testing.T) {
		cal := &mockCalendar{link: "https://calendar.example/e1"}
		d := newTestDispatcher(cal, nil)

		res := d.Dispatch(context.Background(), event.ToolCall{
			CallID:    "call-1",
			Name:      MeetingBook,
			Arguments: `{"summary":"S","description":"D","start_time":"T1","end_time":"T2","attendees":[]}`,
		})
		if res.Failed() {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if len(cal.calls) != 1 {
			t.Fatalf("expected exactly 1 create_event call, got %d", len(cal.calls))
		}
		want := createEventCall{"S", "D", "T1", "T2", []string{}}
		if !reflect.DeepEqual(cal.calls[0], want) {
			t.Errorf("unexpected call: %+v", cal.calls[0])
		}
		if res.CallID != "call-1" || res.Route != RouteCalendar {
			t.Errorf("unexpected result: %+v", res)
		}
		if res.Output != "Event created: https://calendar.example/e1" {
			t.Errorf("unexpected output: %q", res.Output)
		}
	})

	t.Run("attendees default to empty", func(t *testing.T) {
		args, err := ParseMeetingArgs(`{"summary":"S","description":"D","start_time":"T1","end_time":"T2"}`)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if args.Attendees == nil || len(args.Attendees) != 0 {
			t.Errorf("expected empty attendees, got %v", args.Attendees)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		cal := &mockCalendar{}
		d := newTestDispatcher(cal, nil)

		res := d.Dispatch(context.Background(), event.ToolCall{
			Name:      MeetingBook,
			Arguments: `{"summary":"S","description":"D","start_time":"T1"}`,
		})

		var argErr *ArgumentError
		if !errors.As(res.Err, &argErr) {
			t.Fatalf("expected ArgumentError, got %v", res.Err)
		}
		if argErr.Field != "end_time" || !errors.Is(res.Err, ErrMissingField) {
			t.Errorf("unexpected error: %v", argErr)
		}
		if len(cal.calls) != 0 {
			t.Error("calendar should not be called")
		}
		if res.CallID == "" {
			t.Error("expected a generated call id")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		d := newTestDispatcher(&mockCalendar{}, nil)
		res := d.Dispatch(context.Background(), event.ToolCall{Name: MeetingBook, Arguments: "{not json"})

		if !IsArgumentError(res.Err) || !errors.Is(res.Err, ErrMalformedArguments) {
			t.Errorf("expected malformed ArgumentError, got %v", res.Err)
		}
	})

	t.Run("calendar failure is non-fatal", func(t *testing.T) {
		cal := &mockCalendar{err: errors.New("not authenticated")}
		d := newTestDispatcher(cal, nil)

		res := d.Dispatch(context.Background(), event.ToolCall{
			Name:      MeetingBook,
			Arguments: `{"summary":"S","description":"D","start_time":"T1","end_time":"T2"}`,
		})
		if !res.Failed() {
			t.Fatal("expected failure")
		}
		if IsArgumentError(res.Err) {
			t.Error("calendar failure should not be an argument error")
		}
	})

	t.Run("no calendar configured", func(t *testing.T) {
		d := newTestDispatcher(nil, nil)
		res := d.Dispatch(context.Background(), event.ToolCall{
			Name:      MeetingBook,
			Arguments: `{"summary":"S","description":"D","start_time":"T1","end_time":"T2"}`,
		})
		if !errors.Is(res.Err, ErrNoCalendar) {
			t.Errorf("expected ErrNoCalendar, got %v", res.Err)
		}
	})
}

func TestDirectoryLookup(t *testing.T) {
	t.Run("queries by extracted department", func(t *testing.T) {
		dir := &mockDirectory{records: []directory.Record{
			{ID: "rec1", Fields: map[string]any{"Name": "Ada"}},
		}}
		d := newTestDispatcher(nil, dir)

		res := d.Dispatch(context.Background(), event.ToolCall{
			Name:      "lookup_people",
			Arguments: `{"department": "Finance"}`,
		})
		if res.Failed() {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if dir.field != DepartmentField || dir.value != "Finance" {
			t.Errorf("unexpected query: %s=%s", dir.field, dir.value)
		}

		var rows []map[string]any
		if err := json.Unmarshal([]byte(res.Output), &rows); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(rows) != 1 || rows[0]["Name"] != "Ada" {
			t.Errorf("unexpected rows: %v", rows)
		}
	})

	t.Run("unknown department", func(t *testing.T) {
		dir := &mockDirectory{}
		d := newTestDispatcher(nil, dir)

		d.Dispatch(context.Background(), event.ToolCall{Name: DirectoryLookup, Arguments: "who works here"})
		if dir.value != UnknownDepartment {
			t.Errorf("expected %q, got %q", UnknownDepartment, dir.value)
		}
	})

	t.Run("non-200 is silently empty", func(t *testing.T) {
		dir := &mockDirectory{err: &directory.APIError{StatusCode: 500}}
		d := newTestDispatcher(nil, dir)

		res := d.Dispatch(context.Background(), event.ToolCall{Name: DirectoryLookup, Arguments: `{"department":"X"}`})
		if res.Failed() {
			t.Fatalf("expected silent empty result, got %v", res.Err)
		}
		if res.Output != "[]" {
			t.Errorf("expected empty list, got %q", res.Output)
		}
		if dir.calls != 1 {
			t.Errorf("expected no retry, got %d calls", dir.calls)
		}
	})

	t.Run("transport error surfaces", func(t *testing.T) {
		dir := &mockDirectory{err: errors.New("connection refused")}
		d := newTestDispatcher(nil, dir)

		res := d.Dispatch(context.Background(), event.ToolCall{Name: DirectoryLookup, Arguments: `{"department":"X"}`})
		if !res.Failed() {
			t.Error("expected failure")
		}
	})
}

func TestDispatchTimeout(t *testing.T) {
	cal := calendarFunc(func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	d := NewDispatcher(cal, nil, WithLogger(log.Discard()), WithTimeout(10*time.Millisecond))

	res := d.Dispatch(context.Background(), event.ToolCall{
		Name:      MeetingBook,
		Arguments: `{"summary":"S","description":"D","start_time":"T1","end_time":"T2"}`,
	})
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", res.Err)
	}
}

type calendarFunc func(ctx context.Context) (string, error)

func (f calendarFunc) CreateEvent(ctx context.Context, _, _, _, _ string, _ []string) (string, error) {
	return f(ctx)
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != MeetingBook {
		t.Errorf("unexpected first tool: %s", defs[0].Name)
	}

	data, err := json.Marshal(defs[0].Parameters)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	var schema struct {
		Required   []string       `json:"required"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if _, ok := schema.Properties["start_time"]; !ok {
		t.Error("schema missing start_time")
	}
	for _, r := range schema.Required {
		if r == "attendees" {
			t.Error("attendees should be optional")
		}
	}
	if len(schema.Required) != 4 {
		t.Errorf("expected 4 required fields, got %v", schema.Required)
	}
}
