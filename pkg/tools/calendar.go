package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// MeetingArgs are the arguments of the meeting_book tool.
type MeetingArgs struct {
	Summary     string   `json:"summary" jsonschema:"description=Title of the meeting"`
	Description string   `json:"description" jsonschema:"description=What the meeting is about"`
	StartTime   string   `json:"start_time" jsonschema:"description=Start time in ISO-8601 (e.g. 2024-05-01T10:00:00)"`
	EndTime     string   `json:"end_time" jsonschema:"description=End time in ISO-8601"`
	Attendees   []string `json:"attendees,omitempty" jsonschema:"description=Attendee email addresses"`
}

// ParseMeetingArgs decodes meeting_book arguments. The four text fields are
// required; attendees default to an empty list.
func ParseMeetingArgs(arguments string) (MeetingArgs, error) {
	var raw struct {
		Summary     *string  `json:"summary"`
		Description *string  `json:"description"`
		StartTime   *string  `json:"start_time"`
		EndTime     *string  `json:"end_time"`
		Attendees   []string `json:"attendees"`
	}
	if err := json.Unmarshal([]byte(arguments), &raw); err != nil {
		return MeetingArgs{}, &ArgumentError{
			Tool: MeetingBook,
			Err:  fmt.Errorf("%w: %v", ErrMalformedArguments, err),
		}
	}

	required := []struct {
		name  string
		value *string
	}{
		{"summary", raw.Summary},
		{"description", raw.Description},
		{"start_time", raw.StartTime},
		{"end_time", raw.EndTime},
	}
	for _, f := range required {
		if f.value == nil {
			return MeetingArgs{}, &ArgumentError{Tool: MeetingBook, Field: f.name, Err: ErrMissingField}
		}
	}

	attendees := raw.Attendees
	if attendees == nil {
		attendees = []string{}
	}

	return MeetingArgs{
		Summary:     *raw.Summary,
		Description: *raw.Description,
		StartTime:   *raw.StartTime,
		EndTime:     *raw.EndTime,
		Attendees:   attendees,
	}, nil
}

func (d *Dispatcher) bookMeeting(ctx context.Context, arguments string) (string, error) {
	args, err := ParseMeetingArgs(arguments)
	if err != nil {
		return "", err
	}
	if d.calendar == nil {
		return "", ErrNoCalendar
	}

	link, err := d.calendar.CreateEvent(ctx, args.Summary, args.Description, args.StartTime, args.EndTime, args.Attendees)
	if err != nil {
		return "", fmt.Errorf("tools: create event: %w", err)
	}
	return "Event created: " + link, nil
}
