package tools

import (
	"github.com/invopop/jsonschema"
)

// Definition describes one tool for the voice service configuration.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// Definitions returns the tools this package handles, with parameter schemas
// generated from their argument types.
func Definitions() []Definition {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return []Definition{
		{
			Name:        MeetingBook,
			Description: "Book a meeting on the user's Google Calendar.",
			Parameters:  reflector.Reflect(&MeetingArgs{}),
		},
		{
			Name:        DirectoryLookup,
			Description: "Look up the people in a department of the company directory.",
			Parameters:  reflector.Reflect(&DepartmentArgs{}),
		},
	}
}
