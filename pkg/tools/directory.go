package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/teslashibe/go-coworker/pkg/directory"
)

// UnknownDepartment is used when no department can be extracted.
const UnknownDepartment = "Unknown Department"

// DepartmentField is the directory column matched by lookups.
const DepartmentField = "Department"

var departmentPattern = regexp.MustCompile(`"department"\s*:\s*"([^"]+)"`)

// DepartmentArgs describes the directory lookup tool to the voice service.
// The handler itself treats its arguments as free text.
type DepartmentArgs struct {
	Department string `json:"department" jsonschema:"description=Department name to look up"`
}

// ExtractDepartment pulls the department name out of free text, or returns
// UnknownDepartment.
func ExtractDepartment(text string) string {
	m := departmentPattern.FindStringSubmatch(text)
	if m == nil {
		return UnknownDepartment
	}
	return m[1]
}

func (d *Dispatcher) lookupDepartment(ctx context.Context, arguments string) (string, error) {
	if d.directory == nil {
		return "", ErrNoDirectory
	}
	dept := ExtractDepartment(arguments)

	records, err := d.directory.Query(ctx, DepartmentField, dept)
	if err != nil {
		var apiErr *directory.APIError
		if !errors.As(err, &apiErr) {
			return "", fmt.Errorf("tools: directory query: %w", err)
		}
		// Non-200 from the directory is an empty result.
		d.logger.Debug("directory lookup returned no data",
			"department", dept,
			"status", apiErr.StatusCode,
		)
		records = nil
	}

	fields := make([]map[string]any, 0, len(records))
	for _, r := range records {
		fields = append(fields, r.Fields)
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("tools: encode records: %w", err)
	}
	return string(data), nil
}
