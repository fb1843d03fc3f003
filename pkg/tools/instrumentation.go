package tools

import "go.opentelemetry.io/otel"

const scopeName = "github.com/teslashibe/go-coworker/pkg/tools"

var tracer = otel.Tracer(scopeName)
