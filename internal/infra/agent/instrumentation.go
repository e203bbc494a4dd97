package agent

import "go.opentelemetry.io/otel"

const scopeName = "voice-agent/internal/infra/agent"

var tracer = otel.Tracer(scopeName)
