package audio

import "go.opentelemetry.io/otel"

const scopeName = "voice-agent/internal/infra/audio"

var tracer = otel.Tracer(scopeName)
