package ui

import (
	"log/slog"

	"voice-agent/internal/application"
)

// LogRenderer is used when no terminal is attached.
type LogRenderer struct {
	logger *slog.Logger
}

func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) Render(view application.View) {
	attrs := []any{
		"state", view.State,
		"status", view.Status,
		"enabled", view.Enabled,
	}
	if view.Transcript != "" {
		attrs = append(attrs, "transcript", view.Transcript)
	}
	if view.Notice != "" {
		r.logger.Warn("turn notice", append(attrs, "notice", view.Notice)...)
		return
	}
	r.logger.Info("turn view", attrs...)
}
