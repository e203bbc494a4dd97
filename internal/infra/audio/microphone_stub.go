//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"voice-agent/internal/application"
	"voice-agent/internal/domain"
)

// MicrophoneDevice stub when portaudio is not available
type MicrophoneDevice struct {
	logger *slog.Logger
}

func NewMicrophoneDevice(sampleRate int, logger *slog.Logger) *MicrophoneDevice {
	return &MicrophoneDevice{logger: logger}
}

func (m *MicrophoneDevice) Name() string {
	return "microphone"
}

func (m *MicrophoneDevice) Available() bool {
	return false
}

func (m *MicrophoneDevice) Acquire(_ context.Context, _ application.CaptureSink) (application.CaptureHandle, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags portaudio", domain.ErrDeviceUnavailable)
}

func (m *MicrophoneDevice) Close() {}
