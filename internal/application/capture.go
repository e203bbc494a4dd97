package application

import (
	"context"

	"voice-agent/internal/domain"
)

// CaptureDevice grants exclusive access to an audio input. Acquire blocks
// until access is granted or refused; refusal is reported as
// domain.ErrPermissionDenied or domain.ErrDeviceUnavailable.
type CaptureDevice interface {
	Available() bool
	Acquire(ctx context.Context, sink CaptureSink) (CaptureHandle, error)
	Name() string
}

// CaptureSink receives chunks while a handle is active and exactly one
// Finalized call after Stop.
type CaptureSink interface {
	Chunk(data []byte)
	Finalized()
}

type CaptureHandle interface {
	Format() domain.AudioFormat
	Stop() error
	Release() error
}
