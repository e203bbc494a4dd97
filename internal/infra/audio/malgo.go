package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"voice-agent/internal/application"
	"voice-agent/internal/domain"
)

// MalgoDevice captures 16-bit PCM from the default input through miniaudio.
type MalgoDevice struct {
	audioContext *malgo.AllocatedContext
	format       domain.AudioFormat
	logger       *slog.Logger
}

func NewMalgoDevice(sampleRate, channels int, logger *slog.Logger) (*MalgoDevice, error) {
	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	return &MalgoDevice{
		audioContext: audioContext,
		format: domain.AudioFormat{
			SampleRate: sampleRate,
			Channels:   channels,
			BitDepth:   16,
			Container:  domain.ContainerPCM,
		},
		logger: logger,
	}, nil
}

func (d *MalgoDevice) Name() string {
	return "microphone"
}

func (d *MalgoDevice) Available() bool {
	devices, err := d.audioContext.Devices(malgo.Capture)
	if err != nil {
		d.logger.Warn("listing capture devices", "error", err)
		return false
	}
	return len(devices) > 0
}

func (d *MalgoDevice) Acquire(_ context.Context, sink application.CaptureSink) (application.CaptureHandle, error) {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * d.format.Channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(d.format.SampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(d.format.Channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInMilliseconds = 20

	h := &malgoHandle{format: d.format, sink: sink}

	device, err := malgo.InitDevice(d.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			h.deliver(pInput[:n])
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initializing capture device: %v", domain.ErrPermissionDenied, err)
	}
	h.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("%w: starting capture device: %v", domain.ErrPermissionDenied, err)
	}

	return h, nil
}

func (d *MalgoDevice) Close() {
	_ = d.audioContext.Uninit()
	d.audioContext.Free()
}

type malgoHandle struct {
	device *malgo.Device
	format domain.AudioFormat
	sink   application.CaptureSink

	mu       sync.Mutex
	stopped  bool
	released bool
}

func (h *malgoHandle) Format() domain.AudioFormat {
	return h.format
}

func (h *malgoHandle) deliver(frames []byte) {
	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if stopped {
		return
	}

	// The input buffer belongs to miniaudio and is reused after the callback.
	chunk := make([]byte, len(frames))
	copy(chunk, frames)
	h.sink.Chunk(chunk)
}

func (h *malgoHandle) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()

	err := h.device.Stop()
	h.sink.Finalized()
	if err != nil {
		return fmt.Errorf("stopping capture device: %w", err)
	}
	return nil
}

func (h *malgoHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.stopped = true
	h.released = true
	h.device.Uninit()
	return nil
}
