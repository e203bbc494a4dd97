//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"voice-agent/internal/application"
	"voice-agent/internal/domain"
)

const framesPerBuffer = 1024

// MicrophoneDevice captures mono 16-bit PCM through a blocking portaudio
// stream.
type MicrophoneDevice struct {
	sampleRate int
	logger     *slog.Logger

	initOnce sync.Once
	initErr  error
}

func NewMicrophoneDevice(sampleRate int, logger *slog.Logger) *MicrophoneDevice {
	return &MicrophoneDevice{
		sampleRate: sampleRate,
		logger:     logger,
	}
}

func (m *MicrophoneDevice) Name() string {
	return "microphone"
}

func (m *MicrophoneDevice) init() error {
	m.initOnce.Do(func() {
		if err := portaudio.Initialize(); err != nil {
			m.initErr = fmt.Errorf("initializing portaudio: %w", err)
		}
	})
	return m.initErr
}

func (m *MicrophoneDevice) Available() bool {
	if err := m.init(); err != nil {
		m.logger.Warn("portaudio unavailable", "error", err)
		return false
	}
	_, err := portaudio.DefaultInputDevice()
	return err == nil
}

func (m *MicrophoneDevice) Acquire(_ context.Context, sink application.CaptureSink) (application.CaptureHandle, error) {
	if err := m.init(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	buffer := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), framesPerBuffer, buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: opening stream: %v", domain.ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: starting stream: %v", domain.ErrPermissionDenied, err)
	}

	h := &micHandle{
		stream: stream,
		format: domain.AudioFormat{
			SampleRate: m.sampleRate,
			Channels:   1,
			BitDepth:   16,
			Container:  domain.ContainerPCM,
		},
		done:   make(chan struct{}),
		logger: m.logger,
	}
	go h.read(buffer, sink)

	m.logger.Info("microphone started", "sampleRate", m.sampleRate)
	return h, nil
}

func (m *MicrophoneDevice) Close() {
	if m.initErr == nil {
		portaudio.Terminate()
	}
}

// pcmStream is the part of *portaudio.Stream a capture handle reads from.
type pcmStream interface {
	Read() error
	Stop() error
	Close() error
}

type micHandle struct {
	stream  pcmStream
	format  domain.AudioFormat
	stopped atomic.Bool
	done    chan struct{}
	logger  *slog.Logger

	closeOnce sync.Once
}

func (h *micHandle) Format() domain.AudioFormat {
	return h.format
}

func (h *micHandle) read(buffer []int16, sink application.CaptureSink) {
	defer close(h.done)

	for !h.stopped.Load() {
		if err := h.stream.Read(); err != nil {
			if !errors.Is(err, portaudio.InputOverflowed) {
				h.logger.Warn("reading from stream", "error", err)
				break
			}
			h.logger.Warn("input overflowed, samples dropped")
		}
		sink.Chunk(samplesToBytes(buffer))
	}

	if err := h.stream.Stop(); err != nil {
		h.logger.Warn("stopping stream", "error", err)
	}
	sink.Finalized()
}

func (h *micHandle) Stop() error {
	h.stopped.Store(true)
	return nil
}

func (h *micHandle) Release() error {
	h.stopped.Store(true)
	<-h.done

	var err error
	h.closeOnce.Do(func() {
		err = h.stream.Close()
	})
	if err != nil {
		return fmt.Errorf("closing stream: %w", err)
	}
	return nil
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
