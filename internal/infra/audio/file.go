package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voice-agent/internal/application"
	"voice-agent/internal/domain"
)

const (
	fileChunkSize     = 4096
	fileChunkInterval = 10 * time.Millisecond
)

// FileDevice replays a prerecorded file as if it were being captured. The
// file is delivered in chunks until it is exhausted or the recording is
// stopped, whichever comes first.
type FileDevice struct {
	path   string
	logger *slog.Logger
}

func NewFileDevice(path string, logger *slog.Logger) *FileDevice {
	return &FileDevice{path: path, logger: logger}
}

func (f *FileDevice) Name() string {
	return "file"
}

func (f *FileDevice) Available() bool {
	if _, ok := containerFor(f.path); !ok {
		return false
	}
	info, err := os.Stat(f.path)
	return err == nil && !info.IsDir()
}

func (f *FileDevice) Acquire(ctx context.Context, sink application.CaptureSink) (application.CaptureHandle, error) {
	container, ok := containerFor(f.path)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %s", domain.ErrDeviceUnavailable, filepath.Ext(f.path))
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrPermissionDenied, f.path, err)
	}

	h := &fileHandle{
		format: domain.AudioFormat{Container: container},
		stop:   make(chan struct{}),
	}
	go h.stream(ctx, data, sink)

	f.logger.Debug("replaying audio file", "path", f.path, "bytes", len(data))
	return h, nil
}

type fileHandle struct {
	format   domain.AudioFormat
	stop     chan struct{}
	stopOnce sync.Once
}

func (h *fileHandle) Format() domain.AudioFormat {
	return h.format
}

func (h *fileHandle) Stop() error {
	h.stopOnce.Do(func() { close(h.stop) })
	return nil
}

func (h *fileHandle) Release() error {
	h.stopOnce.Do(func() { close(h.stop) })
	return nil
}

func (h *fileHandle) stream(ctx context.Context, data []byte, sink application.CaptureSink) {
	ticker := time.NewTicker(fileChunkInterval)
	defer ticker.Stop()

	for offset := 0; offset < len(data); offset += fileChunkSize {
		end := min(offset+fileChunkSize, len(data))
		chunk := make([]byte, end-offset)
		copy(chunk, data[offset:end])
		sink.Chunk(chunk)

		select {
		case <-h.stop:
			sink.Finalized()
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	select {
	case <-h.stop:
		sink.Finalized()
	case <-ctx.Done():
	}
}

func containerFor(path string) (domain.Container, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return domain.ContainerWAV, true
	case ".webm":
		return domain.ContainerWebM, true
	case ".mp3":
		return domain.ContainerMP3, true
	case ".ogg":
		return domain.ContainerOgg, true
	default:
		return "", false
	}
}
