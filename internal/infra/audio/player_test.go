package audio_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"voice-agent/internal/infra/audio"
)

func TestSpeakerPlayer_FetchFailures(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	player := audio.NewSpeakerPlayer(5*time.Second, logger)

	tests := []struct {
		name    string
		locator string
	}{
		{"not found", server.URL + "/a.mp3"},
		{"unsupported scheme", "ftp://x/a.mp3"},
		{"missing file", "file://" + filepath.Join(t.TempDir(), "missing.mp3")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := player.Play(context.Background(), tt.locator); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSilentPlayer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	player := audio.NewSilentPlayer(logger)

	if err := player.Play(context.Background(), "https://x/a.mp3"); err != nil {
		t.Errorf("Play error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := player.Play(ctx, "https://x/a.mp3"); err == nil {
		t.Error("cancelled play should report the cancellation")
	}
}
