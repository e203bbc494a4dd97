package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const playbackPoll = 20 * time.Millisecond

// SpeakerPlayer streams an MP3 reply to the default output device.
type SpeakerPlayer struct {
	httpClient *http.Client
	logger     *slog.Logger

	mu         sync.Mutex
	otoCtx     *oto.Context
	sampleRate int
}

// NewSpeakerPlayer bounds fetching a reply by timeout. The body is decoded
// while it plays, so the timeout stops once response headers arrive.
func NewSpeakerPlayer(timeout time.Duration, logger *slog.Logger) *SpeakerPlayer {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	return &SpeakerPlayer{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(transport),
		},
		logger: logger,
	}
}

func (p *SpeakerPlayer) Play(ctx context.Context, locator string) error {
	ctx, span := tracer.Start(ctx, "play reply")
	defer span.End()
	span.SetAttributes(attribute.String("audio.url", locator))

	if err := p.play(ctx, locator); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *SpeakerPlayer) play(ctx context.Context, locator string) error {
	body, err := p.open(ctx, locator)
	if err != nil {
		return err
	}
	defer body.Close()

	decoder, err := mp3.NewDecoder(body)
	if err != nil {
		return fmt.Errorf("decoding mp3: %w", err)
	}

	otoCtx, err := p.output(decoder.SampleRate())
	if err != nil {
		return err
	}

	player := otoCtx.NewPlayer(decoder)
	defer player.Close()

	p.logger.Debug("playing reply", "url", locator, "sampleRate", decoder.SampleRate())
	player.Play()

	ticker := time.NewTicker(playbackPoll)
	defer ticker.Stop()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := player.Err(); err != nil {
		return fmt.Errorf("playing audio: %w", err)
	}
	return nil
}

func (p *SpeakerPlayer) open(ctx context.Context, locator string) (io.ReadCloser, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("parsing audio url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching audio: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching audio: %s", resp.Status)
		}
		return resp.Body, nil
	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, fmt.Errorf("opening audio file: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported audio url scheme %q", u.Scheme)
	}
}

// output lazily creates the shared oto context. oto allows one context per
// process, so every reply must share the first reply's sample rate.
func (p *SpeakerPlayer) output(sampleRate int) (*oto.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.otoCtx != nil {
		if sampleRate != p.sampleRate {
			return nil, fmt.Errorf("reply sample rate %d differs from output rate %d", sampleRate, p.sampleRate)
		}
		return p.otoCtx, nil
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing speaker: %w", err)
	}
	<-ready

	p.otoCtx = otoCtx
	p.sampleRate = sampleRate
	return otoCtx, nil
}

// SilentPlayer only logs replies. Used when no output device is wanted.
type SilentPlayer struct {
	logger *slog.Logger
}

func NewSilentPlayer(logger *slog.Logger) *SilentPlayer {
	return &SilentPlayer{logger: logger}
}

func (s *SilentPlayer) Play(ctx context.Context, locator string) error {
	s.logger.Info("reply audio", "url", locator)
	return ctx.Err()
}
