package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"voice-agent/config"
	"voice-agent/internal/application"
	"voice-agent/internal/infra/agent"
	"voice-agent/internal/infra/audio"
	"voice-agent/internal/infra/control"
	"voice-agent/internal/session"
	"voice-agent/internal/ui"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	sessionID := flag.String("session-id", "", "resume this session instead of the stored one")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if *sessionID != "" {
		cfg.Session.ID = *sessionID
	}

	logger, closeLog, err := setupLogger(cfg.Log, cfg.UI.Mode == "tui")
	if err != nil {
		slog.Error("setting up logger", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Error("voice client error", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	sess, err := resolveSession(cfg.Session)
	if err != nil {
		return err
	}
	logger.Info("session resolved", "session_id", sess.ID(), "created", sess.Created())

	capture, closeCapture, err := createCaptureDevice(cfg.Audio, logger)
	if err != nil {
		return err
	}
	defer closeCapture()

	player, err := createPlayer(cfg, logger)
	if err != nil {
		return err
	}

	agentTimeout, err := cfg.AgentTimeout()
	if err != nil {
		return err
	}
	agentClient := agent.NewClient(cfg.Agent.BaseURL, agentTimeout)

	var renderer application.Renderer
	var tuiRenderer *ui.Renderer
	if cfg.UI.Mode == "tui" {
		tuiRenderer = ui.NewRenderer()
		renderer = tuiRenderer
	} else {
		renderer = ui.NewLogRenderer(logger)
	}

	controller := application.NewController(capture, agentClient, player, renderer, sess.ID(), logger)

	logger.Info("starting voice client",
		"agent", cfg.Agent.BaseURL,
		"capture", cfg.Audio.Capture,
		"playback", cfg.Playback.Output,
		"ui", cfg.UI.Mode,
	)

	runErr := make(chan error, 1)
	go func() { runErr <- controller.Run(ctx) }()

	if tuiRenderer != nil {
		if err := ui.Run(ctx, controller, tuiRenderer, controller.View()); err != nil {
			cancel()
			<-runErr
			return fmt.Errorf("running terminal ui: %w", err)
		}
		cancel()
	} else {
		server := control.NewServer(cfg.UI.ControlAddr, controller, logger)
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting control server: %w", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				logger.Warn("stopping control server", "error", err)
			}
		}()
	}

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func resolveSession(cfg config.SessionConfig) (*session.Session, error) {
	chain := session.Chain{session.Fixed(cfg.ID)}

	var link *url.URL
	if cfg.Link != "" {
		u, err := url.Parse(cfg.Link)
		if err != nil {
			return nil, fmt.Errorf("parsing session link: %w", err)
		}
		link = u
		chain = append(chain, &session.Query{URL: link})
	}
	if cfg.File != "" {
		chain = append(chain, &session.File{Path: cfg.File})
	}

	sess, err := session.Resolve(chain)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}
	if link != nil {
		fmt.Fprintln(os.Stderr, "share this conversation:", link.String())
	}
	return sess, nil
}

func createCaptureDevice(cfg config.AudioConfig, logger *slog.Logger) (application.CaptureDevice, func(), error) {
	switch cfg.Capture {
	case "file":
		return audio.NewFileDevice(cfg.FilePath, logger), func() {}, nil
	case "portaudio":
		mic := audio.NewMicrophoneDevice(cfg.SampleRate, logger)
		return mic, mic.Close, nil
	default:
		mic, err := audio.NewMalgoDevice(cfg.SampleRate, cfg.Channels, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating capture device: %w", err)
		}
		return mic, mic.Close, nil
	}
}

func createPlayer(cfg *config.Config, logger *slog.Logger) (application.Player, error) {
	switch cfg.Playback.Output {
	case "none":
		return audio.NewSilentPlayer(logger), nil
	case "speaker":
		timeout, err := cfg.PlaybackTimeout()
		if err != nil {
			return nil, err
		}
		return audio.NewSpeakerPlayer(timeout, logger), nil
	default:
		logger.Warn("unknown playback output, using speaker", "output", cfg.Playback.Output)
		timeout, err := cfg.PlaybackTimeout()
		if err != nil {
			return nil, err
		}
		return audio.NewSpeakerPlayer(timeout, logger), nil
	}
}

// setupLogger writes to log.file when set. The terminal UI owns stdout, so
// without a file its logs are dropped.
func setupLogger(cfg config.LogConfig, tui bool) (*slog.Logger, func(), error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "otel" {
		return slog.New(otelslog.NewHandler("voice-agent")), func() {}, nil
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	switch {
	case cfg.File != "":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	case tui:
		out = io.Discard
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closeFn, nil
}
