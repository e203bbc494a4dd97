package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Audio    AudioConfig    `yaml:"audio"`
	Playback PlaybackConfig `yaml:"playback"`
	Session  SessionConfig  `yaml:"session"`
	UI       UIConfig       `yaml:"ui"`
	Log      LogConfig      `yaml:"log"`
}

type AgentConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type AudioConfig struct {
	Capture    string `yaml:"capture"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	FilePath   string `yaml:"file_path"`
}

type PlaybackConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
}

type SessionConfig struct {
	ID   string `yaml:"id"`
	File string `yaml:"file"`
	// Link is a shared page URL; its session_id query parameter is reused.
	Link string `yaml:"link"`
}

type UIConfig struct {
	Mode        string `yaml:"mode"`
	ControlAddr string `yaml:"control_addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load reads a .env file if one exists, then the YAML config at path with
// ${VAR} references expanded. A missing config file yields the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Agent.BaseURL == "" {
		c.Agent.BaseURL = "http://localhost:8000"
	}
	if c.Agent.Timeout == "" {
		c.Agent.Timeout = "60s"
	}
	if c.Audio.Capture == "" {
		c.Audio.Capture = "malgo"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Playback.Output == "" {
		c.Playback.Output = "speaker"
	}
	if c.Playback.Timeout == "" {
		c.Playback.Timeout = "30s"
	}
	if c.Session.File == "" {
		c.Session.File = ".voice-session"
	}
	if c.UI.Mode == "" {
		c.UI.Mode = "tui"
	}
	if c.UI.ControlAddr == "" {
		c.UI.ControlAddr = "127.0.0.1:8090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if _, err := c.AgentTimeout(); err != nil {
		return err
	}
	if _, err := c.PlaybackTimeout(); err != nil {
		return err
	}

	switch c.Audio.Capture {
	case "malgo", "portaudio":
	case "file":
		if c.Audio.FilePath == "" {
			return errors.New("audio.file_path is required for file capture")
		}
	default:
		return fmt.Errorf("unknown audio.capture %q", c.Audio.Capture)
	}

	switch c.UI.Mode {
	case "tui", "headless":
	default:
		return fmt.Errorf("unknown ui.mode %q", c.UI.Mode)
	}

	return nil
}

func (c *Config) AgentTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Agent.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parsing agent.timeout: %w", err)
	}
	return d, nil
}

func (c *Config) PlaybackTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Playback.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parsing playback.timeout: %w", err)
	}
	return d, nil
}
