package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix namespaces every environment variable, e.g. VOXCANVAS_BACKEND_URL.
const Prefix = "VOXCANVAS"

const (
	defaultChunkSize = 4096
	minChunkSize     = 256
)

// Config stores runtime configuration for the desktop client.
type Config struct {
	// Backend
	BackendURL     string        `envconfig:"BACKEND_URL" default:"http://localhost:8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// Microphone capture
	FFMPEGCommand    string `envconfig:"FFMPEG_COMMAND" default:"ffmpeg"`
	AudioInputFormat string `envconfig:"AUDIO_INPUT_FORMAT" default:"pulse"`
	AudioInputDevice string `envconfig:"AUDIO_INPUT_DEVICE" default:"default"`
	SampleRate       int    `envconfig:"SAMPLE_RATE" default:"48000"`
	Channels         int    `envconfig:"CHANNELS" default:"1"`
	AudioContainer   string `envconfig:"AUDIO_CONTAINER" default:"webm"` // webm or wav
	AudioChunkSize   int    `envconfig:"AUDIO_CHUNK_SIZE" default:"4096"`

	// Transcript rewriting; empty falls back to ~/.config/voxcanvas/rewrite.yaml
	RewriteRulesFile string `envconfig:"REWRITE_RULES_FILE"`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:"127.0.0.1:9464"`
}

// Load reads a .env file when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv resolves configuration from environment variables only.
func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.BackendURL = strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	cfg.AudioContainer = strings.ToLower(strings.TrimSpace(cfg.AudioContainer))
	if cfg.AudioChunkSize < minChunkSize {
		cfg.AudioChunkSize = defaultChunkSize
	}
	if strings.TrimSpace(cfg.RewriteRulesFile) == "" {
		cfg.RewriteRulesFile = defaultRulesPath()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	parsed, err := url.Parse(c.BackendURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s_BACKEND_URL must be an absolute http(s) URL, got %q", Prefix, c.BackendURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s_REQUEST_TIMEOUT must be positive", Prefix)
	}
	switch c.AudioContainer {
	case "webm", "wav":
	default:
		return fmt.Errorf("%s_AUDIO_CONTAINER must be webm or wav, got %q", Prefix, c.AudioContainer)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%s_SAMPLE_RATE must be positive", Prefix)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%s_CHANNELS must be positive", Prefix)
	}
	if c.MetricsEnabled && strings.TrimSpace(c.MetricsAddr) == "" {
		return errors.New("metrics enabled without a listen address")
	}
	return nil
}

func defaultRulesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voxcanvas", "rewrite.yaml")
}
