package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Recognition provider names accepted in RECOGNIZER.
const (
	RecognizerAudd = "audd"
	RecognizerACR  = "acrcloud"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0"` // 0: identify runs and SSE streams outlive any fixed limit
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	SegmentLength      time.Duration `env:"SEGMENT_LENGTH" envDefault:"2m"`
	MaxSegments        int           `env:"MAX_SEGMENTS" envDefault:"60"`
	RecognitionTimeout time.Duration `env:"RECOGNITION_TIMEOUT" envDefault:"60s"`

	Recognizer      string `env:"RECOGNIZER" envDefault:"audd"`
	AuddAPIToken    string `env:"AUDD_API_TOKEN"`
	AuddAPIURL      string `env:"AUDD_API_URL"`
	ACRHost         string `env:"ACR_HOST"`
	ACRAccessKey    string `env:"ACR_ACCESS_KEY"`
	ACRAccessSecret string `env:"ACR_ACCESS_SECRET"`

	WorkDir      string        `env:"WORK_DIR" envDefault:"./work"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10m"`
	SplitTimeout time.Duration `env:"SPLIT_TIMEOUT" envDefault:"5m"`
	YTDLPPath    string        `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	FFmpegPath   string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath  string        `env:"FFPROBE_PATH" envDefault:"ffprobe"`

	WatchDir  string   `env:"WATCH_DIR"`
	WatchExts []string `env:"WATCH_EXTS" envSeparator:"," envDefault:".mp3,.m4a,.wav,.flac,.ogg,.opus"`

	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"1"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"5"`
	AuthToken      string   `env:"AUTH_TOKEN"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	WorkDir  string
	WatchDir string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.WorkDir != "" {
		cfg.WorkDir = overrides.WorkDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SegmentLength <= 0 {
		return fmt.Errorf("SEGMENT_LENGTH must be positive, got %v", c.SegmentLength)
	}
	if c.MaxSegments < 0 {
		return fmt.Errorf("MAX_SEGMENTS must not be negative, got %d", c.MaxSegments)
	}
	if c.RecognitionTimeout <= 0 {
		return fmt.Errorf("RECOGNITION_TIMEOUT must be positive, got %v", c.RecognitionTimeout)
	}
	switch c.Recognizer {
	case RecognizerAudd, RecognizerACR:
	default:
		return fmt.Errorf("RECOGNIZER must be %q or %q, got %q", RecognizerAudd, RecognizerACR, c.Recognizer)
	}
	return nil
}

// RecognizerConfigured reports whether the selected recognition provider
// has its credentials set. Identify requests are rejected until it does.
func (c *Config) RecognizerConfigured() bool {
	switch c.Recognizer {
	case RecognizerACR:
		return c.ACRHost != "" && c.ACRAccessKey != "" && c.ACRAccessSecret != ""
	default:
		return c.AuddAPIToken != ""
	}
}
