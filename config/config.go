package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"rapidcast/pkg/models"
)

// Capture source kinds
const (
	CaptureModeSynthetic = "synthetic"
	CaptureModeCommand   = "command"
)

// Config holds all application configuration
type Config struct {
	// HTTP Server
	HTTPAddr string `yaml:"http_addr"`

	// Stream Server
	StreamAddr       string        `yaml:"stream_addr"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`

	// Capture defaults used when a start request leaves fields unset
	Capture        models.CaptureConfig `yaml:"capture"`
	CaptureMode    string               `yaml:"capture_mode"`
	CaptureCommand string               `yaml:"capture_command"`

	// Encoder
	FFmpegPath  string        `yaml:"ffmpeg_path"`
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// Auth
	DefaultTokenExpiration time.Duration `yaml:"default_token_expiration"`
	MaxTokenExpiration     time.Duration `yaml:"max_token_expiration"`

	// Logging and notifications
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	DesktopNotify bool   `yaml:"desktop_notify"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPAddr:         ":8080",
		StreamAddr:       ":8554",
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		Capture: models.CaptureConfig{
			Width:               1280,
			Height:              720,
			DensityHint:         320,
			BitrateBps:          models.DefaultBitrateBps,
			FrameRateHz:         models.DefaultFrameRateHz,
			KeyframeIntervalSec: models.DefaultKeyframeIntervalSec,
		},
		CaptureMode:            CaptureModeSynthetic,
		FFmpegPath:             "ffmpeg",
		PollTimeout:            10 * time.Millisecond,
		DefaultTokenExpiration: 1 * time.Hour,
		MaxTokenExpiration:     24 * time.Hour,
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// Load builds the configuration: defaults, then the YAML file at path if
// path is not empty, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.StreamAddr = getEnv("STREAM_ADDR", c.StreamAddr)
	c.HandshakeTimeout = getDurationEnv("HANDSHAKE_TIMEOUT", c.HandshakeTimeout)
	c.WriteTimeout = getDurationEnv("WRITE_TIMEOUT", c.WriteTimeout)

	c.Capture.Width = getIntEnv("CAPTURE_WIDTH", c.Capture.Width)
	c.Capture.Height = getIntEnv("CAPTURE_HEIGHT", c.Capture.Height)
	c.Capture.DensityHint = getIntEnv("CAPTURE_DENSITY", c.Capture.DensityHint)
	c.Capture.BitrateBps = getIntEnv("CAPTURE_BITRATE", c.Capture.BitrateBps)
	c.Capture.FrameRateHz = getIntEnv("CAPTURE_FRAME_RATE", c.Capture.FrameRateHz)
	c.Capture.KeyframeIntervalSec = getIntEnv("CAPTURE_KEYFRAME_INTERVAL", c.Capture.KeyframeIntervalSec)
	c.CaptureMode = getEnv("CAPTURE_MODE", c.CaptureMode)
	c.CaptureCommand = getEnv("CAPTURE_COMMAND", c.CaptureCommand)

	c.FFmpegPath = getEnv("FFMPEG_PATH", c.FFmpegPath)
	c.PollTimeout = getDurationEnv("ENCODER_POLL_TIMEOUT", c.PollTimeout)

	c.DefaultTokenExpiration = getDurationEnv("DEFAULT_TOKEN_EXPIRATION", c.DefaultTokenExpiration)
	c.MaxTokenExpiration = getDurationEnv("MAX_TOKEN_EXPIRATION", c.MaxTokenExpiration)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.DesktopNotify = getBoolEnv("DESKTOP_NOTIFY", c.DesktopNotify)
}

// Validate checks settings that would only fail later, at session start.
func (c *Config) Validate() error {
	switch c.CaptureMode {
	case CaptureModeSynthetic:
	case CaptureModeCommand:
		if c.CaptureCommand == "" {
			return fmt.Errorf("capture_mode %q needs capture_command", c.CaptureMode)
		}
	default:
		return fmt.Errorf("unknown capture_mode %q", c.CaptureMode)
	}
	if c.MaxTokenExpiration < c.DefaultTokenExpiration {
		return fmt.Errorf("max_token_expiration %v is below default_token_expiration %v", c.MaxTokenExpiration, c.DefaultTokenExpiration)
	}
	return nil
}

// Helper functions to get environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
