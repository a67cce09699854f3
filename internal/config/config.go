// Package config loads notetaker configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	defaultTranscribeModel = "whisper-1"
	defaultChatModel       = "gpt-4o-mini"
	defaultChunkInterval   = 10 * time.Second
	defaultWindow          = 60 * time.Second
	defaultPacing          = 5 * time.Second
	defaultCaptureFormat   = "pulse"
)

// Config holds daemon and client settings.
type Config struct {
	DataDir    string
	DBPath     string
	SocketPath string

	OpenAIKey       string
	TranscribeModel string
	ChatModel       string

	CaptureFormat string // ffmpeg input format for the capture device

	ChunkInterval time.Duration
	Window        time.Duration
	Pacing        time.Duration

	LogLevel string
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() Config {
	_ = godotenv.Load()

	dataDir := getEnv("NOTETAKER_DATA_DIR", defaultDataDir())

	return Config{
		DataDir:         dataDir,
		DBPath:          getEnv("NOTETAKER_DB", filepath.Join(dataDir, "notetaker.sqlite")),
		SocketPath:      getEnv("NOTETAKER_SOCKET", filepath.Join(dataDir, "notetaker.sock")),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		TranscribeModel: getEnv("NOTETAKER_TRANSCRIBE_MODEL", defaultTranscribeModel),
		ChatModel:       getEnv("NOTETAKER_CHAT_MODEL", defaultChatModel),
		CaptureFormat:   getEnv("NOTETAKER_CAPTURE_FORMAT", defaultCaptureFormat),
		ChunkInterval:   getDurationEnv("NOTETAKER_CHUNK_INTERVAL", defaultChunkInterval),
		Window:          getDurationEnv("NOTETAKER_WINDOW", defaultWindow),
		Pacing:          getDurationEnv("NOTETAKER_PACING", defaultPacing),
		LogLevel:        strings.ToLower(os.Getenv("NOTETAKER_LOG_LEVEL")),
	}
}

// DefaultSocketPath returns the socket path without loading the full config.
// Used by clients that only need to dial the daemon.
func DefaultSocketPath() string {
	if v := os.Getenv("NOTETAKER_SOCKET"); v != "" {
		return v
	}
	return filepath.Join(getEnv("NOTETAKER_DATA_DIR", defaultDataDir()), "notetaker.sock")
}

// DefaultDBPath returns the database path without loading the full config.
func DefaultDBPath() string {
	if v := os.Getenv("NOTETAKER_DB"); v != "" {
		return v
	}
	return filepath.Join(getEnv("NOTETAKER_DATA_DIR", defaultDataDir()), "notetaker.sqlite")
}

// NewLogger builds a production zap logger at the configured level.
func (c Config) NewLogger() (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()

	switch c.LogLevel {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn", "warning":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "notetaker")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "notetaker")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
