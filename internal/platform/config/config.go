package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Server is the configuration of the packaging service.
type Server struct {
	Port       string
	WindowSize int
	LogLevel   string
	LogFormat  string

	// Session defaults, overridable per rendition on init upload.
	OutputFormat    string
	TrackType       string
	SegmentDuration float64

	// MaxUploadBytes caps init and media upload bodies.
	MaxUploadBytes int
}

// FromEnv reads the server configuration from the environment. Call Load
// first to pick up a .env file.
func FromEnv() Server {
	return Server{
		Port:            GetEnv("PORT", "8080"),
		WindowSize:      GetEnvInt("SLIDING_WINDOW_SIZE", 6),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		LogFormat:       GetEnv("LOG_FORMAT", "json"),
		OutputFormat:    GetEnv("OUTPUT_FORMAT", "fmp4"),
		TrackType:       GetEnv("TRACK_TYPE", "video"),
		SegmentDuration: GetEnvFloat("SEGMENT_DURATION", 5),
		MaxUploadBytes:  GetEnvInt("MAX_UPLOAD_BYTES", 64<<20),
	}
}

// Load reads .env files into the process environment. Variables already set
// are not overridden. With no paths, ".env" is used. A missing file is an
// error callers may ignore.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of key, or fallback if it is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of key, or fallback if it is unset,
// empty, or not an integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat returns the float value of key, or fallback if it is unset,
// empty, or not a number.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}
