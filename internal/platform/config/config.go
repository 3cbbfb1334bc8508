package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the process configuration read from the environment.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	OBSPort          int
	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration

	CameraSource    string
	CameraInputKind string
	OverlayBaseURL  string
	SceneLayoutFile string
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv collects Settings from the environment, applying defaults.
func FromEnv() Settings {
	return Settings{
		Port:             GetEnv("PORT", "8080"),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		LogFormat:        GetEnv("LOG_FORMAT", "json"),
		OBSPort:          GetEnvInt("OBS_PORT", 4455),
		RequestTimeout:   GetEnvDuration("OBS_REQUEST_TIMEOUT", 5*time.Second),
		HandshakeTimeout: GetEnvDuration("OBS_HANDSHAKE_TIMEOUT", 10*time.Second),
		CameraSource:     GetEnv("OBS_CAMERA_SOURCE", "Main Camera"),
		CameraInputKind:  GetEnv("OBS_CAMERA_INPUT_KIND", "dshow_input"),
		OverlayBaseURL:   GetEnv("OVERLAY_BASE_URL", "http://localhost:3000/overlays"),
		SceneLayoutFile:  GetEnv("SCENE_LAYOUT_FILE", ""),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of the environment variable named
// by key. Values may be Go durations ("750ms", "5s") or bare integers, read as
// milliseconds. Unset, empty, invalid or non-positive values yield fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
