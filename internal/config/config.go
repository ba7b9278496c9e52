// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultSupportedExtensions lists the audio formats shown by the browser
// and picked up by imports when SUPPORTED_EXTENSIONS is unset.
var DefaultSupportedExtensions = []string{".mp3", ".flac", ".ogg", ".m4a", ".wav", ".opus"}

// Config holds all mixtape configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Sandbox store ("memory", "local" or "s3")
	SandboxBackend string
	SandboxPath    string

	// S3 sandbox
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// Record store ("badger" or "postgres")
	RecordStore string
	BadgerPath  string
	DatabaseURL string

	// Media
	SupportedExtensions []string

	// External directories granted without prompting.
	GrantedPaths []string

	// Auth (optional; empty disables the API middleware)
	JWTSecret string

	// Size of the import worker queue.
	WorkerQueue int
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:         envOr("METRICS_ADDR", ":9090"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "json"),
		SandboxBackend:      envOr("SANDBOX_BACKEND", "local"),
		SandboxPath:         envOr("SANDBOX_PATH", defaultDataPath("sandbox")),
		S3Endpoint:          envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:            envOr("S3_BUCKET", "mixtape"),
		S3AccessKey:         envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:         envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:            envOr("S3_REGION", "us-east-1"),
		RecordStore:         envOr("RECORD_STORE", "badger"),
		BadgerPath:          envOr("BADGER_PATH", defaultDataPath("records")),
		DatabaseURL:         envOr("DATABASE_URL", ""),
		SupportedExtensions: envList("SUPPORTED_EXTENSIONS", DefaultSupportedExtensions),
		GrantedPaths:        envList("GRANTED_PATHS", nil),
		JWTSecret:           envOr("JWT_SECRET", ""),
		WorkerQueue:         envInt("WORKER_QUEUE", 16),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option combinations that Load cannot default away.
func (c *Config) Validate() error {
	switch c.SandboxBackend {
	case "memory", "local", "s3":
	default:
		return fmt.Errorf("SANDBOX_BACKEND must be memory, local or s3, got %q", c.SandboxBackend)
	}
	switch c.RecordStore {
	case "badger":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when RECORD_STORE=postgres")
		}
	default:
		return fmt.Errorf("RECORD_STORE must be badger or postgres, got %q", c.RecordStore)
	}
	for _, ext := range c.SupportedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("SUPPORTED_EXTENSIONS: %q must start with '.'", ext)
		}
	}
	if c.WorkerQueue <= 0 {
		return fmt.Errorf("WORKER_QUEUE must be positive")
	}
	return nil
}

func defaultDataPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return dir + string(os.PathSeparator) + "mixtape" + string(os.PathSeparator) + name
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
