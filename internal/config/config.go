package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime setting. All values come from environment
// variables (a local .env file is honored when present) with defaults that
// work for local development on SQLite.
type Config struct {
	// Server
	ListenAddr     string
	FrontendOrigin string
	LogMode        string

	// Storage
	StoreBackend   string // "gorm" or "firestore"
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string
	UploadDir      string
	MaxUploadMB    int64

	// Generation
	VertexProjectID string
	VertexRegion    string
	ModelName       string
	OutputMode      string // "markdown" or "structured"
	Temperature     float32
	MaxOutputTokens int
	ContextWindow   int
	RenderDPI       float64
	PageDelay       time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration

	// GCP deployment (ingest function / export mirror)
	FirestoreCollection string
	ExportBucket        string
}

// Load reads configuration from the environment. It never fails on a missing
// .env file; values required only by specific backends are validated where
// those backends are constructed.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:     GetEnv("LISTEN_ADDR", ":8080"),
		FrontendOrigin: GetEnv("FRONTEND_ORIGIN", "http://localhost:3000"),
		LogMode:        GetEnv("LOG_MODE", "dev"),

		StoreBackend:   GetEnv("STORE_BACKEND", "gorm"),
		DatabaseDriver: GetEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    GetEnv("DATABASE_DSN", "pagelens.db"),
		UploadDir:      GetEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB:    getEnvInt64("MAX_UPLOAD_MB", 50),

		VertexProjectID: GetEnv("VERTEX_PROJECT_ID", ""),
		VertexRegion:    GetEnv("VERTEX_REGION", "us-central1"),
		ModelName:       GetEnv("MODEL_NAME", "gemini-1.5-pro"),
		OutputMode:      GetEnv("OUTPUT_MODE", "markdown"),
		Temperature:     getEnvFloat32("TEMPERATURE", 0.7),
		MaxOutputTokens: getEnvInt("MAX_OUTPUT_TOKENS", 2000),
		ContextWindow:   getEnvInt("CONTEXT_WINDOW", 3),
		RenderDPI:       getEnvFloat64("RENDER_DPI", 200),
		PageDelay:       getEnvDuration("PAGE_DELAY", time.Second),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		RetryBackoff:    getEnvDuration("RETRY_BACKOFF", time.Second),

		FirestoreCollection: GetEnv("FIRESTORE_COLLECTION", "documents"),
		ExportBucket:        GetEnv("EXPORT_BUCKET", ""),
	}

	switch cfg.StoreBackend {
	case "gorm", "firestore":
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}
	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	switch cfg.OutputMode {
	case "markdown", "structured":
	default:
		return nil, fmt.Errorf("unsupported OUTPUT_MODE %q", cfg.OutputMode)
	}

	return cfg, nil
}

// GetEnv reads an environment variable or returns the fallback.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat32(key string, fallback float32) float32 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
