package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents service configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	HTTPAddr string

	// Content API gateway.
	ContentAPIURL string
	UploadToken   string
	LocalMediaDir string

	// Variant definition table.
	FormatsFile string

	// Durable execution. Leave DatabaseURL empty to run without the
	// regeneration queue; hook processing works either way.
	DatabaseURL       string
	AppName           string
	QueueName         string
	WorkerConcurrency int

	// Per-entity generation fan-out.
	GenerateConcurrency int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// Load reads configuration from the environment, consulting .env files
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		ContentAPIURL:       os.Getenv("CONTENT_API_URL"),
		UploadToken:         os.Getenv("UPLOAD_TOKEN"),
		LocalMediaDir:       os.Getenv("LOCAL_MEDIA_DIR"),
		FormatsFile:         getEnv("FORMATS_FILE", "formats.yaml"),
		DatabaseURL:         os.Getenv("DBOS_SYSTEM_DATABASE_URL"),
		AppName:             getEnv("APP_NAME", "image-variant-pipeline"),
		QueueName:           getEnv("QUEUE_NAME", "regenerate-queue"),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
		GenerateConcurrency: getEnvInt("GENERATE_CONCURRENCY", 4),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.ContentAPIURL == "" {
		return nil, fmt.Errorf("CONTENT_API_URL is required")
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.GenerateConcurrency < 1 {
		return nil, fmt.Errorf("GENERATE_CONCURRENCY must be at least 1")
	}

	return cfg, nil
}

// QueueEnabled reports whether the durable regeneration queue can run.
func (c *Config) QueueEnabled() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
