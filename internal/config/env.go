package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// GateConfig controls rasterization and metric extraction.
type GateConfig struct {
	TempRoot        string // parent of per-request workdirs; "" = os.TempDir()
	ParallelMetrics bool
	MaxConcurrent   int           // simultaneous rasterizations in this process
	StaleWorkdirAge time.Duration // startup sweep threshold for orphaned workdirs
	RequestTimeout  time.Duration
}

// ServerConfig defines the HTTP surface.
type ServerConfig struct {
	Port           string
	UploadDir      string
	MaxUploadBytes int64
	ResultTTL      time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
	Workers      int
}

// StorageConfig is used for s3:// inputs and the status check.
type StorageConfig struct {
	Bucket string
	Region string
}

// OCRConfig configures the Tesseract collaborator.
type OCRConfig struct {
	Language    string
	JPEGQuality int
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Gate    GateConfig
	Server  ServerConfig
	Queue   QueueConfig
	Storage StorageConfig
	OCR     OCRConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/docgate.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_docgate",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Gate = GateConfig{
		TempRoot:        getEnv("GATE_TEMP_ROOT", ""),
		ParallelMetrics: parseBool(getEnv("GATE_PARALLEL_METRICS", "true")),
		MaxConcurrent:   parseInt(getEnv("GATE_MAX_CONCURRENT", "4"), 4),
		StaleWorkdirAge: parseDuration(getEnv("GATE_STALE_WORKDIR_AGE", "1h"), time.Hour),
		RequestTimeout:  parseDuration(getEnv("GATE_REQUEST_TIMEOUT", "120s"), 120*time.Second),
	}
	if cfg.Gate.MaxConcurrent <= 0 {
		cfg.Gate.MaxConcurrent = 1
	}

	cfg.Server = ServerConfig{
		Port:           getEnv("PORT", "8080"),
		UploadDir:      getEnv("UPLOAD_DIR", filepath.Join(os.TempDir(), "docgate-uploads")),
		MaxUploadBytes: int64(parseInt(getEnv("MAX_UPLOAD_MB", "50"), 50)) << 20,
		ResultTTL:      parseDuration(getEnv("RESULT_TTL", "24h"), 24*time.Hour),
	}

	// Queue defaults
	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:       getEnv("QUEUE_STREAM", "jobs:docgate:classify"),
		Group:        getEnv("QUEUE_GROUP", "workers:docgate"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
		Workers:      parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
	}

	cfg.Storage = StorageConfig{
		Bucket: getEnv("S3_BUCKET", ""),
		Region: getEnv("AWS_REGION", "eu-central-1"),
	}

	cfg.OCR = OCRConfig{
		Language:    getEnv("OCR_LANGUAGE", "eng"),
		JPEGQuality: parseInt(getEnv("OCR_JPEG_QUALITY", "90"), 90),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
