package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Separator backend selection. This is a deployment-time choice: one backend
// is wired at startup and handles every job.
const (
	SeparatorRemote = "remote"
	SeparatorLocal  = "local"
)

type Config struct {
	Port int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	OriginalBucket  string
	SeparatedBucket string

	MaxFileSizeMB int
	MaxQueueSize  int

	SeparatorMode     string
	AnalysisServerURL string
	SeparateTimeout   time.Duration
	SeparateCommand   string
	PitchCommand      string

	PresignTTL time.Duration
	// JobRetention is how long terminal jobs stay readable before eviction.
	// Zero keeps them for the life of the process.
	JobRetention time.Duration
}

func Load() (*Config, error) {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "5000"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	maxFileSizeMB, err := strconv.Atoi(getEnv("MAX_FILE_SIZE_MB", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_FILE_SIZE_MB: %w", err)
	}

	maxQueueSize, err := strconv.Atoi(getEnv("MAX_QUEUE_SIZE", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_QUEUE_SIZE: %w", err)
	}

	separateTimeout, err := getDuration("SEPARATE_TIMEOUT", "540s")
	if err != nil {
		return nil, err
	}

	presignTTL, err := getDuration("PRESIGN_TTL", "24h")
	if err != nil {
		return nil, err
	}

	jobRetention, err := getDuration("JOB_RETENTION", "24h")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:              port,
		MinioEndpoint:     getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:    getEnv("MINIO_ROOT_USER", "minioadmin"),
		MinioSecretKey:    getEnv("MINIO_ROOT_PASSWORD", "minioadmin"),
		MinioUseSSL:       getEnv("MINIO_USE_SSL", "false") == "true",
		OriginalBucket:    getEnv("ORIGINAL_BUCKET", "original-tracks"),
		SeparatedBucket:   getEnv("SEPARATED_BUCKET", "separated-tracks"),
		MaxFileSizeMB:     maxFileSizeMB,
		MaxQueueSize:      maxQueueSize,
		SeparatorMode:     getEnv("SEPARATOR_MODE", SeparatorRemote),
		AnalysisServerURL: os.Getenv("ANALYSIS_SERVER_URL"),
		SeparateTimeout:   separateTimeout,
		SeparateCommand:   getEnv("SEPARATE_COMMAND", "demucs"),
		PitchCommand:      getEnv("PITCH_COMMAND", "aubionotes"),
		PresignTTL:        presignTTL,
		JobRetention:      jobRetention,
	}

	switch cfg.SeparatorMode {
	case SeparatorRemote:
		if cfg.AnalysisServerURL == "" {
			return nil, fmt.Errorf("ANALYSIS_SERVER_URL is required when SEPARATOR_MODE=remote")
		}
	case SeparatorLocal:
	default:
		return nil, fmt.Errorf("invalid SEPARATOR_MODE %q (want %q or %q)",
			cfg.SeparatorMode, SeparatorRemote, SeparatorLocal)
	}

	if cfg.MaxQueueSize <= 0 {
		return nil, fmt.Errorf("MAX_QUEUE_SIZE must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
