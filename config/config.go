package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Stream   StreamConfig
	ML       MLConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// StreamConfig holds the real-time analysis core settings.
type StreamConfig struct {
	BufferSize           int           // STREAM_BUFFER_SIZE: ring capacity per stream
	MaxConcurrentStreams int           // MAX_CONCURRENT_STREAMS: admission ceiling
	FrameTimeout         time.Duration // FRAME_TIMEOUT_MS: inactivity before forced stop
	StageTimeout         time.Duration // STAGE_TIMEOUT_MS: per stage invocation
	InboxSize            int           // INBOX_SIZE: bounded per-stream inbox
	MaxOcclusionFrames   int           // BALL_MAX_OCCLUSION_FRAMES
}

// MLConfig holds inference server settings.
type MLConfig struct {
	ServerURL     string        // empty = synthetic in-process inferencer
	MaxConcurrent int           // ML_MAX_CONCURRENT: global inference cap
	Timeout       time.Duration // HTTP client timeout per inference call
}

// DatabaseConfig holds PostgreSQL connection settings. Leave DATABASE_URL
// and DB_HOST unset to run without session audit persistence.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds AWS credentials and the clip bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ClipsBucket          string
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string. If DatabaseConfig.URL is
// set (e.g. DATABASE_URL env), it is used as-is; otherwise built from
// components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Stream: StreamConfig{
			BufferSize:           getEnvInt("STREAM_BUFFER_SIZE", 300),
			MaxConcurrentStreams: getEnvInt("MAX_CONCURRENT_STREAMS", 10),
			FrameTimeout:         time.Duration(getEnvInt("FRAME_TIMEOUT_MS", 5000)) * time.Millisecond,
			StageTimeout:         time.Duration(getEnvInt("STAGE_TIMEOUT_MS", 200)) * time.Millisecond,
			InboxSize:            getEnvInt("INBOX_SIZE", 8),
			MaxOcclusionFrames:   getEnvInt("BALL_MAX_OCCLUSION_FRAMES", 15),
		},
		ML: MLConfig{
			ServerURL:     getEnv("ML_SERVER_URL", ""),
			MaxConcurrent: getEnvInt("ML_MAX_CONCURRENT", 4),
			Timeout:       time.Duration(getEnvInt("ML_TIMEOUT_MS", 2000)) * time.Millisecond,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "pitchsight"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ClipsBucket:          getEnv("AWS_S3_CLIPS_BUCKET", "pitchsight-clips"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}
	if cfg.Stream.MaxConcurrentStreams <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENT_STREAMS must be positive")
	}
	if cfg.Stream.BufferSize <= 0 {
		return nil, fmt.Errorf("STREAM_BUFFER_SIZE must be positive")
	}
	return cfg, nil
}

// HasDatabase reports whether a Postgres target is configured.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != "" || c.Database.Host != ""
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
