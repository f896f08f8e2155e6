package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Render   RenderConfig
	LLM      LLMConfig
	Queue    QueueConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "pgx" or "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr      string
	UploadDir string
}

// RenderConfig holds PDF rendering configuration
type RenderConfig struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	DPI       int
	ImagesDir string
	MaxBytes  int64
	MaxPages  int // 0 = no limit
}

// LLMConfig holds model provider configuration
type LLMConfig struct {
	Provider    string // "openai" or "anthropic"
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// QueueConfig holds worker queue configuration
type QueueConfig struct {
	Workers      int
	Size         int
	JobTimeout   time.Duration
	StallTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "pgx"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:      getEnv("HTTP_ADDR", ":8080"),
			UploadDir: getEnv("UPLOAD_DIR", "./uploads"),
		},
		Render: RenderConfig{
			Pdftoppm:  getEnv("PDFTOPPM_BIN", "pdftoppm"),
			DPI:       getEnvAsInt("RENDER_DPI", 300),
			ImagesDir: getEnv("IMAGES_DIR", "./images"),
			MaxBytes:  getEnvAsInt64("MAX_UPLOAD_BYTES", 10<<20),
			MaxPages:  getEnvAsInt("RENDER_MAX_PAGES", 0),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "openai"),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.1),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:  getEnvAsInt("LLM_MAX_RETRIES", 3),
			BackoffBase: getEnvAsDuration("LLM_BACKOFF_BASE", 2*time.Second),
		},
		Queue: QueueConfig{
			Workers:      getEnvAsInt("WORKER_CONCURRENCY", 2),
			Size:         getEnvAsInt("QUEUE_SIZE", 256),
			JobTimeout:   getEnvAsDuration("JOB_TIMEOUT", 5*time.Minute),
			StallTimeout: getEnvAsDuration("STALL_TIMEOUT", 90*time.Second),
		},
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return WrapError(ErrInvalidInput, "DB_URL is required")
	}
	if c.LLM.APIKey == "" {
		return WrapError(ErrInvalidInput, "LLM_API_KEY is required")
	}
	if c.Server.Addr == "" {
		return WrapError(ErrInvalidInput, "HTTP_ADDR is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
