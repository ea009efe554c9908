package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Store     StoreConfig
	Extractor ExtractorConfig
	Worker    WorkerConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

// StoreConfig holds data-store configuration (Supabase-style REST interface).
type StoreConfig struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
}

// ExtractorConfig holds AI batch-extraction service configuration.
type ExtractorConfig struct {
	URL          string
	Timeout      time.Duration
	MaxRetries   int
	InitialDelay time.Duration
}

// WorkerConfig holds polling-loop configuration.
type WorkerConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	ShutdownGrace time.Duration
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Addr string // empty disables the /metrics listener
}

// LogConfig holds logging configuration.
type LogConfig struct {
	File  string // empty logs to stdout
	Level string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			BaseURL:    getEnv("SUPABASE_URL", ""),
			ServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Timeout:    getEnvAsDuration("STORE_TIMEOUT", 15*time.Second),
		},
		Extractor: ExtractorConfig{
			URL:          getEnv("EXTRACTOR_URL", "http://localhost:8000/extract"),
			Timeout:      getEnvAsDuration("EXTRACTOR_TIMEOUT", 120*time.Second),
			MaxRetries:   getEnvAsInt("MAX_RETRIES", 3),
			InitialDelay: getEnvAsDuration("INITIAL_BACKOFF", 1*time.Second),
		},
		Worker: WorkerConfig{
			BatchSize:     getEnvAsInt("BATCH_SIZE", 5),
			PollInterval:  getEnvAsDuration("POLL_INTERVAL", 60*time.Second),
			ShutdownGrace: getEnvAsDuration("SHUTDOWN_GRACE", 30*time.Second),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
		Log: LogConfig{
			File:  getEnv("LOG_FILE", ""),
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration. A missing store URL is the one
// hard startup failure: the worker must exit before the loop starts.
func (c *Config) Validate() error {
	var missing []string
	if c.Store.BaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if len(missing) > 0 {
		return NewAppError("CONFIG_ERROR",
			fmt.Sprintf("missing required environment variables: %s", strings.Join(missing, ", ")),
			ErrInvalidInput)
	}
	if c.Worker.BatchSize <= 0 {
		return NewAppError("CONFIG_ERROR", "BATCH_SIZE must be positive", ErrInvalidInput)
	}
	if c.Extractor.MaxRetries < 1 {
		return NewAppError("CONFIG_ERROR", "MAX_RETRIES must be at least 1", ErrInvalidInput)
	}
	return nil
}
