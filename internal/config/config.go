package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted for STORE_BACKEND and QUEUE_BACKEND
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	MongoDB MongoDBConfig
	Store   StoreConfig
	Queue   QueueConfig
	LLM     LLMConfig
	Worker  WorkerConfig
	Server  ServerConfig
	Email   EmailConfig
}

// MongoDBConfig holds MongoDB connection details
type MongoDBConfig struct {
	URI             string
	Username        string
	Password        string
	Host            string
	Port            string
	Database        string
	AuthSource      string // Database to authenticate against (default: admin)
	UseTransactions bool   // Requires a replica set
}

// StoreConfig selects the state store implementation
type StoreConfig struct {
	Backend string
}

// QueueConfig holds work queue settings
type QueueConfig struct {
	Backend       string
	Collection    string
	LeaseDuration time.Duration
	PollInterval  time.Duration
	SweepSchedule string // cron spec for re-queueing expired leases
}

// LLMConfig holds the OpenAI-compatible generation endpoint configuration
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Mock        bool
}

// WorkerConfig holds task worker settings
type WorkerConfig struct {
	Concurrency int
	Embedded    bool // run workers inside the API server process
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// EmailConfig holds SendGrid email configuration
type EmailConfig struct {
	APIKey    string
	FromEmail string
}

// Enabled reports whether completion mails can be sent
func (e EmailConfig) Enabled() bool {
	return e.APIKey != "" && e.FromEmail != ""
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		MongoDB: MongoDBConfig{
			URI:             getEnv("MONGODB_URI", ""),
			Username:        getEnv("MONGODB_USERNAME", ""),
			Password:        getEnv("MONGODB_PASSWORD", ""),
			Host:            getEnv("MONGODB_HOST", "localhost"),
			Port:            getEnv("MONGODB_PORT", "27017"),
			Database:        getEnv("MONGODB_DATABASE", "decision_copilot"),
			AuthSource:      getEnv("MONGODB_AUTH_SOURCE", "admin"),
			UseTransactions: getEnvBool("MONGODB_USE_TRANSACTIONS", false),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", BackendMongo)),
		},
		Queue: QueueConfig{
			Backend:       strings.ToLower(getEnv("QUEUE_BACKEND", BackendMongo)),
			Collection:    getEnv("QUEUE_COLLECTION", "jobs"),
			LeaseDuration: time.Duration(getEnvInt("QUEUE_LEASE_SECONDS", 300)) * time.Second,
			PollInterval:  time.Duration(getEnvInt("QUEUE_POLL_INTERVAL_MS", 500)) * time.Millisecond,
			SweepSchedule: getEnv("QUEUE_SWEEP_SCHEDULE", "@every 30s"),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("DEEPSEEK_API_KEY", ""),
			BaseURL:     getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
			Model:       getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 0), // 0 means provider default
			Mock:        getEnvBool("LLM_MOCK", false),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 4),
			Embedded:    getEnvBool("EMBEDDED_WORKERS", false),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8090"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		Email: EmailConfig{
			APIKey:    getEnv("SENDGRID_API_KEY", ""),
			FromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		},
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ValidateConfig validates that required configuration values are present
func ValidateConfig(config *Config) error {
	for name, backend := range map[string]string{
		"STORE_BACKEND": config.Store.Backend,
		"QUEUE_BACKEND": config.Queue.Backend,
	} {
		if backend != BackendMongo && backend != BackendMemory {
			return fmt.Errorf("%s must be %q or %q, got %q", name, BackendMongo, BackendMemory, backend)
		}
	}

	// In-memory state is only visible inside one process, so the workers have to live there too
	if (config.Store.Backend == BackendMemory || config.Queue.Backend == BackendMemory) && !config.Worker.Embedded {
		return fmt.Errorf("EMBEDDED_WORKERS must be enabled when a memory backend is used")
	}
	if config.Queue.Backend == BackendMongo && config.Store.Backend == BackendMemory {
		return fmt.Errorf("QUEUE_BACKEND=mongo requires STORE_BACKEND=mongo")
	}

	if config.usesMongo() && config.MongoDB.URI == "" && config.MongoDB.Host == "" {
		return fmt.Errorf("MONGODB_URI or MONGODB_HOST is required")
	}

	if !config.LLM.Mock && config.LLM.APIKey == "" {
		return fmt.Errorf("DEEPSEEK_API_KEY is required (or set LLM_MOCK=true)")
	}

	if config.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if config.Queue.LeaseDuration <= 0 {
		return fmt.Errorf("QUEUE_LEASE_SECONDS must be positive")
	}
	return nil
}

func (c *Config) usesMongo() bool {
	return c.Store.Backend == BackendMongo || c.Queue.Backend == BackendMongo
}

// Helper functions for environment variable access
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
