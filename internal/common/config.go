package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/acctax/taxflow/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	DocIntel DocIntelConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
	HealthTimeout   time.Duration
}

// ServerConfig holds HTTP and trigger-receiver configuration
type ServerConfig struct {
	HTTPAddr   string
	EventsAddr string
}

// StorageConfig holds blob storage account configuration
type StorageConfig struct {
	AccountName string
	AccountKey  string
	Container   string
	// SASClockSkew is how far in the past issued access URLs become valid.
	SASClockSkew time.Duration
	// SASValidity is how long issued access URLs stay valid; it must cover
	// the extraction service's worst-case processing latency.
	SASValidity time.Duration
}

// DocIntelConfig holds document-extraction service configuration
type DocIntelConfig struct {
	Endpoint string
	APIKey   string
	// Models maps a document type to its trained extraction model ID.
	// Types absent from the map are deferred to ready_for_ai.
	Models       map[constants.DocumentType]string
	PollInterval time.Duration
	Timeout      time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			HealthTimeout:   getEnvAsDuration("DB_HEALTH_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
			EventsAddr: getEnv("EVENTS_ADDR", ":8081"),
		},
		Storage: StorageConfig{
			AccountName:  getEnv("STORAGE_ACCOUNT_NAME", ""),
			AccountKey:   getEnv("STORAGE_ACCOUNT_KEY", ""),
			Container:    getEnv("STORAGE_CONTAINER", constants.EmailAttachmentsContainer),
			SASClockSkew: getEnvAsDuration("SAS_CLOCK_SKEW", 5*time.Minute),
			SASValidity:  getEnvAsDuration("SAS_VALIDITY", time.Hour),
		},
		DocIntel: DocIntelConfig{
			Endpoint:     getEnv("DOCINTEL_ENDPOINT", ""),
			APIKey:       getEnv("DOCINTEL_KEY", ""),
			Models:       parseModelMap(getEnv("DOCINTEL_MODELS", "T4=acctax-t4-model")),
			PollInterval: getEnvAsDuration("DOCINTEL_POLL_INTERVAL", 2*time.Second),
			Timeout:      getEnvAsDuration("DOCINTEL_TIMEOUT", 3*time.Minute),
		},
	}
}

// parseModelMap parses "T4=model-a,T5=model-b" into a type->model map.
func parseModelMap(raw string) map[constants.DocumentType]string {
	models := make(map[constants.DocumentType]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		models[constants.DocumentType(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return models
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Storage.AccountName == "" || c.Storage.AccountKey == "" {
		return NewAppError("CONFIG_ERROR", "STORAGE_ACCOUNT_NAME and STORAGE_ACCOUNT_KEY are required", ErrInvalidInput)
	}
	if c.DocIntel.Endpoint == "" || c.DocIntel.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "DOCINTEL_ENDPOINT and DOCINTEL_KEY are required", ErrInvalidInput)
	}
	return nil
}
