package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the linkkeeper service
type Config struct {
	Port              int
	DatabasePath      string
	EnricherBaseURL   string
	EnricherAPIToken  string
	IdentityBaseURL   string
	RedisAddr         string // Redis address for queue backend and URL cache
	WorkerConcurrency int    // Number of concurrent workers for enrichment tasks
	SendExistingTags  bool   // Send the user's existing tag vocabulary to the enricher as classification context
	OTLPEndpoint      string // OTLP trace exporter endpoint (empty disables tracing export)
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Port:              getEnvAsInt("LINKKEEPER_PORT", 8080),
		DatabasePath:      getEnv("DATABASE_PATH", "./linkkeeper.db"),
		EnricherBaseURL:   getEnv("ENRICHER_BASE_URL", "http://localhost:8082"),
		EnricherAPIToken:  getEnv("ENRICHER_API_TOKEN", ""),
		IdentityBaseURL:   getEnv("IDENTITY_BASE_URL", "http://localhost:8081"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 10),
		SendExistingTags:  getEnvAsBool("SEND_EXISTING_TAGS", true),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("LINKKEEPER_PORT must be between 1 and 65535")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.EnricherBaseURL == "" {
		return fmt.Errorf("ENRICHER_BASE_URL is required")
	}
	if c.IdentityBaseURL == "" {
		return fmt.Errorf("IDENTITY_BASE_URL is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be greater than 0")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
