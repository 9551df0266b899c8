package config

import (
	"os"
	"strconv"

	"gomatch/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Matching MatchingConfig
}

// DatabaseConfig holds database connection settings. An empty URL means the
// server runs with the in-memory run repository.
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// MatchingConfig holds the default matching policy values. Each component
// still receives these explicitly; nothing reads the environment after
// startup.
type MatchingConfig struct {
	Epsilon    float64
	MinPairs   int
	ExactLimit int
	Workers    int
	RiskSet    bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Matching: MatchingConfig{
			Epsilon:    getEnvFloatOrDefault("RIDGE_EPSILON", 1e-6),
			MinPairs:   getEnvIntOrDefault("MIN_PAIRS", 10),
			ExactLimit: getEnvIntOrDefault("EXACT_TEST_LIMIT", 25),
			Workers:    getEnvIntOrDefault("DISTANCE_WORKERS", 0),
			RiskSet:    getEnvBoolOrDefault("RISK_SET_MATCHING", false),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Matching.Epsilon <= 0 {
		return errors.ConfigInvalid("RIDGE_EPSILON must be positive")
	}
	if config.Matching.MinPairs < 1 {
		return errors.ConfigInvalid("MIN_PAIRS must be at least 1")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT cannot be empty")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
