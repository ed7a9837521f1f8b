package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Classifier artifacts
	AlphabetModelPath string
	WordModelPath     string
	WordLabelsPath    string

	// Call sessions
	ACSConnectionString string
	RoomValidity        time.Duration

	// Storage
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// HTTP
	CORSAllowedOrigins []string
	RelayCapacity      int
	MaxBodyBytes       int64

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// Every integration is optional, so only malformed values are errors.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8000"),
		Env:                 getEnv("ENV", "development"),
		AlphabetModelPath:   getEnv("ALPHABET_MODEL_PATH", "models/alphabet.json"),
		WordModelPath:       getEnv("WORD_MODEL_PATH", "models/words.json"),
		WordLabelsPath:      getEnv("WORD_LABELS_PATH", "models/labels.txt"),
		ACSConnectionString: os.Getenv("AZURE_COMMUNICATION_CONNECTION_STRING"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SQLitePath:          os.Getenv("SQLITE_PATH"),
		RedisURL:            os.Getenv("REDIS_URL"),
		CORSAllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
		RateLimitWhitelist:  splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		AutoBlockEnabled:    getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	var err error
	if cfg.RoomValidity, err = time.ParseDuration(getEnv("ROOM_VALIDITY", "24h")); err != nil || cfg.RoomValidity <= 0 {
		return nil, fmt.Errorf("ROOM_VALIDITY must be a positive duration, got %q", os.Getenv("ROOM_VALIDITY"))
	}
	if cfg.RelayCapacity, err = strconv.Atoi(getEnv("RELAY_CAPACITY", "100")); err != nil || cfg.RelayCapacity <= 0 {
		return nil, fmt.Errorf("RELAY_CAPACITY must be a positive integer, got %q", os.Getenv("RELAY_CAPACITY"))
	}
	if cfg.MaxBodyBytes, err = strconv.ParseInt(getEnv("MAX_BODY_BYTES", "65536"), 10, 64); err != nil || cfg.MaxBodyBytes <= 0 {
		return nil, fmt.Errorf("MAX_BODY_BYTES must be a positive integer, got %q", os.Getenv("MAX_BODY_BYTES"))
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping blank entries.
func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
