// Package config provides environment configuration and the triage rules.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mindlog-lab/mindlog/internal/publish"
)

// Config holds all configuration for the application.
type Config struct {
	// Storage
	DBPath string

	// Server settings
	Port               int
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	AllowedOrigins     []string

	// Rate limiting on /api
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Triage rules file; empty means built-in defaults
	RulesPath string

	// Seed for the assignment source; zero means seeded from the clock
	Seed uint64

	// Keep raw input text instead of the anonymised digest
	StoreRawInput bool

	// NATS fan-out; disabled when the URL is empty
	NATSURL     string
	NATSSubject string
	NATSToken   string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		DBPath: getEnv("MINDLOG_DB_PATH", "./mindlog.db"),

		Port:               getIntEnv("MINDLOG_PORT", 8080),
		ServerReadTimeout:  getDurationEnv("MINDLOG_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDurationEnv("MINDLOG_WRITE_TIMEOUT", 30*time.Second),
		AllowedOrigins:     getListEnv("MINDLOG_ALLOWED_ORIGINS", []string{"*"}),

		RateLimitRequests: getIntEnv("MINDLOG_RATE_LIMIT", 120),
		RateLimitWindow:   getDurationEnv("MINDLOG_RATE_WINDOW", time.Minute),

		LogLevel:  getEnv("MINDLOG_LOG_LEVEL", "info"),
		LogFormat: getEnv("MINDLOG_LOG_FORMAT", "json"),

		RulesPath: getEnv("MINDLOG_RULES_PATH", ""),

		Seed: getUint64Env("MINDLOG_SEED", 0),

		StoreRawInput: getBoolEnv("MINDLOG_STORE_RAW_INPUT", false),

		NATSURL:     getEnv("MINDLOG_NATS_URL", ""),
		NATSSubject: getEnv("MINDLOG_NATS_SUBJECT", publish.DefaultSubject),
		NATSToken:   getEnv("MINDLOG_NATS_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUint64Env(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseUint(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
