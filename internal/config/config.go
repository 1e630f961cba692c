// Package config provides environment configuration for the console daemon.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Upstream support backend
	UpstreamBaseURL string
	UpstreamToken   string
	StreamURL       string

	// Session operator identity
	OperatorID   string
	OperatorName string

	// NATS settings
	NATSURL   string
	NATSToken string

	// JWT settings
	JWTSecret string

	// Engine settings
	PollInterval        time.Duration
	DeleteTimeout       time.Duration
	FirstResponseBudget time.Duration
	ResolutionBudget    time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),

		// Upstream
		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "http://localhost:3000"),
		UpstreamToken:   getEnv("UPSTREAM_TOKEN", ""),
		StreamURL:       getEnv("STREAM_URL", "ws://localhost:3000/ws/admin"),

		// Operator
		OperatorID:   getEnv("OPERATOR_ID", ""),
		OperatorName: getEnv("OPERATOR_NAME", ""),

		// NATS
		NATSURL:   getEnv("NATS_URL", "nats://localhost:4222"),
		NATSToken: getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Engine
		PollInterval:        getDurationEnv("POLL_INTERVAL", 10*time.Second),
		DeleteTimeout:       getDurationEnv("DELETE_TIMEOUT", 15*time.Second),
		FirstResponseBudget: getDurationEnv("SLA_FIRST_RESPONSE_BUDGET", 5*time.Minute),
		ResolutionBudget:    getDurationEnv("SLA_RESOLUTION_BUDGET", time.Hour),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
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
