package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string
	RedisURL   string

	// Upstream assessment platform (the system of record).
	UpstreamBaseURL string
	UpstreamAPIKey  string
	UpstreamTimeout time.Duration

	// Minimum-time gates for voluntary submits. Deliberately configuration,
	// not constants: deployments tune them per test programme.
	MinSectionSeconds int
	MinTestSeconds    int

	// TestTimeWarning is how far before test-clock expiry the warning event
	// is pushed to the candidate UI.
	TestTimeWarning time.Duration

	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		GinMode:           getEnv("GIN_MODE", "debug"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "pretty"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		UpstreamBaseURL:   getEnv("UPSTREAM_BASE_URL", "http://localhost:9090"),
		UpstreamAPIKey:    getEnv("UPSTREAM_API_KEY", ""),
		UpstreamTimeout:   time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 10)) * time.Second,
		MinSectionSeconds: getEnvInt("MIN_SECTION_SECONDS", 60),
		MinTestSeconds:    getEnvInt("MIN_TEST_SECONDS", 300),
		TestTimeWarning:   time.Duration(getEnvInt("TEST_TIME_WARNING_SECONDS", 300)) * time.Second,
		AllowedOrigins:    parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
