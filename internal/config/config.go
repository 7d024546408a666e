package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config holds the base configuration
type Config struct {
	Server ServerConfig
	Worker WorkerConfig
	Search SearchConfig
	Redis  RedisConfig
	API    APIConfig
	App    AppConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type WorkerConfig struct {
	// MaxWorkers of 0 lets the pool grow with the directory tree.
	MaxWorkers  int
	IdleTimeout time.Duration
}

type SearchConfig struct {
	Root           string
	Keyword        string
	FollowSymlinks bool
	MaxOpenFiles   int64
	MaxLineBytes   int
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	ResultTTL time.Duration
}

type APIConfig struct {
	RateLimit float64 // searches per second, 0 disables limiting
	RateBurst int
	// AllowedRoot confines API searches to one tree. Empty falls back to
	// SEARCH_ROOT; both empty allows any directory.
	AllowedRoot string
}

type AppConfig struct {
	LogLevel string
	LogFile  string
}

// Load loads configuration from environment variables with defaults value
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Worker: WorkerConfig{
			MaxWorkers:  getEnvInt("WORKER_MAX", 0),
			IdleTimeout: getEnvDuration("WORKER_IDLE_TIMEOUT", 60*time.Second),
		},
		Search: SearchConfig{
			Root:           getEnv("SEARCH_ROOT", ""),
			Keyword:        getEnv("SEARCH_KEYWORD", ""),
			FollowSymlinks: getEnvBool("SEARCH_FOLLOW_SYMLINKS", false),
			MaxOpenFiles:   int64(getEnvInt("SEARCH_MAX_OPEN_FILES", 0)),
			MaxLineBytes:   getEnvInt("SEARCH_MAX_LINE_BYTES", 1<<20),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			ResultTTL: getEnvDuration("REDIS_RESULT_TTL", 30*time.Minute),
		},
		API: APIConfig{
			RateLimit:   getEnvFloat("API_RATE_LIMIT", 0),
			RateBurst:   getEnvInt("API_RATE_BURST", 1),
			AllowedRoot: getEnv("API_ALLOWED_ROOT", ""),
		},
		App: AppConfig{
			LogLevel: getEnv("LOG_LEVEL", "info"),
			LogFile:  getEnv("LOG_FILE", ""),
		},
	}
}

// Helper functions to get environment variables with defaults
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
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
