// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centralises all environment and runtime configuration.
type Config struct {
	Port        int
	DBPath      string
	LogLevel    string
	CORSOrigins []string

	KafkaBrokers []string
	KafkaTopic   string

	FanOutLimit int

	SchedulerEnabled  bool
	SchedulerInterval time.Duration

	Location *time.Location
}

// MemoryDB selects the pure in-memory store instead of SQLite.
const MemoryDB = ":mem:"

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}

	cfg := &Config{
		Port:              getEnvAsInt("PORT", 8080),
		DBPath:            getEnv("DB_PATH", "absence.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CORSOrigins:       getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		KafkaBrokers:      getEnvAsList("KAFKA_BROKERS", nil),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "absence-events"),
		FanOutLimit:       getEnvAsInt("FANOUT_LIMIT", 8),
		SchedulerEnabled:  getEnvAsBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: getEnvAsDuration("SCHEDULER_INTERVAL", 24*time.Hour),
		Location:          loc,
	}
	if cfg.FanOutLimit < 1 {
		return nil, fmt.Errorf("FANOUT_LIMIT must be positive, got %d", cfg.FanOutLimit)
	}
	return cfg, nil
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := getEnv(name, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := getEnv(name, "")
	if val, err := strconv.Atoi(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valStr := getEnv(name, "")
	if val, err := time.ParseDuration(valStr); err == nil && val > 0 {
		return val
	}
	return defaultVal
}

func getEnvAsList(name string, defaultVal []string) []string {
	valStr := strings.TrimSpace(getEnv(name, ""))
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
