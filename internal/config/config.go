package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramToken     string
	GeminiAPIKey      string
	DatabaseURL       string
	HTTPPort          string
	LogLevel          string
	InitialCredits    int
	MaxHistoryTurns   int
	GenerationTimeout time.Duration
}

// Load reads configuration from the environment, optionally seeded from a
// .env file. Secrets are required; everything else has a default.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional, real deployments set env vars directly

	cfg := &Config{
		TelegramToken:     getEnv("TG_TOKEN", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:       getEnv("DATABASE_URL", "ellie.db"),
		HTTPPort:          getEnv("HTTP_PORT", "8443"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		InitialCredits:    getEnvAsInt("INITIAL_CREDITS", 5),
		MaxHistoryTurns:   getEnvAsInt("MAX_HISTORY_TURNS", 50),
		GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 60*time.Second),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TG_TOKEN environment variable is required")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if cfg.InitialCredits < 0 {
		return nil, fmt.Errorf("INITIAL_CREDITS must not be negative, got %d", cfg.InitialCredits)
	}

	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
