// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the server configuration, read from the environment and an
// optional .env file.
type Config struct {
	Port string
	Env  string

	DBDriver   string // "postgres" or "sqlite"
	DBURL      string
	SQLitePath string

	JWTSecret string

	AIProvider    string // "openai" or "gemini"
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	AITimeout     time.Duration

	S3Bucket string
	S3Region string
}

// Load reads .env if present, then the environment. Real environment
// variables win over .env entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment and validates it.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:          getenv("PORT", "8080"),
		Env:           getenv("ENV", "development"),
		DBDriver:      strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DBURL:         os.Getenv("DB_URL"),
		SQLitePath:    getenv("SQLITE_PATH", "data/macrotrack.db"),
		JWTSecret:     os.Getenv("SUPABASE_JWT_SECRET"),
		AIProvider:    strings.ToLower(getenv("AI_PROVIDER", "openai")),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getenv("OPENAI_MODEL", "openai/gpt-4o-mini"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getenv("GEMINI_MODEL", "gemini-2.0-flash"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3Region:      getenv("S3_REGION", os.Getenv("AWS_REGION")),
	}

	timeout, err := time.ParseDuration(getenv("AI_TIMEOUT", "60s"))
	if err != nil || timeout <= 0 {
		return Config{}, fmt.Errorf("AI_TIMEOUT: invalid duration %q", os.Getenv("AI_TIMEOUT"))
	}
	cfg.AITimeout = timeout

	switch cfg.DBDriver {
	case "postgres":
		if cfg.DBURL == "" {
			return Config{}, errors.New("DB_URL is required when DB_DRIVER=postgres")
		}
	case "sqlite":
	default:
		return Config{}, fmt.Errorf("DB_DRIVER: unknown driver %q", cfg.DBDriver)
	}

	if cfg.AIProvider != "openai" && cfg.AIProvider != "gemini" {
		return Config{}, fmt.Errorf("AI_PROVIDER: unknown provider %q", cfg.AIProvider)
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("SUPABASE_JWT_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
