package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration, loaded from the environment
// (with an optional .env file for local development).
type Config struct {
	AppEnv string
	Port   string

	// Database ("postgres" for the durable store, "memory" for local runs)
	DBDriver  string
	DBConnStr string

	// Auth collaborator
	JWTSecret string

	// AI capability
	AIBaseURL string
	AIAPIKey  string
	AITimeout time.Duration

	// Policy
	ConfidenceThreshold int
	StartingBalance     decimal.Decimal
}

// Load reads configuration from the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		AppEnv: envString("APP_ENV", "development"),
		Port:   envString("PORT", "5000"),

		DBDriver:  envString("DB_DRIVER", "postgres"),
		DBConnStr: os.Getenv("DB_CONN_STR"),

		JWTSecret: envRequired("JWT_SECRET"),

		AIBaseURL: envRequired("AI_BASE_URL"),
		AIAPIKey:  envString("AI_API_KEY", ""),
		AITimeout: envDuration("AI_TIMEOUT", 30*time.Second),

		ConfidenceThreshold: envInt("VERIFY_CONFIDENCE_THRESHOLD", 70),
		StartingBalance:     envDecimal("STARTING_BALANCE", decimal.NewFromInt(100)),
	}

	// If an explicit connection string is missing, build it from individual
	// vars (Docker friendly).
	if cfg.DBDriver == "postgres" && cfg.DBConnStr == "" {
		cfg.DBConnStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			envString("DB_HOST", "localhost"),
			envString("DB_PORT", "5432"),
			envString("DB_USER", "postgres"),
			envString("DB_PASSWORD", "postgres"),
			envString("DB_NAME", "escrow"),
		)
	}

	return cfg
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		slog.Warn("config invalid decimal, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}
