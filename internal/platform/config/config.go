package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr                 string
	DatabaseURL          string
	JWTSecret            string
	PaystubEncryptionKey string
	PaystubDir           string
	TaxRulesDir          string
	MigrationsDir        string
	Environment          string
	RunWorkers           int
	RunPolicy            string
	RoundingPolicy       string
	RunMigrations        bool
	MaxBodyBytes         int64
	MetricsEnabled       bool
	JobQueueSize         int
	ShutdownTimeout      time.Duration
}

// Load reads an optional .env file then the process environment. Variables
// already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(getEnv("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	return Config{
		Addr:                 getEnv("APP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		PaystubEncryptionKey: getEnv("PAYSTUB_ENCRYPTION_KEY", ""),
		PaystubDir:           getEnv("PAYSTUB_DIR", ""),
		TaxRulesDir:          getEnv("TAX_RULES_DIR", ""),
		MigrationsDir:        getEnv("MIGRATIONS_DIR", "migrations"),
		Environment:          getEnv("APP_ENV", "development"),
		RunWorkers:           getEnvInt("RUN_WORKERS", 8),
		RunPolicy:            getEnv("RUN_POLICY", "continue"),
		RoundingPolicy:       getEnv("ROUNDING_POLICY", "half_up"),
		RunMigrations:        getEnvBool("RUN_MIGRATIONS", true),
		MaxBodyBytes:         int64(getEnvInt("MAX_BODY_BYTES", 4<<20)),
		MetricsEnabled:       getEnvBool("METRICS_ENABLED", true),
		JobQueueSize:         getEnvInt("JOB_QUEUE_SIZE", 64),
		ShutdownTimeout:      getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if c.PaystubDir != "" && strings.TrimSpace(c.PaystubEncryptionKey) == "" {
			return fmt.Errorf("PAYSTUB_ENCRYPTION_KEY must be set in production when PAYSTUB_DIR is used")
		}
	}
	if c.RunWorkers <= 0 {
		return fmt.Errorf("RUN_WORKERS must be positive")
	}
	switch c.RunPolicy {
	case "continue", "all_or_nothing":
	default:
		return fmt.Errorf("RUN_POLICY must be continue or all_or_nothing")
	}
	switch c.RoundingPolicy {
	case "half_up", "half_even":
	default:
		return fmt.Errorf("ROUNDING_POLICY must be half_up or half_even")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.JobQueueSize <= 0 {
		return fmt.Errorf("JOB_QUEUE_SIZE must be positive")
	}
	return nil
}
