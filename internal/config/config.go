package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const testJWTSecret = "test_secret_key_minimum_32_characters_long_for_testing_only"

type Config struct {
	ServerAddr string
	AppEnv     string
	LogLevel   string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret      string
	AccessTokenTTL time.Duration

	KafkaBrokers    []string
	KafkaResetTopic string

	SweepInterval time.Duration

	// AuthRateLimit is requests per minute per IP on /api/auth; 0 disables it.
	AuthRateLimit int

	AdminEmail    string
	AdminUsername string
	AdminPassword string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		AppEnv:     getEnv("APP_ENV", "prod"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "identity"),

		JWTSecret:      getEnv("JWT_SECRET", testJWTSecret),
		AccessTokenTTL: time.Duration(getEnvInt("JWT_TOKEN_TTL", 3600)) * time.Second,

		KafkaBrokers:    csv(os.Getenv("KAFKA_BROKERS")),
		KafkaResetTopic: getEnv("KAFKA_RESET_TOPIC", "identity.password-reset"),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Hour),
		AuthRateLimit: getEnvInt("AUTH_RATE_LIMIT", 20),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}

// Test returns a configuration suitable for in-process tests.
func Test() *Config {
	return &Config{
		ServerAddr:      ":0",
		AppEnv:          "dev",
		LogLevel:        "error",
		JWTSecret:       testJWTSecret,
		AccessTokenTTL:  time.Hour,
		KafkaResetTopic: "identity.password-reset",
		SweepInterval:   time.Hour,
	}
}

func (c *Config) IsDev() bool { return c.AppEnv == "dev" }

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort,
	)
}

// Validate reports settings that must not reach production.
func (c *Config) Validate() error {
	if c.DBHost == "" || c.DBName == "" || c.DBUser == "" {
		return fmt.Errorf("DB_HOST, DB_NAME and DB_USER are required")
	}
	return ValidateJWTSecret(c.JWTSecret, c.IsDev())
}

func ValidateJWTSecret(secret string, allowTestSecret bool) error {
	if secret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long (current: %d)", len(secret))
	}
	if secret == testJWTSecret && !allowTestSecret {
		return fmt.Errorf("cannot use default test secret in production")
	}
	return nil
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
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func csv(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
