package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Verification VerificationConfig
	Mail         MailConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	ResetTokenTTLMinutes  int
	BcryptCost            int
}

// VerificationConfig defines the identity-verification subsystem parameters.
// DedupWindow and CleanupHorizon govern how long a consumed token keeps
// answering duplicate redemptions as a harmless retry; they depend on client
// retry behavior, not on domain semantics, so they are tunable.
type VerificationConfig struct {
	Host              string
	Port              string
	PublicBaseURL     string
	DedupWindowSec    int
	CleanupHorizonSec int
}

// MailConfig holds outbound SMTP settings.
type MailConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "wellness-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			ResetTokenTTLMinutes:  getEnvAsInt("AUTH_RESET_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Verification: VerificationConfig{
			Host:              getEnv("VERIFY_HOST", "0.0.0.0"),
			Port:              getEnv("VERIFY_PORT", "8442"),
			PublicBaseURL:     getEnv("VERIFY_PUBLIC_BASE_URL", "http://localhost:8442"),
			DedupWindowSec:    getEnvAsInt("VERIFY_DEDUP_WINDOW_SECONDS", 5),
			CleanupHorizonSec: getEnvAsInt("VERIFY_CLEANUP_HORIZON_SECONDS", 10),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", "127.0.0.1"),
			Port:     getEnv("SMTP_PORT", "25"),
			From:     getEnv("SMTP_FROM", "noreply@example.com"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Addr returns the callback listener bind address.
func (v VerificationConfig) Addr() string {
	return fmt.Sprintf("%s:%s", v.Host, v.Port)
}

// DedupWindow returns the duplicate-redemption window.
func (v VerificationConfig) DedupWindow() time.Duration {
	if v.DedupWindowSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(v.DedupWindowSec) * time.Second
}

// CleanupHorizon returns the redemption-record retention horizon.
func (v VerificationConfig) CleanupHorizon() time.Duration {
	if v.CleanupHorizonSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(v.CleanupHorizonSec) * time.Second
}

// ResetTokenTTL returns the absolute lifetime of password reset tokens.
func (a AuthConfig) ResetTokenTTL() time.Duration {
	if a.ResetTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.ResetTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
