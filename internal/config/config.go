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
	Queue        QueueConfig
	Notification NotificationConfig
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

// AuthConfig defines parameters for validating externally issued staff tokens.
type AuthConfig struct {
	JWTSecret string
}

// QueueConfig tunes the queue assignment engine.
type QueueConfig struct {
	DefaultTicketTTLMinutes         int
	DefaultAverageProcessingMinutes int
	ProcessingWindowHours           int
	AverageCacheTTLSeconds          int
	SweepIntervalSeconds            int
	CallNextMaxRetries              int
	TokenSecret                     string
}

// NotificationConfig configures the queue event stream handed to the
// external push collaborator.
type NotificationConfig struct {
	StreamKey string
	MaxLen    int64
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
			Name:                  getEnv("APP_NAME", "patient-queue-service"),
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
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
		},
		Queue: QueueConfig{
			DefaultTicketTTLMinutes:         getEnvAsInt("DEFAULT_TICKET_TTL_MINUTES", 120),
			DefaultAverageProcessingMinutes: getEnvAsInt("DEFAULT_AVERAGE_PROCESSING_MINUTES", 15),
			ProcessingWindowHours:           getEnvAsInt("PROCESSING_WINDOW_HOURS", 24),
			AverageCacheTTLSeconds:          getEnvAsInt("AVERAGE_CACHE_TTL_SECONDS", 60),
			SweepIntervalSeconds:            getEnvAsInt("SWEEP_INTERVAL_SECONDS", 30),
			CallNextMaxRetries:              getEnvAsInt("CALL_NEXT_MAX_RETRIES", 3),
			TokenSecret:                     getEnv("QUEUE_TOKEN_SECRET", "dev-token-secret"),
		},
		Notification: NotificationConfig{
			StreamKey: getEnv("NOTIFY_STREAM_KEY", "queue.events"),
			MaxLen:    int64(getEnvAsInt("NOTIFY_STREAM_MAXLEN", 10000)),
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

// DefaultTicketTTL returns the waiting-ticket lifetime applied at creation
// when the caller does not override it.
func (q QueueConfig) DefaultTicketTTL() time.Duration {
	return time.Duration(q.DefaultTicketTTLMinutes) * time.Minute
}

// SweepInterval returns the pause between expiry sweeps.
func (q QueueConfig) SweepInterval() time.Duration {
	if q.SweepIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(q.SweepIntervalSeconds) * time.Second
}

// ProcessingWindow returns the lookback window for rolling processing averages.
func (q QueueConfig) ProcessingWindow() time.Duration {
	return time.Duration(q.ProcessingWindowHours) * time.Hour
}

// AverageCacheTTL returns how long a computed room average may be reused.
func (q QueueConfig) AverageCacheTTL() time.Duration {
	return time.Duration(q.AverageCacheTTLSeconds) * time.Second
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
