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
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Calendar CalendarConfig
	Course   CourseConfig
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

// RedisConfig holds Redis connection values. Channel is the pub/sub channel
// used to relay ticket events between API instances.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret            string
	TokenTTLMinutes      int
	DefaultCreditBalance int
}

// Calendar drivers.
const (
	CalendarDriverGoogle   = "google"
	CalendarDriverMemory   = "memory"
	CalendarDriverDisabled = "disabled"
)

// CalendarConfig selects and tunes the appointment calendar backend.
type CalendarConfig struct {
	Driver             string
	CalendarID         string
	CredentialsFile    string
	TimeoutSeconds     int
	BreakerFailures    int
	BreakerOpenSeconds int
}

// CourseConfig holds course branding and slot conventions.
type CourseConfig struct {
	Name            string
	DefaultSlotCost int
	UnclaimedMarker string
}

// Load reads configuration from environment variables, applying defaults
// where possible. Files, when given, are dotenv files loaded first; missing
// files are ignored.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "oh-queue"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Channel:  getEnv("REDIS_EVENT_CHANNEL", "oh-queue:event"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:            getEnv("AUTH_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes:      getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 720),
			DefaultCreditBalance: getEnvAsInt("AUTH_DEFAULT_CREDIT_BALANCE", 100),
		},
		Calendar: CalendarConfig{
			Driver:             getEnv("CALENDAR_DRIVER", CalendarDriverDisabled),
			CalendarID:         os.Getenv("GOOGLE_CALENDAR_ID"),
			CredentialsFile:    getEnv("GOOGLE_CREDENTIALS_FILE", "service-account.json"),
			TimeoutSeconds:     getEnvAsInt("CALENDAR_TIMEOUT_SECONDS", 10),
			BreakerFailures:    getEnvAsInt("CALENDAR_BREAKER_FAILURES", 5),
			BreakerOpenSeconds: getEnvAsInt("CALENDAR_BREAKER_OPEN_SECONDS", 30),
		},
		Course: CourseConfig{
			Name:            getEnv("COURSE_NAME", "OK"),
			DefaultSlotCost: getEnvAsInt("COURSE_DEFAULT_SLOT_COST", 50),
			UnclaimedMarker: getEnv("COURSE_UNCLAIMED_MARKER", "#appointment"),
		},
	}

	switch cfg.Calendar.Driver {
	case CalendarDriverGoogle:
		if cfg.Calendar.CalendarID == "" {
			return nil, fmt.Errorf("GOOGLE_CALENDAR_ID required for calendar driver %q", cfg.Calendar.Driver)
		}
	case CalendarDriverMemory, CalendarDriverDisabled:
	default:
		return nil, fmt.Errorf("unknown CALENDAR_DRIVER %q", cfg.Calendar.Driver)
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

// Timeout bounds a single calendar round-trip.
func (c CalendarConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ClaimedSummary is the title a slot carries once a student claims it.
func (c CourseConfig) ClaimedSummary() string {
	return c.Name + " Appointment"
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
