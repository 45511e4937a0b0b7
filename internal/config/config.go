// Package config centralises configuration parsing for the mds-form binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backend names accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
	BackendSQLite   = "sqlite"
)

// Config captures runtime configuration values.
type Config struct {
	HTTPAddress    string
	MetricsAddress string
	LogMode        string

	StoreBackend      string
	PostgresURL       string
	SQLitePath        string
	SpreadsheetID     string
	Worksheet         string
	GoogleCredentials string // JSON document or path to a service account file.

	CredentialsFile string
	JWTSecret       string
	JWTIssuer       string
	JWTTTL          time.Duration
	SessionTTL      time.Duration

	RedisAddr       string
	KafkaBrokers    []string
	EventsTopic     string
	ConsumerGroupID string

	TracingExporter string // none, stdout or otlp.

	OwnerListLimit  int
	ReviewListLimit int

	// Reviewer terminal sign-in, checked against CredentialsFile.
	ReviewerUsername string
	ReviewerPassword string
}

// Load reads environment variables into Config, applying defaults for local dev.
func Load() Config {
	cfg := Config{
		HTTPAddress:     getEnv("HTTP_ADDRESS", ":8080"),
		MetricsAddress:  getEnv("METRICS_ADDRESS", ":9195"),
		LogMode:         getEnv("LOG_MODE", "development"),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		PostgresURL:     getEnv("POSTGRES_URL", ""),
		SQLitePath:      getEnv("SQLITE_PATH", "mds-form.db"),
		SpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		Worksheet:       getEnv("SHEETS_WORKSHEET", "Sheet1"),
		CredentialsFile: getEnv("CREDENTIALS_FILE", "secrets.toml"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer:       getEnv("JWT_ISSUER", "mds-form"),
		JWTTTL:          getDurationEnv("JWT_TTL", 12*time.Hour),
		SessionTTL:      getDurationEnv("SESSION_TTL", 12*time.Hour),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		EventsTopic:     getEnv("EVENTS_TOPIC", "activity_status_changed"),
		ConsumerGroupID: getEnv("CONSUMER_GROUP_ID", "mds-form-notifier"),
		TracingExporter: strings.ToLower(getEnv("TRACING_EXPORTER", "none")),
		OwnerListLimit:  getIntEnv("OWNER_LIST_LIMIT", 200),
		ReviewListLimit: getIntEnv("REVIEW_LIST_LIMIT", 500),

		ReviewerUsername: getEnv("REVIEWER_USERNAME", ""),
		ReviewerPassword: os.Getenv("REVIEWER_PASSWORD"),
	}

	cfg.GoogleCredentials = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if cfg.GoogleCredentials == "" {
		cfg.GoogleCredentials = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	cfg.KafkaBrokers = splitAndTrim(getEnv("KAFKA_BROKERS", ""))
	return cfg
}

// Validate checks the settings the selected backend and exporters depend on.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required for the postgres backend"))
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendSheets:
		if c.SpreadsheetID == "" {
			errs = append(errs, errors.New("SHEETS_SPREADSHEET_ID is required for the sheets backend"))
		}
		if c.Worksheet == "" {
			errs = append(errs, errors.New("SHEETS_WORKSHEET must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.TracingExporter {
	case "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("unknown TRACING_EXPORTER %q", c.TracingExporter))
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// EventsEnabled reports whether status-change events are published to Kafka.
func (c Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
