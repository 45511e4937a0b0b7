package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "KAFKA_BROKERS", "JWT_TTL", "OWNER_LIST_LIMIT", "GOOGLE_APPLICATION_CREDENTIALS_JSON", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Empty(t, cfg.KafkaBrokers)
	require.False(t, cfg.EventsEnabled())
	require.Equal(t, 12*time.Hour, cfg.JWTTTL)
	require.Equal(t, 200, cfg.OwnerListLimit)
	require.Equal(t, 500, cfg.ReviewListLimit)
	require.Equal(t, "Sheet1", cfg.Worksheet)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost/db")
	t.Setenv("KAFKA_BROKERS", " kafka:9092, ,kafka2:9092 ")
	t.Setenv("JWT_TTL", "not-a-duration")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/sa.json")

	cfg := Load()
	require.Equal(t, BackendPostgres, cfg.StoreBackend)
	require.Equal(t, []string{"kafka:9092", "kafka2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 12*time.Hour, cfg.JWTTTL)
	require.Equal(t, "/etc/sa.json", cfg.GoogleCredentials)
	require.NoError(t, cfg.Validate())
}

func TestValidateBackendRequirements(t *testing.T) {
	cfg := Load()
	cfg.StoreBackend = BackendSheets
	cfg.SpreadsheetID = ""
	require.ErrorContains(t, cfg.Validate(), "SHEETS_SPREADSHEET_ID")

	cfg.StoreBackend = "csv"
	require.ErrorContains(t, cfg.Validate(), "unknown STORE_BACKEND")

	cfg.StoreBackend = BackendMemory
	cfg.TracingExporter = "jaeger"
	require.ErrorContains(t, cfg.Validate(), "TRACING_EXPORTER")
}
