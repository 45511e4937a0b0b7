package backends

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vpriesta/mds-form/internal/config"
)

func TestOpenMemory(t *testing.T) {
	b, closeFn, err := Open(context.Background(), config.Config{StoreBackend: config.BackendMemory}, nil)
	require.NoError(t, err)
	defer closeFn()
	require.Equal(t, "memory", b.Name())
}

func TestOpenSQLite(t *testing.T) {
	cfg := config.Config{StoreBackend: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "records.db")}
	b, closeFn, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeFn()
	require.Equal(t, "sqlite", b.Name())
}

func TestOpenUnknown(t *testing.T) {
	_, _, err := Open(context.Background(), config.Config{StoreBackend: "mongo"}, nil)
	require.Error(t, err)
}
