// Package backends opens the record backend named by the configuration.
package backends

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vpriesta/mds-form/internal/config"
	"github.com/vpriesta/mds-form/internal/logging"
	"github.com/vpriesta/mds-form/internal/store"
	"github.com/vpriesta/mds-form/internal/store/memory"
	"github.com/vpriesta/mds-form/internal/store/postgres"
	"github.com/vpriesta/mds-form/internal/store/sheets"
	"github.com/vpriesta/mds-form/internal/store/sqlite"
)

// Open connects the backend selected by cfg.StoreBackend. The returned func
// releases its resources and is never nil on success.
func Open(ctx context.Context, cfg config.Config, log *logging.Logger) (store.Backend, func(), error) {
	if log == nil {
		log = logging.Nop()
	}
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		repo := postgres.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	case config.BackendSQLite:
		b, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				log.Warn("sqlite close failed", "error", err)
			}
		}, nil
	case config.BackendSheets:
		client, err := sheets.NewClient(ctx, cfg.GoogleCredentials)
		if err != nil {
			return nil, nil, err
		}
		b, err := sheets.Open(ctx, client, cfg.SpreadsheetID, cfg.Worksheet)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	case config.BackendMemory, "":
		log.Warn("using in-memory record store; records are lost on restart")
		return memory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
