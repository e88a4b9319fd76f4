package sqldb

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded schema migrations with goose.
type Migrator struct {
	provider *goose.Provider
	logger   *slog.Logger
}

// NewMigrator prepares a migrator for the pool's dialect.
func NewMigrator(pool *ConnectionPool, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dialect := goose.DialectSQLite3
	if pool.Dialect() == DialectPostgres {
		dialect = goose.DialectPostgres
	}

	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, pool.DB(), migrations)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	return &Migrator{provider: provider, logger: logger}, nil
}

// Run applies every pending migration.
func (m *Migrator) Run(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, result := range results {
		m.logger.InfoContext(ctx, "migration applied",
			slog.Int64("version", result.Source.Version),
			slog.String("path", result.Source.Path),
			slog.Duration("duration", result.Duration),
		)
	}
	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return version, nil
}
