package sqldb

import (
	"context"
	"log/slog"

	"github.com/example/saturday/internal/persistence"
)

// Storage implements every persistence repository over one connection pool.
type Storage struct {
	pool   *ConnectionPool
	helper QueryHelper
}

var (
	_ persistence.SchoolRepository       = (*Storage)(nil)
	_ persistence.UserRepository         = (*Storage)(nil)
	_ persistence.AvailabilityRepository = (*Storage)(nil)
	_ persistence.MessageRepository      = (*Storage)(nil)
	_ persistence.PregameRepository      = (*Storage)(nil)
	_ persistence.RatingRepository       = (*Storage)(nil)
)

// OpenStorage connects to dsn. Call Migrate before serving traffic.
func OpenStorage(ctx context.Context, dsn string) (*Storage, error) {
	pool, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewStorage(pool), nil
}

// NewStorage wraps an open pool.
func NewStorage(pool *ConnectionPool) *Storage {
	return &Storage{pool: pool, helper: QueryHelper{dialect: pool.Dialect()}}
}

// Pool returns the underlying connection pool.
func (s *Storage) Pool() *ConnectionPool {
	return s.pool
}

// Migrate applies pending schema migrations.
func (s *Storage) Migrate(ctx context.Context, logger *slog.Logger) error {
	migrator, err := NewMigrator(s.pool, logger)
	if err != nil {
		return err
	}
	return migrator.Run(ctx)
}

// Ping checks database reachability.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
