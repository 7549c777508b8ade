// ==================================
// File: internal/storage/postgres/postgres.go
// ==================================
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a connection pool and verifies connectivity. Only driver
// warnings and errors reach the logger.
func NewPool(ctx context.Context, dsn string, logger *zap.Logger) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	config.MaxConns = 20
	config.MaxConnLifetime = time.Hour
	config.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   newPgxLogger(logger.Named("pgx")),
		LogLevel: tracelog.LogLevelWarn,
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// newPgxLogger адаптирует zap к tracelog.Logger
func newPgxLogger(logger *zap.Logger) tracelog.Logger {
	return tracelog.LoggerFunc(func(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		fields := make([]zap.Field, 0, len(data))
		for k, v := range data {
			fields = append(fields, zap.Any(k, v))
		}
		switch level {
		case tracelog.LogLevelError:
			logger.Error(msg, fields...)
		case tracelog.LogLevelWarn:
			logger.Warn(msg, fields...)
		case tracelog.LogLevelInfo:
			logger.Info(msg, fields...)
		default:
			logger.Debug(msg, fields...)
		}
	})
}

const pgErrUniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Store implements storage.Store on PostgreSQL.
type Store struct {
	pool   *Pool
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

func NewStore(pool *Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.Named("postgres")}
}

// Open connects, applies migrations and returns a ready store.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if err := Migrate(ctx, dsn, logger); err != nil {
		return nil, err
	}
	pool, err := NewPool(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	return NewStore(pool, logger), nil
}

func (s *Store) Close() {
	s.pool.Close()
}
