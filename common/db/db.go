package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/weeeopen/tarallo/common/config"
	"github.com/weeeopen/tarallo/common/logger"
)

//go:embed schema.sql
var schema string

// Querier is the subset of pgx shared by the pool and a transaction.
// Repositories take a Querier so the same code runs inside or outside a tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps pgxpool with common operations
type DB struct {
	*pgxpool.Pool
	log       *logger.Logger
	isolation pgx.TxIsoLevel
	retries   int
}

// New creates a new database connection pool
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime

	db, err := open(ctx, poolConfig, log)
	if err != nil {
		return nil, err
	}
	db.isolation = ParseIsolation(cfg.Database.Isolation)
	db.retries = cfg.Database.TxRetries

	log.Info("database connected", "host", cfg.Database.Host, "db", cfg.Database.Database, "isolation", db.isolation)

	return db, nil
}

// Connect opens a pool from a URL with serializable transactions, used by tests and tools
func Connect(ctx context.Context, url string, log *logger.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	return open(ctx, poolConfig, log)
}

func open(ctx context.Context, poolConfig *pgxpool.Config, log *logger.Logger) (*DB, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{
		Pool:      pool,
		log:       log,
		isolation: pgx.Serializable,
		retries:   3,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.log.Info("closing database connection pool")
	db.Pool.Close()
}

// Health checks database health
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return db.Pool.Ping(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	// No arguments: pgx uses the simple protocol, which accepts multiple statements.
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	db.log.Info("database schema applied")
	return nil
}

// WithTx runs fn in a single transaction at the configured isolation level.
// Serialization failures are retried; fn must not keep state across attempts.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= db.retries; attempt++ {
		err = db.runTx(ctx, fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
		db.log.Warn("transaction conflict, retrying", "attempt", attempt, "error", err)
	}
	return err
}

func (db *DB) runTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: db.isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ParseIsolation maps a config string to a pgx isolation level
func ParseIsolation(level string) pgx.TxIsoLevel {
	switch strings.ToLower(level) {
	case "read committed":
		return pgx.ReadCommitted
	case "repeatable read":
		return pgx.RepeatableRead
	default:
		return pgx.Serializable
	}
}

// Postgres error codes the repositories translate into domain errors
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// PgErrorCode returns the SQLSTATE of err, or "" when err is not a Postgres error
func PgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsSerializationFailure reports whether err can be fixed by retrying the transaction
func IsSerializationFailure(err error) bool {
	code := PgErrorCode(err)
	return code == CodeSerializationFailure || code == CodeDeadlockDetected
}
