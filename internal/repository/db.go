package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/anchit2000/invoice-parsing-llms/internal/common"
)

// DriverPgx and DriverSQLite select the backing store. Postgres is the
// deployment default; sqlite covers local and in-memory runs.
const (
	DriverPgx    = "pgx"
	DriverSQLite = "sqlite"
)

// Open connects per cfg.Driver and returns a database/sql handle. For
// postgres a pgx pool is built first and wrapped; the pool is returned so
// callers can close it explicitly (nil for sqlite).
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*sql.DB, *pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case DriverSQLite:
		logger.Info("opening sqlite database", "dsn", cfg.DSN)
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		// modernc sqlite serializes writes; a single conn avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		return db, nil, nil

	default:
		logger.Info("connecting to database", "driver", DriverPgx)
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			logger.Error("failed to parse database config", "error", err)
			return nil, nil, err
		}
		pc.MaxConns = cfg.MaxConns
		pc.MinConns = cfg.MinConns
		pc.MaxConnLifetime = cfg.MaxConnLifetime
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
		pc.ConnConfig.RuntimeParams["application_name"] = "invoice-parsing"
		if cfg.StatementTimeout > 0 {
			pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
		}

		dialCtx := ctx
		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
		pool, err := pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return nil, nil, err
		}

		logger.Info("successfully connected to database")
		return stdlib.OpenDBFromPool(pool), pool, nil
	}
}

// Close closes the database connections gracefully.
func Close(db *sql.DB, pool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("closing database connections")
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("failed to close db handle", "error", err)
		}
	}
	if pool != nil {
		pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the handle to catch DSN issues early.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.PingContext(ctx)
}

var placeholderRe = regexp.MustCompile(`\$\d+`)

// rebind converts $N placeholders to ? for drivers that want them.
// Queries in this package number placeholders strictly in argument order,
// so a positional rewrite is safe.
func rebind(driver, query string) string {
	if driver == DriverSQLite {
		return placeholderRe.ReplaceAllString(query, "?")
	}
	return query
}
