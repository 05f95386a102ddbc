package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"thirdcoast.systems/scanwatch/internal/config"
	"thirdcoast.systems/scanwatch/internal/db"
)

var (
	dbOpenBackoffBase  = 1 * time.Second
	dbOpenBackoffScale = 1.618
)

// OpenStore opens the configured backend and brings its schema up to date.
func OpenStore(ctx context.Context, conf config.Config) (*db.DatabaseConnection, error) {
	var (
		dbc *db.DatabaseConnection
		err error
	)
	switch db.Driver(conf.StoreDriver) {
	case db.DriverPostgres:
		pool, perr := OpenDBPoolWithRetry(ctx, conf)
		if perr != nil {
			return nil, perr
		}
		dbc, err = db.NewDatabaseConnection(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
	default:
		dbc, err = db.OpenSQLite(ctx, conf.DatabasePath)
		if err != nil {
			return nil, err
		}
		slog.Info("Opened sqlite store", "path", conf.DatabasePath)
	}

	if err := dbc.Migrate(ctx); err != nil {
		_ = dbc.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return dbc, nil
}

// OpenDBPoolWithRetry initializes a new PostgreSQL connection pool with retry logic.
func OpenDBPoolWithRetry(ctx context.Context, conf config.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var lastErr error

	retries := conf.DatabaseRetries
	if retries <= 0 {
		retries = 10
	}

	cfg, err := pgxpool.ParseConfig(conf.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	slog.Info("Connecting to database", "host", cfg.ConnConfig.Host)
	for i := 0; i < retries; i++ {
		if pool, err = pgxpool.NewWithConfig(ctx, cfg); err == nil {
			break
		}
		lastErr = err

		backoff := time.Duration(float64(dbOpenBackoffBase) * math.Pow(dbOpenBackoffScale, float64(i)))
		slog.Warn("database connect failed", "error", err, "retry_in", backoff)
		if !sleep(ctx, backoff) {
			return nil, ctx.Err()
		}
	}

	if pool == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("failed to connect to database after multiple attempts: %w", lastErr)
		}
		return nil, fmt.Errorf("failed to connect to database after multiple attempts")
	}

	for i := 0; i < retries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)

		if err = pool.Ping(pingCtx); err == nil {
			cancel()
			slog.Info("Connected to database", "host", cfg.ConnConfig.Host)
			return pool, nil
		}
		cancel()
		lastErr = err

		backoff := time.Duration(float64(dbOpenBackoffBase) * math.Pow(dbOpenBackoffScale, float64(i)))
		slog.Warn("database ping failed", "error", err, "retry_in", backoff)
		if !sleep(ctx, backoff) {
			pool.Close()
			return nil, ctx.Err()
		}
	}
	pool.Close()
	if lastErr != nil {
		return nil, fmt.Errorf("failed to ping database after multiple attempts: %w", lastErr)
	}
	return nil, fmt.Errorf("failed to ping database after multiple attempts")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
