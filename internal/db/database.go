package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Driver names the store backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type DatabaseConnection struct {
	*sql.DB
	driver   Driver
	pool     *pgxpool.Pool
	validate *validator.Validate
}

const DBRetryCount = 15

// SQLiteDSN builds the connection string for a local database file. Pragmas
// are per connection, so they go in the DSN rather than a one-off Exec.
func SQLiteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*DatabaseConnection, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL allows concurrent readers; writers still serialize on the file lock.
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DatabaseConnection{DB: sqlDB, driver: DriverSQLite, validate: validator.New()}, nil
}

// NewDatabaseConnection wraps a Postgres pool, waiting for it to answer.
func NewDatabaseConnection(ctx context.Context, pool *pgxpool.Pool) (*DatabaseConnection, error) {
	for i := range DBRetryCount {
		err := pool.Ping(ctx)
		if err == nil {
			return &DatabaseConnection{
				DB:       stdlib.OpenDBFromPool(pool),
				driver:   DriverPostgres,
				pool:     pool,
				validate: validator.New(),
			}, nil
		}

		// Golden ratio backoff
		fib := 1.61803398875
		sleep := time.Duration((float64(i) * fib)) * time.Second
		slog.Warn("could not ping the database", "error", err, "retry_in", sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}

	return nil, fmt.Errorf("could not connect to database after %d retries", DBRetryCount)
}

func (db *DatabaseConnection) Driver() Driver { return db.driver }

// Close closes the database connection
func (db *DatabaseConnection) Close() error {
	err := db.DB.Close()
	if db.pool != nil {
		db.pool.Close()
	}
	return err
}

func (db *DatabaseConnection) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

//go:embed sql/migrations/sqlite/*.sql sql/migrations/postgres/*.sql
var embedMigrations embed.FS

func (db *DatabaseConnection) gooseDialect() (string, string) {
	if db.driver == DriverPostgres {
		return "postgres", "sql/migrations/postgres"
	}
	return "sqlite3", "sql/migrations/sqlite"
}

// Migrate runs the goose migrations
func (db *DatabaseConnection) Migrate(ctx context.Context) error {
	dialect, dir := db.gooseDialect()
	sub, err := fs.Sub(embedMigrations, dir)
	if err != nil {
		return err
	}
	goose.SetBaseFS(sub)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	currentVersion, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return err
	}

	migrations, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		slog.Debug("migration embedded", "source", m.Source, "version", m.Version, "current", m.Version == currentVersion)
	}

	var targetVersion int64
	if down, ok := os.LookupEnv("GOOSE_DOWN_TO"); ok {
		targetVersion, err = strconv.ParseInt(down, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse GOOSE_DOWN_TO version: %w", err)
		}
		err = goose.DownToContext(ctx, db.DB, ".", targetVersion)
	} else {
		if up, ok := os.LookupEnv("GOOSE_UP_TO"); ok {
			targetVersion, err = strconv.ParseInt(up, 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse GOOSE_UP_TO version: %w", err)
			}
		} else {
			targetVersion = goose.MaxVersion
		}
		err = goose.UpToContext(ctx, db.DB, ".", targetVersion)
	}
	if err != nil {
		return err
	}

	version, err := goose.GetDBVersionContext(ctx, db.DB)
	if err == nil {
		slog.Info("database migrated", "driver", db.driver, "version", version)
	}
	return nil
}
