package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tasklog/app/services"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	_ "modernc.org/sqlite"             // SQLite driver ("sqlite")
)

// StoreCloser is a task store that owns a connection.
type StoreCloser interface {
	services.Store
	services.Getter
	Close(ctx context.Context) error
}

type sqlStoreCloser struct{ *services.SQLStore }

func (s sqlStoreCloser) Close(context.Context) error { return s.SQLStore.Close() }

type neo4jStoreCloser struct {
	*services.Neo4jStore
	close func(ctx context.Context) error
}

func (s neo4jStoreCloser) Close(ctx context.Context) error { return s.close(ctx) }

// OpenStore connects to the configured backend and ensures its schema exists.
func OpenStore(ctx context.Context, cfg StoreConfig) (StoreCloser, error) {
	switch cfg.Driver {
	case DriverSQLite:
		db, err := openSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return initSQL(ctx, db, services.DialectSQLite)
	case DriverPostgres:
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		return initSQL(ctx, db, services.DialectPostgres)
	case DriverNeo4j:
		driver, err := InitNeo4j(ctx, cfg.Neo4j)
		if err != nil {
			return nil, err
		}
		store := services.NewNeo4jStore(driver, cfg.Neo4j.Database)
		if err := store.InitSchema(ctx); err != nil {
			_ = driver.Close(ctx)
			return nil, err
		}
		return neo4jStoreCloser{Neo4jStore: store, close: driver.Close}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func openSQLite(dsn string) (*sql.DB, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	return db, nil
}

func initSQL(ctx context.Context, db *sql.DB, dialect services.Dialect) (StoreCloser, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	store := services.NewSQLStore(db, dialect)
	if err := store.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlStoreCloser{SQLStore: store}, nil
}
