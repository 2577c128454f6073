package store

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"moscowboard/api/internal/config"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// driverName maps a configured dialect onto its database/sql driver.
func driverName(dialect string) (string, error) {
	switch dialect {
	case config.DriverPostgres:
		return "pgx", nil
	case config.DriverSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

func Open(ctx context.Context, dialect, databaseURL string) (*sqlx.DB, error) {
	name, err := driverName(dialect)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(name, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	if dialect == config.DriverSQLite {
		// One writer keeps sqlite transactions serialized instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if dialect == config.DriverSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return db, nil
}
