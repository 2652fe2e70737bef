// Package pg is the portal's Postgres layer: pool setup and the persisted
// upstream credential table.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects through the pgx stdlib driver with tuned pool defaults.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("pg: empty dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// Ping checks the database within a short deadline; used by readiness.
func Ping(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("pg: not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
