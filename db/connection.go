package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"travel-backoffice/config"

	_ "github.com/lib/pq"
)

// DB is the process-wide pool. Handlers borrow connections per query and never open their own.
var DB *sql.DB

// InitDB opens the pool described by cfg, verifies it and stores it in DB.
func InitDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	conn, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	DB = conn
	return conn, nil
}

// Open creates a bounded connection pool and pings it.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.GetDBConnString())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.DBMaxOpenConns)
	conn.SetMaxIdleConns(cfg.DBMaxIdleConns)
	conn.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	return conn, nil
}

// Close releases the pool if it was opened.
func Close() error {
	if DB == nil {
		return nil
	}
	return DB.Close()
}
