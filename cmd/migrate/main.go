package main

import (
	"context"
	"time"

	"travel-backoffice/config"
	"travel-backoffice/db"
	"travel-backoffice/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config: %v", err)
	}
	logger.SetDefault(logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conn, err := db.InitDB(ctx, cfg)
	if err != nil {
		logger.Fatal("Error initializing database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		db.Close()
		logger.Fatal("Migration failed: %v", err)
	}
	logger.Info("Schema is up to date")
}
