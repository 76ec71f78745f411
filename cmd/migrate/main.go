package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bookmarket/internal/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, create")
		name    = flag.String("name", "", "Name for 'create' command")
	)
	flag.Parse()

	log, err := logger.New("local", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	if err := migrate(cfg, *command, *name, log); err != nil {
		log.Fatal("migration failed", zap.String("command", *command), zap.Error(err))
	}
}

func migrate(cfg migrateConfig, command, name string, log *zap.Logger) error {
	dir := cfg.Dir

	if command == "create" {
		if name == "" {
			return fmt.Errorf("name is required for 'create' command")
		}
		if err := goose.Create(nil, dir, name, "sql"); err != nil {
			return err
		}
		log.Info("migration created", zap.String("name", name), zap.String("dir", dir))
		return nil
	}

	pool, err := pgxpool.New(context.Background(), cfg.DSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	switch command {
	case "up":
		if err := goose.Up(db, dir); err != nil {
			return err
		}
		log.Info("migrations applied", zap.String("dir", dir))
	case "down":
		if err := goose.Down(db, dir); err != nil {
			return err
		}
		log.Info("migration rolled back", zap.String("dir", dir))
	case "status":
		return goose.Status(db, dir)
	default:
		return fmt.Errorf("unknown command %q, use: up, down, status, create", command)
	}
	return nil
}
