package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pogoaccountserver/backend/config"
	"github.com/pogoaccountserver/backend/dbmigrate"
	"github.com/pogoaccountserver/backend/logging"
)

func main() {
	upCmd := flag.Bool("up", false, "Run all pending migrations")
	downCmd := flag.Bool("down", false, "Rollback the last migration")
	initCmd := flag.Bool("init", false, "Initialize the migrations tracking table")
	dryRun := flag.Bool("dry-run", false, "Show what would run without executing it")
	configPath := flag.String("config", "config.ini", "Path to the INI config file")

	flag.Parse()

	logger := logging.NewLogger(logging.INFO)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Pass, cfg.Database.Name,
	)

	db, err := dbmigrate.Connect(connStr)
	if err != nil {
		logger.Fatal("failed to connect to database", err)
	}
	defer db.Close()

	migrator := dbmigrate.NewMigrator(db, logger, dbmigrate.WithDryRun(*dryRun))

	switch {
	case *initCmd:
		if err := migrator.Initialize(); err != nil {
			logger.Fatal("failed to initialize migrations table", err)
		}
	case *upCmd:
		if err := migrator.Initialize(); err != nil {
			logger.Fatal("failed to initialize migrations table", err)
		}
		if err := migrator.Up(); err != nil {
			logger.Fatal("migration failed", err)
		}
	case *downCmd:
		if err := migrator.Down(); err != nil {
			logger.Fatal("rollback failed", err)
		}
	default:
		fmt.Println("pogoAccountServer - Database Migration Tool")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  migrate -init             Initialize the migrations tracking table")
		fmt.Println("  migrate -up               Run all pending migrations")
		fmt.Println("  migrate -down             Roll back the last migration")
		fmt.Println("  migrate -dry-run          Combine with -up/-down to preview only")
		fmt.Println("  migrate -config=path.ini  Path to the INI config file (default config.ini)")
		os.Exit(1)
	}
}
