package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ms-registration/internal/config"
	"ms-registration/internal/database"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	version := flag.Uint("version", 0, "target version for the 'to' command")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [-version N] up|down|to\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Driver != "postgres" {
		fmt.Fprintf(os.Stderr, "migrations apply to postgres only; sqlite schemas are created on connect\n")
		os.Exit(1)
	}

	log := logger.NewLoggerWithWriter(os.Stdout)

	db, err := database.Connect(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Connection failed: %v", err))
	}

	runner := migrations.NewRunner(db, log)
	// Closing the runner also closes db.
	defer runner.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "to":
		err = runner.MigrateTo(*version)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("MIGRATE", err.Error())
		runner.Close()
		os.Exit(1)
	}
	log.Info("MIGRATE", fmt.Sprintf("%s complete", flag.Arg(0)))
}
