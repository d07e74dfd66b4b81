// Package main is the entry point for the Showcase database migration tool.
// It applies the embedded schema migrations for PostgreSQL and SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/config"
	"github.com/prn-tf/showcase-portal/internal/repository/factory"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flags := flag.NewFlagSet("showcase-migrate", flag.ExitOnError)
	configPath := flags.String("config", "", "path to the configuration file")
	flags.Usage = printUsage
	_ = flags.Parse(os.Args[1:])

	if flags.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flags.Arg(0)

	switch command {
	case "version":
		fmt.Printf("Showcase Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up", "status":
		if err := run(command, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func run(command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	db, err := factory.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	switch command {
	case "up":
		before, err := db.Migrator.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		if err := db.Migrator.Migrate(ctx); err != nil {
			return err
		}
		after, err := db.Migrator.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		if after == before {
			fmt.Printf("Schema is up to date at version %d (%s)\n", after, db.Driver)
		} else {
			fmt.Printf("Migrated %s schema from version %d to %d\n", db.Driver, before, after)
		}

	case "status":
		statuses, err := db.Migrator.MigrationStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Driver: %s\n", db.Driver)
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("  %04d  %-40s %s\n", s.Version, s.Name, state)
		}
	}
	return nil
}

func printUsage() {
	fmt.Println(`Showcase Migration Tool

Usage:
  showcase-migrate [-config path] <command>

Commands:
  up          Run all pending migrations
  status      Show which migrations are applied
  version     Print version information
  help        Show this help message

Configuration is read from the config file and SHOWCASE_* environment
variables, e.g. SHOWCASE_DATABASE_DRIVER=sqlite SHOWCASE_DATABASE_PATH=./data/showcase.db

Examples:
  showcase-migrate up
  showcase-migrate -config /etc/showcase/config.yaml status`)
}
