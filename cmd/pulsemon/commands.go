package main

import (
	"fmt"
	"log"

	"github.com/banshee-data/pulse.monitor/internal/config"
	"github.com/banshee-data/pulse.monitor/internal/db"
)

// runCommand handles the non-interactive subcommands.
func runCommand(args []string) error {
	switch args[0] {
	case "migrate":
		return runMigrate(args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runMigrate(args []string) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	cfg := config.EmptyDeviceConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadDeviceConfig(*configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	path, err := historyPath(cfg)
	if err != nil {
		return err
	}

	store, err := db.OpenDB(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	switch action {
	case "up":
		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := store.MigrateDown(); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down or version)", action)
	}

	v, dirty, err := store.MigrateVersion()
	if err != nil {
		return err
	}
	latest, err := db.LatestMigrationVersion()
	if err != nil {
		return err
	}
	log.Printf("schema version %d (latest %d, dirty=%v)", v, latest, dirty)
	return nil
}
