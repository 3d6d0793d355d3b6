package main

import (
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"investledger/internal/config"
	"investledger/internal/db"
)

func main() {
	cfg := config.Load()
	cfg.ConfigureLogging()

	if err := run(cfg.DatabaseURL, os.Args[1:]); err != nil {
		log.WithError(err).Fatal("Migration failed")
	}
}

func run(databaseURL string, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	switch command {
	case "up":
		return db.MigrateUp(databaseURL)
	case "down":
		steps := 1
		if len(args) > 1 {
			parsed, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid steps value %q", args[1])
			}
			steps = parsed
		}
		return db.MigrateDown(databaseURL, steps)
	case "status":
		status, err := db.MigrateStatus(databaseURL)
		if err != nil {
			return err
		}
		if !status.Applied {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d (dirty: %t)\n", status.Version, status.Dirty)
		return nil
	default:
		return fmt.Errorf("usage: migrate [up|down [n]|status], got %q", command)
	}
}
