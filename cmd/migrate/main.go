package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/kitchenledger/kitchenledger/internal/app"
	"github.com/kitchenledger/kitchenledger/internal/platform/db"
)

const usage = "Usage: migrate [up|down|steps N|version]"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	mg, err := db.NewMigrator(cfg.PGDSN)
	if err != nil {
		logger.Error("create migrator", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mg.Close(); err != nil {
			logger.Warn("close migrator", slog.Any("error", err))
		}
	}()

	if err := runCommand(mg, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", slog.String("command", os.Args[1]), slog.Any("error", err))
		_ = mg.Close()
		os.Exit(1)
	}
}

func runCommand(mg *db.Migrator, args []string, logger *slog.Logger) error {
	switch args[0] {
	case "up":
		if err := mg.Up(); err != nil {
			return err
		}
		logger.Info("migrations applied")
	case "down":
		if err := mg.Down(); err != nil {
			return err
		}
		logger.Info("migrations reverted")
	case "steps":
		if len(args) < 2 {
			return fmt.Errorf("steps requires a number argument")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid steps argument: %w", err)
		}
		if err := mg.Steps(n); err != nil {
			return err
		}
		logger.Info("applied migration steps", slog.Int("steps", n))
	case "version":
		version, dirty, err := mg.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version: %d, dirty: %v\n", version, dirty)
	default:
		return fmt.Errorf("unknown command %q; %s", args[0], usage)
	}
	return nil
}
