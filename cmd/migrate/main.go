package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/farmacias-vallenar/backoffice-service/internal/config"
	"github.com/farmacias-vallenar/backoffice-service/internal/logging"
	"github.com/farmacias-vallenar/backoffice-service/migrations"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, "backoffice-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	runner, err := migrations.NewRunner(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to prepare migrations", zap.Error(err))
	}
	defer runner.Close()

	switch *command {
	case "up":
		if err := runner.Up(*steps); err != nil {
			logger.Fatal("migration up failed", zap.Error(err))
		}
		fmt.Println("migrations applied successfully")
	case "down":
		if err := runner.Down(*steps); err != nil {
			logger.Fatal("migration down failed", zap.Error(err))
		}
		fmt.Println("migrations rolled back successfully")
	case "version":
		v, dirty, err := runner.Version()
		if err != nil {
			logger.Fatal("failed to get version", zap.Error(err))
		}
		if dirty {
			fmt.Printf("database is in a dirty state (version %d)\n", v)
			os.Exit(1)
		}
		fmt.Printf("current migration version: %d\n", v)
	case "force":
		if *version == 0 {
			logger.Fatal("version required for force command (use -version flag)")
		}
		if err := runner.Force(int(*version)); err != nil {
			logger.Fatal("force migration failed", zap.Error(err))
		}
		fmt.Printf("forced database to version %d\n", *version)
	default:
		logger.Fatal("unknown command (supported: up, down, version, force)", zap.String("command", *command))
	}
}
