package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/citypulse/weather-pipeline/internal/bootstrap"
)

func main() {
	logger := bootstrap.InitLogger()
	if err := run(context.Background(), logger); err != nil {
		logger.Error("citypulse exited", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if err := bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting citypulse",
		"environment", cfg.Environment(),
		"services", bootstrap.GetEnabledServices(&cfg),
	)

	db, err := bootstrap.ConnectDB(cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "database", db)

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "migrations disabled, assuming schema is current")
	}

	rdb, err := bootstrap.ConnectRedis(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "redis", rdb)

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          db,
		RedisClient: rdb,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          db,
		RedisClient: rdb,
		Logger:      logger,
	})
}

func closeQuietly(logger *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("close "+name+" failed", "error", err)
	}
}
