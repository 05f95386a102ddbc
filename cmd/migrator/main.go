package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"thirdcoast.systems/scanwatch/internal/application"
	"thirdcoast.systems/scanwatch/internal/config"
)

func main() {
	startupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conf, err := config.LoadConfig(startupCtx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	application.SetupLogging(conf.LogLevel, conf.LogFormat, "migrator")
	slog.Info("Starting database migrator", "driver", conf.StoreDriver)

	// OpenStore connects with retry and runs the embedded migrations,
	// honouring GOOSE_UP_TO and GOOSE_DOWN_TO.
	dbc, err := application.OpenStore(startupCtx, *conf)
	if err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	defer dbc.Close()

	slog.Info("Database migrations completed successfully")
}
