// Command server exposes the execution API over HTTP.
//
// Configuration comes from the file named by CONFIG_FILE (optional) and
// environment variables; see internal/config.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/fargate-executor/internal/app"
	"github.com/sakif/fargate-executor/internal/config"
	"github.com/sakif/fargate-executor/internal/server"
)

func main() {
	bootstrap := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		app.Fatal(bootstrap, "failed to load configuration", err)
	}

	logger := app.NewLogger(os.Stdout, cfg)

	// Make sure the data directory exists (like `mkdir -p`).
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// For Fargate this provisions the role and cluster, so a broken AWS
	// setup fails at start-up rather than on the first request.
	exec, closeExec, err := app.NewExecutor(context.Background(), cfg, logger)
	if err != nil {
		app.Fatal(logger, "failed to initialise executor", err)
	}
	defer closeExec()

	timeout := cfg.Fargate.Timeout
	if cfg.Backend == config.BackendDocker {
		timeout = cfg.Docker.Timeout
	}

	srv, err := server.New(server.Config{
		Port:             cfg.Port,
		DBPath:           cfg.DBPath,
		Backend:          cfg.Backend,
		JWTSecret:        cfg.JWTSecret,
		AllowedOrigins:   cfg.AllowedOrigins,
		ExecutionTimeout: timeout,
	}, logger, exec)
	if err != nil {
		app.Fatal(logger, "failed to create server", err)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
