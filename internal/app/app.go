// Package app builds the pieces both binaries share: the logger and the
// configured executor backend.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sakif/fargate-executor/internal/config"
	"github.com/sakif/fargate-executor/internal/executor"
	"github.com/sakif/fargate-executor/internal/executor/docker"
	"github.com/sakif/fargate-executor/internal/executor/fargate"
)

// NewLogger returns a text logger on w at the configured level.
func NewLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

// NewExecutor builds the backend named by cfg.Backend. The returned close
// function releases backend resources and is never nil.
//
// Building the Fargate backend provisions the IAM role and ECS cluster.
func NewExecutor(ctx context.Context, cfg config.Config, logger *slog.Logger) (executor.Executor, func() error, error) {
	switch cfg.Backend {
	case config.BackendFargate:
		exec, err := fargate.NewFromAWS(ctx, cfg.Fargate, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating fargate executor: %w", err)
		}
		return exec, func() error { return nil }, nil

	case config.BackendDocker:
		exec, err := docker.New(cfg.Docker, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating docker executor: %w", err)
		}
		return exec, exec.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Fatal logs err and exits with status 1.
func Fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
