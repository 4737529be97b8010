// Package service contains the business logic layer of the application.
//
// Handlers parse HTTP, the service enforces the rules for a batch and records
// its outcome, and the repository persists that record. The service takes
// interfaces for both the executor and the repository, so the CLI and tests
// drive it without a network or a database.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/fargate-executor/internal/apperror"
	"github.com/sakif/fargate-executor/internal/executor"
	"github.com/sakif/fargate-executor/internal/model"
	"github.com/sakif/fargate-executor/internal/repository"
)

// Validation limits for a single batch.
const (
	MaxBlocks        = 20
	MaxCodeLength    = 100000 // ~100KB across all blocks
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ExecutionService validates batches, runs them on an executor and keeps
// a history of every run.
type ExecutionService struct {
	exec    executor.Executor
	backend string
	repo    repository.ExecutionRepository
	logger  *slog.Logger
}

// NewExecutionService creates a new ExecutionService. backend is the name
// recorded with each execution ("fargate" or "docker").
func NewExecutionService(exec executor.Executor, backend string, repo repository.ExecutionRepository, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		exec:    exec,
		backend: backend,
		repo:    repo,
		logger:  logger,
	}
}

// Validate checks a batch against the limits above without running it.
func Validate(req executor.ExecutionRequest) error {
	if len(req.Blocks) == 0 {
		return apperror.ValidationFailed("blocks", "at least one code block is required")
	}
	if len(req.Blocks) > MaxBlocks {
		return apperror.ValidationFailed("blocks",
			fmt.Sprintf("a batch may contain at most %d code blocks", MaxBlocks))
	}

	total := 0
	for i, block := range req.Blocks {
		if strings.TrimSpace(block.Code) == "" {
			return apperror.ValidationFailed(fmt.Sprintf("blocks[%d].code", i), "code is required")
		}
		if _, ok := executor.LookupInterpreter(block.Language); !ok {
			return apperror.ValidationFailed(fmt.Sprintf("blocks[%d].language", i),
				fmt.Sprintf("unsupported language %q", block.Language))
		}
		total += len(block.Code)
	}
	if total > MaxCodeLength {
		return apperror.ValidationFailed("blocks",
			fmt.Sprintf("code must be %d characters or less in total", MaxCodeLength))
	}
	return nil
}

// Execute runs the batch and records the outcome. subject identifies the
// caller (the JWT subject) and may be empty.
//
// A batch that ran but exited non-zero is recorded as failed and returned
// without an error. An executor error is recorded with status "error" and
// then returned so the handler can map it to a status code.
func (s *ExecutionService) Execute(ctx context.Context, subject string, req executor.ExecutionRequest) (*model.Execution, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	languages := make([]string, 0, len(req.Blocks))
	for _, block := range req.Blocks {
		languages = append(languages, strings.ToLower(strings.TrimSpace(block.Language)))
	}

	record := &model.Execution{
		Backend:    s.backend,
		Languages:  languages,
		BlockCount: len(req.Blocks),
		Subject:    subject,
	}

	start := time.Now()
	result, execErr := s.exec.Execute(ctx, req)
	if execErr != nil {
		record.Status = model.StatusError
		record.ExitCode = -1
		record.Error = execErr.Error()
		record.Duration = time.Since(start)

		s.logger.Error("execution failed",
			slog.String("backend", s.backend),
			slog.Int("blocks", len(req.Blocks)),
			slog.String("error", execErr.Error()),
		)

		// The caller may have gone away; the history entry is still wanted.
		if err := s.repo.Create(context.WithoutCancel(ctx), record); err != nil {
			s.logger.Error("failed to record execution", slog.String("error", err.Error()))
		}
		return nil, execErr
	}

	record.ExitCode = result.ExitCode
	record.Output = result.Output
	record.TaskARN = result.TaskARN
	record.Duration = result.Duration
	if record.Duration == 0 {
		record.Duration = time.Since(start)
	}
	record.Status = model.StatusSucceeded
	if result.ExitCode != 0 {
		record.Status = model.StatusFailed
	}

	if err := s.repo.Create(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Error("failed to record execution",
			slog.String("task", result.TaskARN),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("recording execution: %w", err)
	}

	s.logger.Info("execution recorded",
		slog.String("id", record.ID),
		slog.String("status", record.Status),
		slog.Int("exit_code", record.ExitCode),
		slog.Duration("duration", record.Duration),
	)

	return record, nil
}

// Get returns one recorded execution.
// Returns apperror.ErrNotFound if it doesn't exist.
func (s *ExecutionService) Get(ctx context.Context, id string) (*model.Execution, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "execution ID is required")
	}

	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to get execution",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}
	return e, nil
}

// List returns recorded executions, newest first.
// limit is clamped to 1-100 (default 20) and a negative offset is treated as 0.
func (s *ExecutionService) List(ctx context.Context, limit, offset int) ([]model.Execution, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	executions, err := s.repo.List(ctx, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("failed to list executions", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	return executions, nil
}
