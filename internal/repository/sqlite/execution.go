package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/fargate-executor/internal/apperror"
	"github.com/sakif/fargate-executor/internal/model"
	"github.com/sakif/fargate-executor/internal/repository"
)

var _ repository.ExecutionRepository = (*DB)(nil)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

const executionColumns = `id, backend, status, exit_code, output, error, task_arn,
	languages, block_count, subject, duration_ms, created_at`

// Create inserts a new execution record, assigning its ID (an xid, which
// sorts by creation time) and CreatedAt when unset.
func (db *DB) Create(ctx context.Context, e *model.Execution) error {
	e.ID = xid.New().String()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Backend,
		e.Status,
		e.ExitCode,
		e.Output,
		e.Error,
		e.TaskARN,
		strings.Join(e.Languages, ","),
		e.BlockCount,
		e.Subject,
		e.Duration.Milliseconds(),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating execution: %w", err)
	}
	return nil
}

// GetByID returns one execution, or an apperror.ErrNotFound error.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Execution, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = ?`,
		id,
	)

	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("execution", id)
		}
		return nil, fmt.Errorf("sqlite: getting execution %s: %w", id, err)
	}
	return e, nil
}

// List returns executions newest first. Limit defaults to 20 and is capped at 100.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Execution, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(opts.Offset, 0)

	// id breaks ties between executions recorded in the same instant.
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+executionColumns+`
		 FROM executions
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing executions: %w", err)
	}
	defer rows.Close()

	executions := make([]model.Execution, 0, limit)
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning execution row: %w", err)
		}
		executions = append(executions, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating executions: %w", err)
	}

	return executions, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(s scanner) (*model.Execution, error) {
	var (
		e          model.Execution
		languages  string
		durationMS int64
	)
	if err := s.Scan(
		&e.ID,
		&e.Backend,
		&e.Status,
		&e.ExitCode,
		&e.Output,
		&e.Error,
		&e.TaskARN,
		&languages,
		&e.BlockCount,
		&e.Subject,
		&durationMS,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}

	e.Languages = []string{}
	if languages != "" {
		e.Languages = strings.Split(languages, ",")
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	return &e, nil
}
