package repository

import (
	"context"

	"github.com/sakif/fargate-executor/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ExecutionRepository stores the history of executed batches.
// Records are append-only.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *model.Execution) error
	GetByID(ctx context.Context, id string) (*model.Execution, error)
	List(ctx context.Context, opts ListOptions) ([]model.Execution, error)
}
