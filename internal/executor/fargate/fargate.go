// Package fargate runs code blocks as one-off ECS Fargate tasks.
//
// One batch of code blocks becomes one task:
//
//	EnsureRole / EnsureCluster   (once, in New)
//	RegisterTaskDefinition       (fresh revision per batch)
//	Run                          (RunTask, launch type FARGATE)
//	AwaitCompletion              (DescribeTasks until STOPPED, bounded by Config.Timeout)
//	FetchLogs                    (CloudWatch Logs, awslogs driver stream)
//
// The container's exit code becomes the batch's exit code. A non-zero exit
// is returned as a normal result; only AWS-side failures are errors.
package fargate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/fargate-executor/internal/executor"
)

// Executor implements the executor.Executor interface using ECS Fargate.
type Executor struct {
	clients Clients
	config  Config
	logger  *slog.Logger

	roleARN    string
	clusterARN string
}

var _ executor.Executor = (*Executor)(nil)

// New validates the configuration and provisions the execution role and
// cluster. Both steps are idempotent: existing resources are reused.
func New(ctx context.Context, cfg Config, clients Clients, logger *slog.Logger) (*Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	if cfg.Region == "" {
		cfg.Region = clients.Region
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Executor{
		clients: clients,
		config:  cfg,
		logger:  logger.With(slog.String("cluster", cfg.ClusterName)),
	}

	e.logger.Info("provisioning fargate executor",
		slog.String("role", cfg.RoleName),
		slog.String("image", cfg.Image),
		slog.String("region", cfg.Region),
	)

	roleARN, err := e.EnsureRole(ctx)
	if err != nil {
		return nil, err
	}
	e.roleARN = roleARN

	clusterARN, err := e.EnsureCluster(ctx)
	if err != nil {
		return nil, err
	}
	e.clusterARN = clusterARN

	return e, nil
}

// NewFromAWS builds real AWS clients for cfg.Region and calls New.
func NewFromAWS(ctx context.Context, cfg Config, logger *slog.Logger) (*Executor, error) {
	clients, err := NewClients(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, clients, logger)
}

// Config returns a copy of the effective configuration.
func (e *Executor) Config() Config {
	return e.config.withDefaults()
}

// RoleARN is the execution role resolved during New.
func (e *Executor) RoleARN() string { return e.roleARN }

// ClusterARN is the cluster resolved during New.
func (e *Executor) ClusterARN() string { return e.clusterARN }

// Execute runs req.Blocks as one Fargate task.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	return e.ExecuteCodeBlocks(ctx, req.Blocks)
}

// ExecuteCodeBlocks registers a task definition for blocks, runs it, waits
// for it to stop and returns the container exit code with the task's logs.
func (e *Executor) ExecuteCodeBlocks(ctx context.Context, blocks []executor.CodeBlock) (*executor.ExecutionResult, error) {
	start := time.Now()

	taskDefARN, err := e.RegisterTaskDefinition(ctx, blocks)
	if err != nil {
		return nil, err
	}

	handle, err := e.Run(ctx, taskDefARN)
	if err != nil {
		return nil, err
	}

	status, err := e.AwaitCompletion(ctx, handle)
	if err != nil {
		return nil, err
	}

	output, err := e.FetchLogs(ctx, handle)
	if err != nil {
		return nil, err
	}

	// Surface the container's own reason (e.g. OOM, image pull failure) when
	// the logs do not already explain the failure.
	if status.ExitCode != 0 && status.Reason != "" && !strings.Contains(output, status.Reason) {
		if output != "" && !strings.HasSuffix(output, "\n") {
			output += "\n"
		}
		output += status.Reason
	}

	state := "STOPPED_SUCCESS"
	if status.ExitCode != 0 {
		state = "STOPPED_FAILURE"
	}
	e.logger.Info("task finished",
		slog.String("state", state),
		slog.String("task", handle.ARN),
		slog.Int("exitCode", status.ExitCode),
		slog.Duration("duration", time.Since(start)),
	)

	return &executor.ExecutionResult{
		ExitCode:          status.ExitCode,
		Output:            output,
		TaskARN:           handle.ARN,
		TaskDefinitionARN: taskDefARN,
		StoppedReason:     status.StoppedReason,
		Duration:          time.Since(start),
	}, nil
}

// wrapf prefixes err with the package name and the failed step.
func wrapf(err error, format string, args ...any) error {
	return fmt.Errorf("fargate: "+format+": %w", append(args, err)...)
}
