// Package docker runs batches of code blocks in a local Docker container.
//
// It generates the same script as the Fargate backend, so a batch can be
// tried locally before it is sent to AWS.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/fargate-executor/internal/executor"
)

// timeoutExitCode matches the exit status of the unix timeout command.
const timeoutExitCode = 124

// Executor implements the executor.Executor interface using Docker.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
}

var _ executor.Executor = (*Executor)(nil)

// New creates a new Docker Executor and makes sure the image is available.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	io.Copy(io.Discard, reader)
	logger.Info("docker image is ready")

	return &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
	}, nil
}

// Close releases the docker client.
func (e *Executor) Close() error {
	return e.cli.Close()
}

// Execute runs the batch in a fresh container and removes it afterwards.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	script, err := executor.BuildScript(req.Blocks, e.config.PipDependencies)
	if err != nil {
		return nil, err
	}

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:   e.config.MemoryLimit,
			NanoCPUs: int64(e.config.CPULimit * 1e9),
		},
	}
	if e.config.NetworkDisabled {
		hostConfig.NetworkMode = "none"
	}

	resp, err := e.cli.ContainerCreate(ctx, &container.Config{
		Image: e.config.Image,
		Cmd:   []string{"/bin/sh", "-c", script},
		Env:   envList(e.config.Environment),
		Tty:   false,
	}, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("ContainerCreate failed: %w", err)
	}
	containerID := resp.ID

	// Always ensure we clean up the container
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := e.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{Force: true})
		if err != nil {
			e.logger.Error("failed to remove container", slog.String("id", containerID), slog.String("error", err.Error()))
		}
	}()

	executeCtx, executeCancel := context.WithTimeout(ctx, e.config.Timeout)
	defer executeCancel()

	if err := e.cli.ContainerStart(executeCtx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("ContainerStart failed: %w", err)
	}

	e.logger.Info("executing batch in docker",
		slog.String("id", containerID),
		slog.Int("blocks", len(req.Blocks)),
	)

	statusCh, errCh := e.cli.ContainerWait(executeCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int
	timedOut := false

	select {
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case err := <-errCh:
		if executeCtx.Err() == nil {
			return nil, fmt.Errorf("ContainerWait failed: %w", err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		exitCode = timeoutExitCode
		timedOut = true
	}

	output, err := e.logs(containerID)
	if err != nil {
		return nil, err
	}
	if timedOut {
		output += "\nExecution timed out.\n"
	}

	return &executor.ExecutionResult{
		ExitCode: exitCode,
		Output:   output,
		Duration: time.Since(start),
	}, nil
}

// logs returns stdout and stderr interleaved in the order they were written,
// which is what CloudWatch shows for a Fargate task.
func (e *Executor) logs(containerID string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reader, err := e.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("ContainerLogs failed: %w", err)
	}
	defer reader.Close()

	var combined bytes.Buffer
	// Use stdcopy to demultiplex the docker stream header framing
	if _, err := stdcopy.StdCopy(&combined, &combined, reader); err != nil {
		return "", fmt.Errorf("reading container logs: %w", err)
	}
	return combined.String(), nil
}

// envList formats the environment as KEY=value entries, sorted by key.
func envList(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}
