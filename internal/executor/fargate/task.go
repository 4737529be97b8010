package fargate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/sakif/fargate-executor/internal/apperror"
	"github.com/sakif/fargate-executor/internal/executor"
)

// TaskHandle identifies one launched task for the duration of an execution.
type TaskHandle struct {
	ARN string
	// ID is the last segment of the ARN; the awslogs driver names streams after it.
	ID string
}

// ContainerStatus is the terminal state of the task's container.
type ContainerStatus struct {
	// ExitCode is -1 when ECS reports no exit code (the container never started).
	ExitCode      int
	Reason        string
	StoppedReason string
}

const statusStopped = "STOPPED"

// RegisterTaskDefinition registers a new revision of the task family whose
// single container runs blocks through /bin/sh. Every call registers a new
// revision; nothing is reused from previous executions.
func (e *Executor) RegisterTaskDefinition(ctx context.Context, blocks []executor.CodeBlock) (string, error) {
	script, err := executor.BuildScript(blocks, e.config.PipDependencies)
	if err != nil {
		return "", err
	}

	out, err := e.clients.ECS.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(e.config.Family),
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		Cpu:                     aws.String(e.config.CPU),
		Memory:                  aws.String(e.config.Memory),
		ExecutionRoleArn:        aws.String(e.roleARN),
		ContainerDefinitions: []ecstypes.ContainerDefinition{
			{
				Name:        aws.String(e.config.ContainerName),
				Image:       aws.String(e.config.Image),
				Essential:   aws.Bool(true),
				Command:     []string{"/bin/sh", "-c", script},
				Environment: environment(e.config.Environment),
				LogConfiguration: &ecstypes.LogConfiguration{
					LogDriver: ecstypes.LogDriverAwslogs,
					Options: map[string]string{
						"awslogs-group":         e.config.LogGroup,
						"awslogs-region":        e.config.Region,
						"awslogs-stream-prefix": e.config.LogStreamPrefix,
						"awslogs-create-group":  "true",
					},
				},
			},
		},
	})
	if err != nil {
		return "", apperror.RemoteExecution("registering task definition "+e.config.Family, err)
	}
	if out.TaskDefinition == nil || out.TaskDefinition.TaskDefinitionArn == nil {
		return "", apperror.RemoteExecution("registering task definition "+e.config.Family+": no ARN returned", nil)
	}

	arn := aws.ToString(out.TaskDefinition.TaskDefinitionArn)
	e.logger.Debug("registered task definition", slog.String("arn", arn), slog.Int("blocks", len(blocks)))
	return arn, nil
}

// environment converts the configured variables to ECS key/value pairs,
// sorted by name so that registrations are deterministic.
func environment(vars map[string]string) []ecstypes.KeyValuePair {
	if len(vars) == 0 {
		return nil
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)

	pairs := make([]ecstypes.KeyValuePair, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, ecstypes.KeyValuePair{
			Name:  aws.String(name),
			Value: aws.String(vars[name]),
		})
	}
	return pairs
}

// Run launches one task of taskDefinitionARN on the managed cluster.
func (e *Executor) Run(ctx context.Context, taskDefinitionARN string) (TaskHandle, error) {
	assignPublicIP := ecstypes.AssignPublicIpDisabled
	if e.config.AssignPublicIP {
		assignPublicIP = ecstypes.AssignPublicIpEnabled
	}

	out, err := e.clients.ECS.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(e.config.ClusterName),
		TaskDefinition: aws.String(taskDefinitionARN),
		LaunchType:     ecstypes.LaunchTypeFargate,
		Count:          aws.Int32(1),
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        e.config.Subnets,
				SecurityGroups: e.config.SecurityGroups,
				AssignPublicIp: assignPublicIP,
			},
		},
	})
	if err != nil {
		return TaskHandle{}, apperror.RemoteExecution("running task", err)
	}
	if len(out.Failures) > 0 {
		return TaskHandle{}, apperror.RemoteExecution("running task: "+describeFailures(out.Failures), nil)
	}
	if len(out.Tasks) == 0 || out.Tasks[0].TaskArn == nil {
		return TaskHandle{}, apperror.RemoteExecution("running task: no task returned", nil)
	}

	arn := aws.ToString(out.Tasks[0].TaskArn)
	e.logger.Info("task started", slog.String("state", "RUNNING"), slog.String("task", arn))
	return TaskHandle{ARN: arn, ID: taskID(arn)}, nil
}

func describeFailures(failures []ecstypes.Failure) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		part := aws.ToString(f.Reason)
		if detail := aws.ToString(f.Detail); detail != "" {
			part += " (" + detail + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

// taskID extracts the ID from arn:aws:ecs:region:account:task/cluster/id
// (or the older task/id form).
func taskID(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}

// =========================================================================
// WAITING FOR A TASK
// =========================================================================
//
// ECS has no "wait until stopped" call that fits a request lifetime, so the
// executor polls DescribeTasks on a ticker. Two deadlines are in play:
//
//	ctx         the caller's (an HTTP request, a CLI signal handler)
//	waitCtx     ctx plus Config.Timeout, owned by AwaitCompletion
//
// They fail differently. When waitCtx expires on its own the task ran too
// long and the caller gets apperror.ErrTimeout (a 504 at the HTTP layer).
// When ctx itself is done nobody is waiting for the result any more, so
// the caller's own ctx.Err() is returned unchanged.
//
// Either way the task is still running on Fargate. It is stopped before
// returning, using a context detached from the one that just ended.

// stopTimeout bounds the StopTask call made after a wait is abandoned.
const stopTimeout = 10 * time.Second

// AwaitCompletion polls DescribeTasks every PollInterval until the task is
// STOPPED. The wait is bounded by Config.Timeout: hitting it returns an
// apperror.ErrTimeout error, while cancelling ctx returns ctx.Err().
// In both cases the task is asked to stop.
func (e *Executor) AwaitCompletion(ctx context.Context, handle TaskHandle) (ContainerStatus, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		status, done, err := e.describeTask(waitCtx, handle)
		if err != nil {
			if waitCtx.Err() != nil {
				return ContainerStatus{}, e.waitError(ctx, handle)
			}
			return ContainerStatus{}, err
		}
		if done {
			return status, nil
		}

		select {
		case <-waitCtx.Done():
			return ContainerStatus{}, e.waitError(ctx, handle)
		case <-ticker.C:
		}
	}
}

func (e *Executor) waitError(ctx context.Context, handle TaskHandle) error {
	if err := ctx.Err(); err != nil {
		e.stopTask(ctx, handle, "execution cancelled by caller")
		return err
	}
	e.logger.Warn("task did not stop in time",
		slog.String("task", handle.ARN),
		slog.Duration("timeout", e.config.Timeout),
	)
	e.stopTask(ctx, handle, fmt.Sprintf("execution exceeded %s", e.config.Timeout))
	return apperror.Timeout(fmt.Sprintf("task %s did not stop within %s", handle.ID, e.config.Timeout))
}

// stopTask asks ECS to stop an abandoned task. A failure is logged only:
// the wait has already failed and that error is what the caller needs.
func (e *Executor) stopTask(ctx context.Context, handle TaskHandle, reason string) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	_, err := e.clients.ECS.StopTask(stopCtx, &ecs.StopTaskInput{
		Cluster: aws.String(e.config.ClusterName),
		Task:    aws.String(handle.ARN),
		Reason:  aws.String(reason),
	})
	if err != nil {
		e.logger.Error("failed to stop task",
			slog.String("task", handle.ARN),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.Info("stopped task", slog.String("task", handle.ARN), slog.String("reason", reason))
}

// describeTask reports the container status and whether the task has stopped.
func (e *Executor) describeTask(ctx context.Context, handle TaskHandle) (ContainerStatus, bool, error) {
	out, err := e.clients.ECS.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(e.config.ClusterName),
		Tasks:   []string{handle.ARN},
	})
	if err != nil {
		return ContainerStatus{}, false, apperror.RemoteExecution("describing task "+handle.ID, err)
	}
	if len(out.Tasks) == 0 {
		if len(out.Failures) > 0 {
			return ContainerStatus{}, false, apperror.RemoteExecution(
				"describing task "+handle.ID+": "+describeFailures(out.Failures), nil)
		}
		return ContainerStatus{}, false, apperror.RemoteExecution("describing task "+handle.ID+": task not found", nil)
	}

	task := out.Tasks[0]
	container, ok := e.findContainer(task.Containers)

	stopped := aws.ToString(task.LastStatus) == statusStopped
	// Some responses omit lastStatus; an exit code means the container is done.
	if task.LastStatus == nil && ok && container.ExitCode != nil {
		stopped = true
	}
	if !stopped {
		e.logger.Debug("task still running",
			slog.String("task", handle.ID),
			slog.String("status", aws.ToString(task.LastStatus)),
		)
		return ContainerStatus{}, false, nil
	}

	status := ContainerStatus{
		ExitCode:      -1,
		StoppedReason: aws.ToString(task.StoppedReason),
	}
	if ok {
		if container.ExitCode != nil {
			status.ExitCode = int(*container.ExitCode)
		}
		status.Reason = aws.ToString(container.Reason)
	}
	return status, true, nil
}

// findContainer prefers the configured container name and falls back to the first.
func (e *Executor) findContainer(containers []ecstypes.Container) (ecstypes.Container, bool) {
	for _, c := range containers {
		if aws.ToString(c.Name) == e.config.ContainerName {
			return c, true
		}
	}
	if len(containers) > 0 {
		return containers[0], true
	}
	return ecstypes.Container{}, false
}
