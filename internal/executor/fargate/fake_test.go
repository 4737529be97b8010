package fargate

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/smithy-go"
)

// =========================================================================
// FAKE AWS CLIENTS
// =========================================================================
//
// Each fake records the inputs it received and replays canned outputs, the
// same way the handler tests use a MockExecutor instead of Docker.

const (
	testRoleARN    = "arn:aws:iam::123456789012:role/ecsTaskExecutionRoleAutoGenFargate"
	testClusterARN = "arn:aws:ecs:us-west-2:123456789012:cluster/autogen-executor-cluster"
	testTaskDefARN = "arn:aws:ecs:us-west-2:123456789012:task-definition/test:1"
	testTaskARN    = "arn:aws:ecs:us-west-2:123456789012:task/autogen-executor-cluster/0123456789abcdef"
)

type fakeIAM struct {
	roleExists      bool
	getRoleErr      error
	createRoleErr   error
	attachPolicyErr error
	// existsAfterCreateErr simulates another process creating the role first.
	existsAfterCreateErr bool

	getRoleCalls    int
	createRoleCalls []*iam.CreateRoleInput
	attachCalls     []*iam.AttachRolePolicyInput
}

func (f *fakeIAM) GetRole(_ context.Context, in *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	f.getRoleCalls++
	if f.getRoleErr != nil {
		return nil, f.getRoleErr
	}
	if !f.roleExists {
		return nil, apiError("NoSuchEntity", "Role not found")
	}
	return &iam.GetRoleOutput{Role: &iamtypes.Role{RoleName: in.RoleName, Arn: aws.String(testRoleARN)}}, nil
}

func (f *fakeIAM) CreateRole(_ context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	f.createRoleCalls = append(f.createRoleCalls, in)
	if f.createRoleErr != nil {
		if f.existsAfterCreateErr {
			f.roleExists = true
		}
		return nil, f.createRoleErr
	}
	f.roleExists = true
	return &iam.CreateRoleOutput{Role: &iamtypes.Role{RoleName: in.RoleName, Arn: aws.String(testRoleARN)}}, nil
}

func (f *fakeIAM) AttachRolePolicy(_ context.Context, in *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	f.attachCalls = append(f.attachCalls, in)
	if f.attachPolicyErr != nil {
		return nil, f.attachPolicyErr
	}
	return &iam.AttachRolePolicyOutput{}, nil
}

type fakeECS struct {
	clusters         []ecstypes.Cluster
	createClusterErr error
	registerErr      error
	runOut           *ecs.RunTaskOutput
	runErr           error
	// describeOuts are returned in order; the last one repeats.
	describeOuts []*ecs.DescribeTasksOutput
	describeErr  error
	stopErr      error

	createClusterCalls []*ecs.CreateClusterInput
	registerCalls      []*ecs.RegisterTaskDefinitionInput
	runCalls           []*ecs.RunTaskInput
	describeCalls      int
	stopCalls          []*ecs.StopTaskInput
}

func (f *fakeECS) DescribeClusters(_ context.Context, _ *ecs.DescribeClustersInput, _ ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error) {
	return &ecs.DescribeClustersOutput{Clusters: f.clusters}, nil
}

func (f *fakeECS) CreateCluster(_ context.Context, in *ecs.CreateClusterInput, _ ...func(*ecs.Options)) (*ecs.CreateClusterOutput, error) {
	f.createClusterCalls = append(f.createClusterCalls, in)
	if f.createClusterErr != nil {
		return nil, f.createClusterErr
	}
	return &ecs.CreateClusterOutput{Cluster: &ecstypes.Cluster{
		ClusterName: in.ClusterName,
		ClusterArn:  aws.String(testClusterARN),
		Status:      aws.String("ACTIVE"),
	}}, nil
}

func (f *fakeECS) RegisterTaskDefinition(_ context.Context, in *ecs.RegisterTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error) {
	f.registerCalls = append(f.registerCalls, in)
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &ecs.RegisterTaskDefinitionOutput{TaskDefinition: &ecstypes.TaskDefinition{
		TaskDefinitionArn: aws.String(testTaskDefARN),
	}}, nil
}

func (f *fakeECS) RunTask(_ context.Context, in *ecs.RunTaskInput, _ ...func(*ecs.Options)) (*ecs.RunTaskOutput, error) {
	f.runCalls = append(f.runCalls, in)
	if f.runErr != nil {
		return nil, f.runErr
	}
	if f.runOut != nil {
		return f.runOut, nil
	}
	return &ecs.RunTaskOutput{Tasks: []ecstypes.Task{{TaskArn: aws.String(testTaskARN)}}}, nil
}

func (f *fakeECS) StopTask(_ context.Context, in *ecs.StopTaskInput, _ ...func(*ecs.Options)) (*ecs.StopTaskOutput, error) {
	f.stopCalls = append(f.stopCalls, in)
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return &ecs.StopTaskOutput{Task: &ecstypes.Task{TaskArn: in.Task, LastStatus: aws.String("STOPPING")}}, nil
}

func (f *fakeECS) DescribeTasks(_ context.Context, _ *ecs.DescribeTasksInput, _ ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error) {
	f.describeCalls++
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if len(f.describeOuts) == 0 {
		return &ecs.DescribeTasksOutput{}, nil
	}
	i := f.describeCalls - 1
	if i >= len(f.describeOuts) {
		i = len(f.describeOuts) - 1
	}
	return f.describeOuts[i], nil
}

type fakeLogs struct {
	// pages are returned in order; past the end an empty page echoes the token.
	pages []*cloudwatchlogs.GetLogEventsOutput
	err   error

	calls []*cloudwatchlogs.GetLogEventsInput
}

func (f *fakeLogs) GetLogEvents(_ context.Context, in *cloudwatchlogs.GetLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	i := len(f.calls) - 1
	if i >= len(f.pages) {
		return &cloudwatchlogs.GetLogEventsOutput{NextForwardToken: in.NextToken}, nil
	}
	return f.pages[i], nil
}

// =========================================================================
// HELPERS
// =========================================================================

func apiError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message}
}

func activeCluster() []ecstypes.Cluster {
	return []ecstypes.Cluster{{ClusterArn: aws.String(testClusterARN), Status: aws.String("ACTIVE")}}
}

func stoppedTask(exitCode int32, reason string) *ecs.DescribeTasksOutput {
	container := ecstypes.Container{Name: aws.String("executor"), ExitCode: aws.Int32(exitCode)}
	if reason != "" {
		container.Reason = aws.String(reason)
	}
	return &ecs.DescribeTasksOutput{Tasks: []ecstypes.Task{{
		TaskArn:    aws.String(testTaskARN),
		LastStatus: aws.String("STOPPED"),
		Containers: []ecstypes.Container{container},
	}}}
}

func runningTask() *ecs.DescribeTasksOutput {
	return &ecs.DescribeTasksOutput{Tasks: []ecstypes.Task{{
		TaskArn:    aws.String(testTaskARN),
		LastStatus: aws.String("RUNNING"),
		Containers: []ecstypes.Container{{Name: aws.String("executor")}},
	}}}
}

func logPage(token string, messages ...string) *cloudwatchlogs.GetLogEventsOutput {
	events := make([]cwltypes.OutputLogEvent, 0, len(messages))
	for i, m := range messages {
		events = append(events, cwltypes.OutputLogEvent{Message: aws.String(m), Timestamp: aws.Int64(int64(i))})
	}
	return &cloudwatchlogs.GetLogEventsOutput{Events: events, NextForwardToken: aws.String(token)}
}

func testConfig() Config {
	return Config{
		Image:          "python:3.11",
		Subnets:        []string{"subnet-1", "subnet-2"},
		SecurityGroups: []string{"sg-1"},
		Region:         "us-west-2",
		PollInterval:   time.Millisecond,
		Timeout:        time.Second,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakes struct {
	iam  *fakeIAM
	ecs  *fakeECS
	logs *fakeLogs
}

// newFakes returns clients for an account where the role and cluster already exist.
func newFakes() *fakes {
	return &fakes{
		iam:  &fakeIAM{roleExists: true},
		ecs:  &fakeECS{clusters: activeCluster()},
		logs: &fakeLogs{},
	}
}

func (f *fakes) clients() Clients {
	return Clients{IAM: f.iam, ECS: f.ecs, Logs: f.logs}
}
