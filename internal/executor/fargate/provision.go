package fargate

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/sakif/fargate-executor/internal/apperror"
)

const (
	// executionPolicyARN lets ECS pull images and write to CloudWatch Logs.
	executionPolicyARN = "arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"

	ecsTasksTrustPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"Service": "ecs-tasks.amazonaws.com"},
      "Action": "sts:AssumeRole"
    }
  ]
}`

	capacityFargate     = "FARGATE"
	capacityFargateSpot = "FARGATE_SPOT"
)

// EnsureRole returns the ARN of the execution role, creating it and
// attaching the ECS task execution policy when it does not exist yet.
func (e *Executor) EnsureRole(ctx context.Context) (string, error) {
	name := e.config.RoleName

	out, err := e.clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err == nil {
		e.logger.Debug("using existing execution role", slog.String("role", name))
		return roleARN(out.Role), nil
	}
	if !hasErrorCode(err, "NoSuchEntity") {
		return "", wrapf(err, "getting role %s", name)
	}

	e.logger.Info("creating execution role", slog.String("role", name))
	created, err := e.clients.IAM.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(ecsTasksTrustPolicy),
		Description:              aws.String("Execution role for Fargate code execution tasks"),
	})
	if err != nil {
		// Created concurrently by another process.
		if hasErrorCode(err, "EntityAlreadyExists") {
			out, getErr := e.clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
			if getErr != nil {
				return "", wrapf(getErr, "getting role %s", name)
			}
			return roleARN(out.Role), nil
		}
		return "", apperror.Provisioning("role "+name, err)
	}

	if _, err := e.clients.IAM.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(name),
		PolicyArn: aws.String(executionPolicyARN),
	}); err != nil {
		return "", apperror.Provisioning("role policy for "+name, err)
	}

	return roleARN(created.Role), nil
}

func roleARN(r *iamtypes.Role) string {
	if r == nil {
		return ""
	}
	return aws.ToString(r.Arn)
}

// EnsureCluster returns the ARN of the cluster, creating it with both the
// FARGATE and FARGATE_SPOT capacity providers when no active cluster exists.
func (e *Executor) EnsureCluster(ctx context.Context) (string, error) {
	name := e.config.ClusterName

	out, err := e.clients.ECS.DescribeClusters(ctx, &ecs.DescribeClustersInput{
		Clusters: []string{name},
	})
	if err != nil {
		return "", wrapf(err, "describing cluster %s", name)
	}
	for _, c := range out.Clusters {
		// Deleted clusters linger as INACTIVE and cannot run tasks.
		if aws.ToString(c.Status) == "INACTIVE" {
			continue
		}
		e.logger.Debug("using existing cluster", slog.String("arn", aws.ToString(c.ClusterArn)))
		return aws.ToString(c.ClusterArn), nil
	}

	e.logger.Info("creating cluster")
	created, err := e.clients.ECS.CreateCluster(ctx, &ecs.CreateClusterInput{
		ClusterName:       aws.String(name),
		CapacityProviders: []string{capacityFargate, capacityFargateSpot},
	})
	if err != nil {
		return "", apperror.Provisioning("cluster "+name, err)
	}
	if created.Cluster == nil {
		return name, nil
	}
	return aws.ToString(created.Cluster.ClusterArn), nil
}
