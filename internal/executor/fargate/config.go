package fargate

import (
	"maps"
	"slices"
	"time"

	"github.com/sakif/fargate-executor/internal/apperror"
)

// Config holds the configuration for Fargate execution.
type Config struct {
	// Image is the container image every task runs.
	Image string `yaml:"image"`
	// Subnets and SecurityGroups place the task's network interface (awsvpc).
	Subnets        []string `yaml:"subnets"`
	SecurityGroups []string `yaml:"securityGroups"`
	// AssignPublicIP is needed in public subnets so the task can pull images and pip packages.
	AssignPublicIP bool `yaml:"assignPublicIp"`
	// Region is the AWS region. Empty uses the SDK's default resolution.
	Region string `yaml:"region"`

	// PipDependencies are installed before any block runs.
	PipDependencies []string `yaml:"pipDependencies"`
	// Environment is passed to the container as-is.
	Environment map[string]string `yaml:"environment"`

	RoleName        string `yaml:"roleName"`
	ClusterName     string `yaml:"clusterName"`
	Family          string `yaml:"family"`
	ContainerName   string `yaml:"containerName"`
	LogGroup        string `yaml:"logGroup"`
	LogStreamPrefix string `yaml:"logStreamPrefix"`
	// CPU and Memory use the ECS task-level units ("256" = .25 vCPU, "512" = 512 MiB).
	CPU    string `yaml:"cpu"`
	Memory string `yaml:"memory"`

	// PollInterval is the delay between DescribeTasks calls.
	PollInterval time.Duration `yaml:"pollInterval"`
	// Timeout bounds the wait for a task to stop.
	Timeout time.Duration `yaml:"timeout"`
	// MaxAttempts and MaxBackoff configure the SDK retryer for throttling and transient errors.
	MaxAttempts int           `yaml:"maxAttempts"`
	MaxBackoff  time.Duration `yaml:"maxBackoff"`
}

// DefaultConfig provides defaults for everything except network placement.
func DefaultConfig() Config {
	return Config{
		Image:           "python:3.11",
		AssignPublicIP:  true,
		RoleName:        "ecsTaskExecutionRoleAutoGenFargate",
		ClusterName:     "autogen-executor-cluster",
		Family:          "autogen-executor",
		ContainerName:   "executor",
		LogGroup:        "/ecs/autogen-executor",
		LogStreamPrefix: "ecs",
		CPU:             "256",
		Memory:          "512",
		PollInterval:    5 * time.Second,
		Timeout:         15 * time.Minute,
		MaxAttempts:     5,
		MaxBackoff:      20 * time.Second,
	}
}

// withDefaults fills every unset field from DefaultConfig and copies the
// slices and map, so later changes by the caller are not observed.
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.Image == "" {
		c.Image = d.Image
	}
	if c.RoleName == "" {
		c.RoleName = d.RoleName
	}
	if c.ClusterName == "" {
		c.ClusterName = d.ClusterName
	}
	if c.Family == "" {
		c.Family = d.Family
	}
	if c.ContainerName == "" {
		c.ContainerName = d.ContainerName
	}
	if c.LogGroup == "" {
		c.LogGroup = d.LogGroup
	}
	if c.LogStreamPrefix == "" {
		c.LogStreamPrefix = d.LogStreamPrefix
	}
	if c.CPU == "" {
		c.CPU = d.CPU
	}
	if c.Memory == "" {
		c.Memory = d.Memory
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}

	c.Subnets = slices.Clone(c.Subnets)
	c.SecurityGroups = slices.Clone(c.SecurityGroups)
	c.PipDependencies = slices.Clone(c.PipDependencies)
	c.Environment = maps.Clone(c.Environment)
	return c
}

// Validate checks the fields that have no sensible default.
func (c Config) Validate() error {
	if len(c.Subnets) == 0 {
		return apperror.ValidationFailed("subnets", "at least one subnet is required")
	}
	for name := range c.Environment {
		if name == "" {
			return apperror.ValidationFailed("environment", "environment variable names cannot be empty")
		}
	}
	return nil
}
