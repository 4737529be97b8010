package docker

import (
	"time"
)

// Config holds the configuration for Docker execution.
type Config struct {
	// Image is the Docker image to use for execution.
	Image string `yaml:"image"`
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64 `yaml:"memoryLimit"`
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64 `yaml:"cpuLimit"`
	// Timeout is the maximum amount of time the execution can take.
	Timeout time.Duration `yaml:"timeout"`
	// PipDependencies are installed before the first block runs.
	// Installing them needs network access, so NetworkDisabled must be false.
	PipDependencies []string `yaml:"pipDependencies"`
	// Environment is passed to the container.
	Environment map[string]string `yaml:"environment"`
	// NetworkDisabled runs the container with network mode "none".
	NetworkDisabled bool `yaml:"networkDisabled"`
}

// DefaultConfig mirrors the Fargate defaults closely enough that a batch
// that works locally works remotely.
func DefaultConfig() Config {
	return Config{
		Image: "python:3.11",
		// 512 MB, the same as the default Fargate task
		MemoryLimit: 512 * 1024 * 1024,
		// 0.25 CPU, the same as CPU "256" on Fargate
		CPULimit: 0.25,
		// pip installs make the first seconds slow
		Timeout: 2 * time.Minute,
	}
}
