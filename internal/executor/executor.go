// Package executor defines the types shared by every execution backend.
//
// A request is a batch of code blocks. Backends run the whole batch as one
// shell script inside one container, so a batch has exactly one exit code:
// the exit status of the last block.
package executor

import (
	"context"
	"time"
)

// CodeBlock is a single piece of source code and the language it is written in.
type CodeBlock struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// ExecutionRequest represents a batch of code blocks to run together.
type ExecutionRequest struct {
	Blocks []CodeBlock `json:"blocks"`
}

// ExecutionResult represents the output and status of one batch.
// A non-zero ExitCode is a normal result, not an error.
type ExecutionResult struct {
	ExitCode          int           `json:"exitCode"`
	Output            string        `json:"output"`
	TaskARN           string        `json:"taskArn,omitempty"`
	TaskDefinitionARN string        `json:"taskDefinitionArn,omitempty"`
	StoppedReason     string        `json:"stoppedReason,omitempty"`
	Duration          time.Duration `json:"duration"`
}

// Executor represents the core interface for running code in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
