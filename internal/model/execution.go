// Package model defines the data structures used throughout the application.
package model

import "time"

// Execution statuses.
const (
	// StatusSucceeded means the batch ran and exited 0.
	StatusSucceeded = "succeeded"
	// StatusFailed means the batch ran and exited non-zero.
	StatusFailed = "failed"
	// StatusError means the batch never produced an exit code
	// (provisioning, launch or timeout failure).
	StatusError = "error"
)

// Execution is the history record of one batch of code blocks.
type Execution struct {
	ID         string        `json:"id"`
	Backend    string        `json:"backend"`
	Status     string        `json:"status"`
	ExitCode   int           `json:"exitCode"`
	Output     string        `json:"output"`
	Error      string        `json:"error,omitempty"`
	TaskARN    string        `json:"taskArn,omitempty"`
	Languages  []string      `json:"languages"`
	BlockCount int           `json:"blockCount"`
	Subject    string        `json:"subject,omitempty"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"createdAt"`
}
