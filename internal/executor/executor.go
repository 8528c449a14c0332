// Package executor runs pen JavaScript outside the browser, in an isolated
// environment, so the editor can show console output next to the preview.
package executor

import (
	"context"
	"time"
)

// MaxCodeBytes caps the script accepted by an Executor.
const MaxCodeBytes = 100_000

// TimeoutExitCode is reported when a run is cut off, as with timeout(1).
const TimeoutExitCode = 124

// ExecutionRequest is a script to run.
type ExecutionRequest struct {
	Code string `json:"code"`
}

// ExecutionResult is the captured output of a run.
type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// TimedOut reports whether the run hit the executor's time limit.
func (r *ExecutionResult) TimedOut() bool {
	return r.ExitCode == TimeoutExitCode
}

// Executor runs JavaScript in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
