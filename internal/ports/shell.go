package ports

import (
	"context"

	"avular-robenv/internal/types"
)

// CommandRunnerPort runs shell commands inside the sandbox environment.
// Failures are *types.CommandFailedError, interruptions
// *types.CommandAbortedError.
type CommandRunnerPort interface {
	Run(ctx context.Context, req types.CommandRequest) (string, error)
}

// CancelSignal is polled by long-running commands between output reads.
type CancelSignal interface {
	IsSet() bool
}
