package policies

import (
	"errors"

	"avular-robenv/internal/types"
)

// FailurePolicy decides whether a module failure stops the pipeline.
type FailurePolicy struct {
	CanFail bool
}

// Propagate reports whether err must be returned to the caller.
// Interruptions and missing launch files always propagate; other
// failures only when the policy does not allow modules to fail.
func (p FailurePolicy) Propagate(err error) bool {
	if err == nil {
		return false
	}
	var missing *types.LaunchFilesMissingError
	if IsAbort(err) || errors.As(err, &missing) {
		return true
	}
	return !p.CanFail
}

// IsAbort reports whether err stems from an interruption.
func IsAbort(err error) bool {
	var aborted *types.CommandAbortedError
	var cancelled *types.CancelledError
	return errors.As(err, &aborted) || errors.As(err, &cancelled)
}

// CapturedOutput returns the command output carried by err, or the error
// text when err carries none.
func CapturedOutput(err error) string {
	var failed *types.CommandFailedError
	if errors.As(err, &failed) {
		return failed.Output
	}
	var aborted *types.CommandAbortedError
	if errors.As(err, &aborted) {
		return aborted.Output
	}
	return err.Error()
}
