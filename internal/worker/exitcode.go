package worker

import (
	"context"
	"errors"
	"fmt"

	"bundleeval/internal/services"
)

// Worker process exit codes. The coordinator maps them back to error
// markers with ErrorForExit.
const (
	ExitOK                 = 0
	ExitFailure            = 1
	ExitSetup              = 2
	ExitJobResolution      = 3
	ExitServiceUnavailable = 4
	ExitServiceCrash       = 5
	ExitInterrupted        = 6
)

// ExitCode maps a Serve error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, services.ErrJobResolution):
		return ExitJobResolution
	case errors.Is(err, services.ErrServiceUnavailable):
		return ExitServiceUnavailable
	case errors.Is(err, services.ErrServiceCrash):
		return ExitServiceCrash
	case errors.Is(err, services.ErrSetup):
		return ExitSetup
	default:
		return ExitFailure
	}
}

// ErrorForExit is the inverse of ExitCode for a worker that exited with
// code. It returns nil for ExitOK.
func ErrorForExit(index, code int) error {
	detail := fmt.Sprintf("worker %d exited with code %d", index, code)
	switch code {
	case ExitOK:
		return nil
	case ExitInterrupted:
		return fmt.Errorf("%s: %w", detail, context.Canceled)
	case ExitJobResolution:
		return services.Wrap(services.ErrJobResolution, "coordinator", "wait worker", detail, nil)
	case ExitServiceUnavailable:
		return services.Wrap(services.ErrServiceUnavailable, "coordinator", "wait worker", detail, nil)
	case ExitServiceCrash:
		return services.Wrap(services.ErrServiceCrash, "coordinator", "wait worker", detail, nil)
	case ExitSetup:
		return services.Wrap(services.ErrSetup, "coordinator", "wait worker", detail, nil)
	default:
		return errors.New(detail)
	}
}
