package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSetup              = errors.New("setup failure")
	ErrDocumentParse      = errors.New("document parse error")
	ErrJobResolution      = errors.New("job resolution error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrServiceCrash       = errors.New("service crash")
	ErrRequest            = errors.New("request error")
	ErrMalformedInput     = errors.New("malformed input")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrRequest
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err ends the process that observed it. Setup and
// job resolution failures end the run; an unavailable or repeatedly crashing
// service ends the owning worker. Everything else degrades to a recorded
// outcome.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrSetup),
		errors.Is(err, ErrJobResolution),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ErrServiceCrash):
		return true
	default:
		return false
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
