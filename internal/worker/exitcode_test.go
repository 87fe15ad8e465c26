package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bundleeval/internal/services"
)

func TestExitCodeRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		code   int
		marker error
	}{
		{services.Wrap(services.ErrJobResolution, "worker", "resolve", "", nil), ExitJobResolution, services.ErrJobResolution},
		{services.Wrap(services.ErrServiceUnavailable, "service", "start", "", nil), ExitServiceUnavailable, services.ErrServiceUnavailable},
		{fmt.Errorf("worker 1: %w", services.Wrap(services.ErrServiceCrash, "service", "restart", "", nil)), ExitServiceCrash, services.ErrServiceCrash},
		{services.Wrap(services.ErrSetup, "worker", "open manifest", "", nil), ExitSetup, services.ErrSetup},
		{context.Canceled, ExitInterrupted, context.Canceled},
	}
	for _, tc := range cases {
		code := ExitCode(tc.err)
		if code != tc.code {
			t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, code, tc.code)
		}
		if back := ErrorForExit(2, code); !errors.Is(back, tc.marker) {
			t.Fatalf("ErrorForExit(%d) = %v, want %v", code, back, tc.marker)
		}
	}

	if ExitCode(nil) != ExitOK || ErrorForExit(0, ExitOK) != nil {
		t.Fatal("expected clean exit to map to nil")
	}
	if ExitCode(errors.New("disk full")) != ExitFailure {
		t.Fatal("expected generic failure code")
	}
}
