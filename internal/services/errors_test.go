package services_test

import (
	"errors"
	"strings"
	"testing"

	"bundleeval/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrServiceCrash, "identify", "request", "process exited", base)
	if !errors.Is(err, services.ErrServiceCrash) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"identify", "request", "process exited"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrRequest) {
		t.Fatalf("expected request marker by default, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		marker error
		fatal  bool
	}{
		{services.ErrSetup, true},
		{services.ErrJobResolution, true},
		{services.ErrServiceUnavailable, true},
		{services.ErrServiceCrash, true},
		{services.ErrRequest, false},
		{services.ErrMalformedInput, false},
		{services.ErrDocumentParse, false},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "test", "op", "", nil)
		if got := services.IsFatal(err); got != tc.fatal {
			t.Fatalf("IsFatal(%v) = %v, want %v", tc.marker, got, tc.fatal)
		}
	}
	if services.IsFatal(nil) {
		t.Fatal("nil error must not be fatal")
	}
}
