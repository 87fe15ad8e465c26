package services_test

import (
	"context"
	"testing"

	"bundleeval/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithWorker(ctx, 3)
	ctx = services.WithTicket(ctx, 42)
	ctx = services.WithJobID(ctx, "abc:def")
	ctx = services.WithRunID(ctx, "run-1")

	if worker, ok := services.WorkerFromContext(ctx); !ok || worker != 3 {
		t.Fatalf("unexpected worker: %v %v", worker, ok)
	}
	if ticket, ok := services.TicketFromContext(ctx); !ok || ticket != 42 {
		t.Fatalf("unexpected ticket: %v %v", ticket, ok)
	}
	if id, ok := services.JobIDFromContext(ctx); !ok || id != "abc:def" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "")
	ctx = services.WithRunID(ctx, "")
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected blank job id to be ignored")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected blank run id to be ignored")
	}
	if _, ok := services.WorkerFromContext(ctx); ok {
		t.Fatal("expected no worker on bare context")
	}
}
