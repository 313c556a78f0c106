package services_test

import (
	"context"
	"testing"

	"turnstile/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTrackID(ctx, "motion-42")
	ctx = services.WithStaffID(ctx, "EMP001")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.TrackIDFromContext(ctx); !ok || id != "motion-42" {
		t.Fatalf("unexpected track id: %v %v", id, ok)
	}
	if staffID, ok := services.StaffIDFromContext(ctx); !ok || staffID != "EMP001" {
		t.Fatalf("unexpected staff id: %v %v", staffID, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankTrackIDPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTrackID(ctx, "")
	if _, ok := services.TrackIDFromContext(ctx); ok {
		t.Fatal("expected no track id value")
	}
}
