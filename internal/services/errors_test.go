package services_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"turnstile/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalService, "faceclient", "identify", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"faceclient", "identify", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "store", "insert", "retry later", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker for nil input, got %v", err)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{services.Wrap(services.ErrValidation, "web", "parse", "bad date", nil), http.StatusBadRequest},
		{services.Wrap(services.ErrNotFound, "store", "staff", "missing", nil), http.StatusNotFound},
		{services.Wrap(services.ErrTimeout, "faceclient", "detect", "deadline", nil), http.StatusGatewayTimeout},
		{services.Wrap(services.ErrExternalService, "faceclient", "identify", "unreachable", nil), http.StatusBadGateway},
		{services.Wrap(services.ErrCorruptData, "embedding", "decode", "bad magic", nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := services.HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !services.IsRetryable(services.Wrap(services.ErrTransient, "engine", "frame", "busy", nil)) {
		t.Fatal("expected transient errors to be retryable")
	}
	if !services.IsRetryable(services.Wrap(services.ErrTimeout, "faceclient", "detect", "slow", nil)) {
		t.Fatal("expected timeouts to be retryable")
	}
	if services.IsRetryable(services.Wrap(services.ErrValidation, "web", "parse", "bad", nil)) {
		t.Fatal("expected validation errors to not be retryable")
	}
	if services.IsRetryable(nil) {
		t.Fatal("expected nil to not be retryable")
	}
}
