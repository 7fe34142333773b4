package stt

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestProviderError(t *testing.T) {
	err := &ProviderError{Provider: "elevenlabs", StatusCode: 401, Body: `{"detail":"bad key"}`}
	want := `elevenlabs: unexpected status 401: {"detail":"bad key"}`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Temporary() {
		t.Error("401 should not be temporary")
	}
	if !(&ProviderError{StatusCode: 503}).Temporary() {
		t.Error("503 should be temporary")
	}
	if !(&ProviderError{StatusCode: 429}).Temporary() {
		t.Error("429 should be temporary")
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.Canceled, "canceled"},
		{fmt.Errorf("post: %w", context.DeadlineExceeded), "timeout"},
		{&ProviderError{StatusCode: 500}, "server"},
		{fmt.Errorf("wrapped: %w", &ProviderError{StatusCode: 400}), "client"},
		{errors.New("connection refused"), "transport"},
	}
	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.want {
			t.Errorf("ErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
